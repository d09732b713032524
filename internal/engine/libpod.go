package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	perrors "github.com/rcourtman/podsmon/internal/errors"
	"github.com/rcourtman/podsmon/internal/resources"
)

const (
	libpodPodsPath = "/v4.0.0/libpod/pods/json"
	maxPodsBody    = 8 << 20
)

// libpodClient talks to Podman's native API for the pod listing, which the
// Docker-compatible API does not expose. It reuses the SDK's HTTP client so
// unix sockets and TLS settings carry over.
type libpodClient struct {
	http    *http.Client
	baseURL string
	host    string
}

type libpodPod struct {
	ID         string `json:"Id"`
	Name       string `json:"Name"`
	Status     string `json:"Status"`
	Containers []struct {
		ID string `json:"Id"`
	} `json:"Containers"`
}

func newLibpodClient(httpClient *http.Client, baseURL, host string) *libpodClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &libpodClient{http: httpClient, baseURL: strings.TrimRight(baseURL, "/"), host: host}
}

// libpodBaseURL derives the URL prefix for raw API calls from a daemon host
// such as unix:///run/podman/podman.sock or tcp://10.0.0.5:8080.
func libpodBaseURL(daemonHost string) (string, error) {
	parsed, err := url.Parse(daemonHost)
	if err != nil {
		return "", fmt.Errorf("parse daemon host %q: %w", daemonHost, err)
	}
	switch parsed.Scheme {
	case "unix", "npipe":
		// The SDK transport dials the socket; the URL host is only a placeholder.
		return "http://d", nil
	case "tcp", "http":
		return "http://" + parsed.Host, nil
	case "https":
		return "https://" + parsed.Host, nil
	default:
		return "", fmt.Errorf("unsupported daemon host scheme %q", parsed.Scheme)
	}
}

func (c *libpodClient) ListPods(ctx context.Context) ([]resources.PodRecord, error) {
	const op = "list_pods"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+libpodPodsPath, nil)
	if err != nil {
		return nil, perrors.NewEngineError(perrors.ErrorTypeAPI, op, c.host, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, perrors.NewEngineError(perrors.ErrorTypeTimeout, op, c.host, err)
		}
		return nil, perrors.WrapConnectionError(op, c.host, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPodsBody))
	if err != nil {
		return nil, perrors.WrapConnectionError(op, c.host, fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, perrors.NewEngineError(perrors.ErrorTypeUnsupported, op, c.host,
			fmt.Errorf("engine has no libpod pods endpoint"))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, perrors.WrapAPIError(op, c.host,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), resp.StatusCode)
	}

	var pods []libpodPod
	if err := json.Unmarshal(body, &pods); err != nil {
		return nil, perrors.NewEngineError(perrors.ErrorTypeDecode, op, c.host, fmt.Errorf("decode pods: %w", err))
	}

	records := make([]resources.PodRecord, 0, len(pods))
	for _, pod := range pods {
		ids := make([]string, 0, len(pod.Containers))
		for _, ctr := range pod.Containers {
			if ctr.ID != "" {
				ids = append(ids, ctr.ID)
			}
		}
		records = append(records, resources.PodRecord{
			ID:           pod.ID,
			Name:         pod.Name,
			Status:       pod.Status,
			ContainerIDs: ids,
		})
	}
	return records, nil
}
