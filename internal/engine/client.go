package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/image"
	systemtypes "github.com/docker/docker/api/types/system"
	"github.com/docker/docker/client"
	perrors "github.com/rcourtman/podsmon/internal/errors"
	"github.com/rcourtman/podsmon/internal/resources"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// dockerAPI is the subset of the Docker SDK client the engine client uses.
type dockerAPI interface {
	Info(ctx context.Context) (systemtypes.Info, error)
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)
	Events(ctx context.Context, options events.ListOptions) (<-chan events.Message, <-chan error)
	DaemonHost() string
	HTTPClient() *http.Client
	Close() error
}

// podLister fetches pods. Only Podman implements the endpoint.
type podLister interface {
	ListPods(ctx context.Context) ([]resources.PodRecord, error)
}

var newDockerClientFn = func(opts ...client.Opt) (dockerAPI, error) {
	return client.NewClientWithOpts(opts...)
}

// Config controls how the engine client connects.
type Config struct {
	// Host overrides DOCKER_HOST, e.g. unix:///run/user/1000/podman/podman.sock.
	Host   string
	Logger *zerolog.Logger
}

// Client lists containers, pods and images from a Docker or Podman engine.
type Client struct {
	docker dockerAPI
	pods   podLister
	host   string
	logger zerolog.Logger
}

// Snapshot is one consistent listing of every resource kind. Pods is nil
// when the engine has no pod support.
type Snapshot struct {
	Containers []resources.ContainerRecord
	Pods       []resources.PodRecord
	Images     []resources.ImageRecord
	PodsErr    error
}

// New connects to the engine named by cfg.
func New(cfg Config) (*Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host := strings.TrimSpace(cfg.Host); host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := newDockerClientFn(opts...)
	if err != nil {
		return nil, perrors.WrapConnectionError("create_client", cfg.Host, err)
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	host := cli.DaemonHost()
	base, err := libpodBaseURL(host)
	if err != nil {
		_ = cli.Close()
		return nil, perrors.NewEngineError(perrors.ErrorTypeConnection, "create_client", host, err)
	}

	return &Client{
		docker: cli,
		pods:   newLibpodClient(cli.HTTPClient(), base, host),
		host:   host,
		logger: logger.With().Str("engine_host", host).Logger(),
	}, nil
}

// Host returns the daemon endpoint in use.
func (c *Client) Host() string {
	return c.host
}

// Ping verifies the engine answers and returns its server version.
func (c *Client) Ping(ctx context.Context) (string, error) {
	info, err := c.docker.Info(ctx)
	if err != nil {
		return "", wrapDockerError("info", c.host, err)
	}
	return info.ServerVersion, nil
}

// Containers lists every container, including stopped ones.
func (c *Client) Containers(ctx context.Context) ([]resources.ContainerRecord, error) {
	list, err := c.docker.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, wrapDockerError("list_containers", c.host, err)
	}

	records := make([]resources.ContainerRecord, 0, len(list))
	for _, summary := range list {
		records = append(records, resources.ContainerRecord{
			ID:     summary.ID,
			Name:   containerName(summary.Names),
			State:  string(summary.State),
			Image:  summary.Image,
			Health: healthFromStatus(summary.Status),
		})
	}
	return records, nil
}

// Images lists every image, dangling ones included.
func (c *Client) Images(ctx context.Context) ([]resources.ImageRecord, error) {
	list, err := c.docker.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return nil, wrapDockerError("list_images", c.host, err)
	}

	records := make([]resources.ImageRecord, 0, len(list))
	for _, summary := range list {
		records = append(records, resources.ImageRecord{
			ID:       summary.ID,
			RepoTags: append([]string(nil), summary.RepoTags...),
			Size:     summary.Size,
		})
	}
	return records, nil
}

// Pods lists pods. It fails with ErrUnsupported on engines without pods.
func (c *Client) Pods(ctx context.Context) ([]resources.PodRecord, error) {
	return c.pods.ListPods(ctx)
}

// Snapshot lists all kinds and links containers to their pods. A pod listing
// failure does not fail the snapshot; it is reported in PodsErr.
func (c *Client) Snapshot(ctx context.Context, withPods bool) (Snapshot, error) {
	var snap Snapshot

	containers, err := c.Containers(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	images, err := c.Images(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Containers = containers
	snap.Images = images

	if !withPods {
		return snap, nil
	}

	pods, err := c.Pods(ctx)
	if err != nil {
		snap.PodsErr = err
		return snap, nil
	}
	snap.Pods = pods
	linkPods(snap.Containers, snap.Pods)
	return snap, nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.docker.Close()
}

func linkPods(containers []resources.ContainerRecord, pods []resources.PodRecord) {
	owner := make(map[string]string)
	for _, pod := range pods {
		for _, id := range pod.ContainerIDs {
			owner[id] = pod.ID
		}
	}
	for i := range containers {
		if podID, ok := owner[containers[i].ID]; ok {
			containers[i].PodID = podID
		}
	}
}

func containerName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return strings.TrimPrefix(sorted[0], "/")
}

// healthFromStatus extracts the health suffix Docker appends to the status
// line, e.g. "Up 2 minutes (healthy)".
func healthFromStatus(status string) string {
	status = strings.ToLower(status)
	switch {
	case strings.Contains(status, "(unhealthy)"):
		return "unhealthy"
	case strings.Contains(status, "(healthy)"):
		return "healthy"
	case strings.Contains(status, "(health: starting)"):
		return "starting"
	default:
		return ""
	}
}

func wrapDockerError(op, host string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return perrors.NewEngineError(perrors.ErrorTypeTimeout, op, host, err)
	case client.IsErrConnectionFailed(err):
		return perrors.WrapConnectionError(op, host, err)
	default:
		return perrors.NewEngineError(perrors.ErrorTypeAPI, op, host, fmt.Errorf("docker api: %w", err))
	}
}
