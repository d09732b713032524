package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/image"
	systemtypes "github.com/docker/docker/api/types/system"
	"github.com/docker/docker/client"
	perrors "github.com/rcourtman/podsmon/internal/errors"
	"github.com/rcourtman/podsmon/internal/resources"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDockerClient struct {
	daemonHost        string
	infoFunc          func(ctx context.Context) (systemtypes.Info, error)
	containerListFunc func(ctx context.Context, opts container.ListOptions) ([]container.Summary, error)
	imageListFunc     func(ctx context.Context, opts image.ListOptions) ([]image.Summary, error)
	eventsFunc        func(ctx context.Context, opts events.ListOptions) (<-chan events.Message, <-chan error)
	closed            bool
}

func (f *fakeDockerClient) Info(ctx context.Context) (systemtypes.Info, error) {
	if f.infoFunc == nil {
		return systemtypes.Info{}, errors.New("unexpected Info call")
	}
	return f.infoFunc(ctx)
}

func (f *fakeDockerClient) ContainerList(ctx context.Context, opts container.ListOptions) ([]container.Summary, error) {
	if f.containerListFunc == nil {
		return nil, errors.New("unexpected ContainerList call")
	}
	return f.containerListFunc(ctx, opts)
}

func (f *fakeDockerClient) ImageList(ctx context.Context, opts image.ListOptions) ([]image.Summary, error) {
	if f.imageListFunc == nil {
		return nil, errors.New("unexpected ImageList call")
	}
	return f.imageListFunc(ctx, opts)
}

func (f *fakeDockerClient) Events(ctx context.Context, opts events.ListOptions) (<-chan events.Message, <-chan error) {
	if f.eventsFunc == nil {
		errs := make(chan error, 1)
		errs <- errors.New("unexpected Events call")
		return make(chan events.Message), errs
	}
	return f.eventsFunc(ctx, opts)
}

func (f *fakeDockerClient) DaemonHost() string       { return f.daemonHost }
func (f *fakeDockerClient) HTTPClient() *http.Client { return http.DefaultClient }

func (f *fakeDockerClient) Close() error {
	f.closed = true
	return nil
}

type fakePodLister struct {
	pods []resources.PodRecord
	err  error
}

func (f fakePodLister) ListPods(context.Context) ([]resources.PodRecord, error) {
	return f.pods, f.err
}

func newTestClient(docker dockerAPI, pods podLister) *Client {
	return &Client{docker: docker, pods: pods, host: "unix:///test.sock", logger: zerolog.Nop()}
}

func TestContainersMapsSummaries(t *testing.T) {
	docker := &fakeDockerClient{
		containerListFunc: func(ctx context.Context, opts container.ListOptions) ([]container.Summary, error) {
			assert.True(t, opts.All, "stopped containers must be listed")
			return []container.Summary{
				{ID: "abc", Names: []string{"/web"}, State: "running", Image: "nginx", Status: "Up 2 minutes (healthy)"},
				{ID: "def", Names: []string{"/zeta", "/alpha"}, State: "exited", Status: "Exited (0) 1 hour ago"},
			}, nil
		},
	}

	records, err := newTestClient(docker, fakePodLister{}).Containers(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, resources.ContainerRecord{ID: "abc", Name: "web", State: "running", Image: "nginx", Health: "healthy"}, records[0])
	assert.Equal(t, "alpha", records[1].Name)
	assert.Empty(t, records[1].Health)
}

func TestContainersWrapsErrors(t *testing.T) {
	docker := &fakeDockerClient{
		containerListFunc: func(context.Context, container.ListOptions) ([]container.Summary, error) {
			return nil, context.DeadlineExceeded
		},
	}

	_, err := newTestClient(docker, fakePodLister{}).Containers(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, perrors.ErrTimeout)
	assert.True(t, perrors.IsRetryableError(err))

	var engErr *perrors.EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, "list_containers", engErr.Op)
}

func TestSnapshotLinksPods(t *testing.T) {
	docker := &fakeDockerClient{
		containerListFunc: func(context.Context, container.ListOptions) ([]container.Summary, error) {
			return []container.Summary{
				{ID: "infra", Names: []string{"/shop-infra"}, State: "running"},
				{ID: "app", Names: []string{"/shop-app"}, State: "running"},
				{ID: "solo", Names: []string{"/solo"}, State: "created"},
			}, nil
		},
		imageListFunc: func(context.Context, image.ListOptions) ([]image.Summary, error) {
			return []image.Summary{{ID: "sha256:1", RepoTags: []string{"nginx:latest"}, Size: 42}}, nil
		},
	}
	pods := fakePodLister{pods: []resources.PodRecord{
		{ID: "p1", Name: "shop", Status: "Running", ContainerIDs: []string{"infra", "app"}},
	}}

	snap, err := newTestClient(docker, pods).Snapshot(context.Background(), true)
	require.NoError(t, err)
	require.NoError(t, snap.PodsErr)

	assert.Equal(t, "p1", snap.Containers[0].PodID)
	assert.Equal(t, "p1", snap.Containers[1].PodID)
	assert.Empty(t, snap.Containers[2].PodID)
	require.Len(t, snap.Images, 1)
	assert.EqualValues(t, 42, snap.Images[0].Size)
}

func TestSnapshotToleratesPodFailure(t *testing.T) {
	docker := &fakeDockerClient{
		containerListFunc: func(context.Context, container.ListOptions) ([]container.Summary, error) {
			return nil, nil
		},
		imageListFunc: func(context.Context, image.ListOptions) ([]image.Summary, error) {
			return nil, nil
		},
	}
	unsupported := perrors.NewEngineError(perrors.ErrorTypeUnsupported, "list_pods", "", errors.New("no pods"))

	snap, err := newTestClient(docker, fakePodLister{err: unsupported}).Snapshot(context.Background(), true)
	require.NoError(t, err)
	assert.ErrorIs(t, snap.PodsErr, perrors.ErrUnsupported)
	assert.Nil(t, snap.Pods)

	snap, err = newTestClient(docker, fakePodLister{err: unsupported}).Snapshot(context.Background(), false)
	require.NoError(t, err)
	assert.NoError(t, snap.PodsErr)
}

func TestLibpodListPods(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, libpodPodsPath, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"Id":"p1","Name":"shop","Status":"Running","Containers":[{"Id":"infra"},{"Id":"app"}]},
			{"Id":"p2","Name":"batch","Status":"Exited","Containers":[]}
		]`))
	}))
	defer srv.Close()

	pods, err := newLibpodClient(srv.Client(), srv.URL, "test").ListPods(context.Background())
	require.NoError(t, err)
	require.Len(t, pods, 2)
	assert.Equal(t, resources.PodRecord{ID: "p1", Name: "shop", Status: "Running", ContainerIDs: []string{"infra", "app"}}, pods[0])
	assert.Empty(t, pods[1].ContainerIDs)
}

func TestLibpodListPodsStatusHandling(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantIs    error
		retryable bool
	}{
		{"docker daemon without libpod", http.StatusNotFound, `{"message":"page not found"}`, perrors.ErrUnsupported, false},
		{"server error", http.StatusInternalServerError, `boom`, nil, true},
		{"bad json", http.StatusOK, `{not json`, nil, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := newLibpodClient(srv.Client(), srv.URL, "test").ListPods(context.Background())
			require.Error(t, err)
			if tc.wantIs != nil {
				assert.ErrorIs(t, err, tc.wantIs)
			}
			assert.Equal(t, tc.retryable, perrors.IsRetryableError(err))
		})
	}
}

func TestLibpodBaseURL(t *testing.T) {
	tests := []struct {
		host    string
		want    string
		wantErr bool
	}{
		{"unix:///run/podman/podman.sock", "http://d", false},
		{"npipe:////./pipe/docker_engine", "http://d", false},
		{"tcp://10.0.0.5:2375", "http://10.0.0.5:2375", false},
		{"https://engine.local:2376", "https://engine.local:2376", false},
		{"ssh://user@host", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.host, func(t *testing.T) {
			got, err := libpodBaseURL(tc.host)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestHintFromMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  events.Message
		want Hint
		ok   bool
	}{
		{"container start", events.Message{Type: "container", Action: "start", Actor: events.Actor{ID: "abc"}},
			Hint{Kind: resources.KindContainer, Action: "start", ID: "abc"}, true},
		{"container rename", events.Message{Type: "container", Action: "rename", Actor: events.Actor{ID: "abc"}},
			Hint{Kind: resources.KindContainer, Action: "rename", ID: "abc"}, true},
		{"health", events.Message{Type: "container", Action: "health_status: healthy", Actor: events.Actor{ID: "abc"}},
			Hint{Kind: resources.KindContainer, Action: "health_status", ID: "abc"}, true},
		{"image tag", events.Message{Type: "image", Action: "tag", Actor: events.Actor{ID: "sha256:1"}},
			Hint{Kind: resources.KindImage, Action: "tag", ID: "sha256:1"}, true},
		{"pod", events.Message{Type: "pod", Action: "create", Actor: events.Actor{ID: "p1"}},
			Hint{Kind: resources.KindPod, Action: "create", ID: "p1"}, true},
		{"exec noise", events.Message{Type: "container", Action: "exec_start: sh", Actor: events.Actor{ID: "abc"}}, Hint{}, false},
		{"network", events.Message{Type: "network", Action: "connect"}, Hint{}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := hintFromMessage(tc.msg)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestWatchForwardsHintsUntilCancelled(t *testing.T) {
	msgs := make(chan events.Message, 2)
	errs := make(chan error)
	docker := &fakeDockerClient{
		eventsFunc: func(context.Context, events.ListOptions) (<-chan events.Message, <-chan error) {
			return msgs, errs
		},
	}
	c := newTestClient(docker, fakePodLister{})

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Hint, 4)
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx, out) }()

	msgs <- events.Message{Type: "container", Action: "die", Actor: events.Actor{ID: "abc"}}

	select {
	case hint := <-out:
		assert.Equal(t, Hint{Kind: resources.KindContainer, Action: "die", ID: "abc"}, hint)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for hint")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatchReportsStreamFailure(t *testing.T) {
	errs := make(chan error, 1)
	errs <- errors.New("connection reset")
	docker := &fakeDockerClient{
		eventsFunc: func(context.Context, events.ListOptions) (<-chan events.Message, <-chan error) {
			return make(chan events.Message), errs
		},
	}

	err := newTestClient(docker, fakePodLister{}).Watch(context.Background(), make(chan Hint, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, perrors.ErrConnectionFailed)
}

func TestPingReturnsServerVersion(t *testing.T) {
	docker := &fakeDockerClient{
		infoFunc: func(context.Context) (systemtypes.Info, error) {
			return systemtypes.Info{ServerVersion: "5.2.0"}, nil
		},
	}
	version, err := newTestClient(docker, fakePodLister{}).Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "5.2.0", version)
}

func TestNewUsesInjectedClient(t *testing.T) {
	original := newDockerClientFn
	t.Cleanup(func() { newDockerClientFn = original })

	fake := &fakeDockerClient{daemonHost: "ssh://nope"}
	newDockerClientFn = func(...client.Opt) (dockerAPI, error) { return fake, nil }

	_, err := New(Config{})
	require.Error(t, err)
	assert.True(t, fake.closed, "client closed when the host cannot serve raw API calls")

	fake = &fakeDockerClient{daemonHost: "unix:///run/podman/podman.sock"}
	c, err := New(Config{Host: "unix:///run/podman/podman.sock"})
	require.NoError(t, err)
	assert.Equal(t, "unix:///run/podman/podman.sock", c.Host())
}
