package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rcourtman/podsmon/internal/resources"
	"github.com/rs/zerolog"
)

func newTestRecorder(t *testing.T) (*Recorder, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewRecorder(reg, nil), reg
}

func testOptions() resources.Options {
	logger := zerolog.Nop()
	return resources.Options{Strict: true, Logger: &logger}
}

func statusGauge(r *Recorder, kind resources.Kind, status resources.Status) float64 {
	return testutil.ToFloat64(r.ResourcesByStatus.WithLabelValues(string(kind), string(status)))
}

func eventCount(r *Recorder, kind resources.Kind, event string) float64 {
	return testutil.ToFloat64(r.EventsTotal.WithLabelValues(string(kind), event))
}

func TestAttachPrimesStableLabelSet(t *testing.T) {
	r, _ := newTestRecorder(t)
	pods := resources.NewPodList(testOptions())

	r.Attach(pods.Observable)

	if got := testutil.CollectAndCount(r.ResourcesByStatus); got != len(resources.KindPod.Statuses()) {
		t.Fatalf("resources_by_status series = %d, want %d", got, len(resources.KindPod.Statuses()))
	}
	for _, status := range resources.KindPod.Statuses() {
		if got := statusGauge(r, resources.KindPod, status); got != 0 {
			t.Fatalf("pod %s gauge = %v, want 0", status, got)
		}
	}
	if got := testutil.ToFloat64(r.ResourcesTotal.WithLabelValues("pod")); got != 0 {
		t.Fatalf("resources_total{pod} = %v, want 0", got)
	}
}

func TestAttachTracksCountsAndEvents(t *testing.T) {
	r, _ := newTestRecorder(t)
	containers := resources.NewContainerList(testOptions())
	r.Attach(containers.Observable)

	if err := containers.Sync([]resources.ContainerRecord{
		{ID: "a", Name: "web", State: "running"},
		{ID: "b", Name: "db", State: "running"},
		{ID: "c", Name: "job", State: "exited"},
	}); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if got := statusGauge(r, resources.KindContainer, resources.StatusRunning); got != 2 {
		t.Fatalf("running gauge = %v, want 2", got)
	}
	if got := statusGauge(r, resources.KindContainer, resources.StatusExited); got != 1 {
		t.Fatalf("exited gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.ResourcesTotal.WithLabelValues("container")); got != 3 {
		t.Fatalf("resources_total = %v, want 3", got)
	}

	// Status flip out-of-band, rename, and removal.
	web, _ := containers.Get("a")
	web.SetStatus(resources.StatusPaused)
	web.SetName("frontend")
	if err := containers.Sync([]resources.ContainerRecord{
		{ID: "a", Name: "frontend", State: "paused"},
		{ID: "b", Name: "db", State: "running"},
	}); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if got := statusGauge(r, resources.KindContainer, resources.StatusRunning); got != 1 {
		t.Fatalf("running gauge = %v, want 1", got)
	}
	if got := statusGauge(r, resources.KindContainer, resources.StatusPaused); got != 1 {
		t.Fatalf("paused gauge = %v, want 1", got)
	}
	if got := statusGauge(r, resources.KindContainer, resources.StatusExited); got != 0 {
		t.Fatalf("exited gauge = %v, want 0", got)
	}
	if got := testutil.ToFloat64(r.ResourcesTotal.WithLabelValues("container")); got != 2 {
		t.Fatalf("resources_total = %v, want 2", got)
	}

	if got := eventCount(r, resources.KindContainer, "added"); got != 3 {
		t.Fatalf("added = %v, want 3", got)
	}
	if got := eventCount(r, resources.KindContainer, "renamed"); got != 1 {
		t.Fatalf("renamed = %v, want 1", got)
	}
	if got := eventCount(r, resources.KindContainer, "removed"); got != 1 {
		t.Fatalf("removed = %v, want 1", got)
	}
}

func TestObserveRefresh(t *testing.T) {
	r, _ := newTestRecorder(t)

	r.ObserveRefresh(20*time.Millisecond, nil)
	r.ObserveRefresh(time.Second, nil)
	r.ObserveRefresh(time.Second, errors.New("engine down"))

	if got := testutil.ToFloat64(r.RefreshTotal.WithLabelValues("success")); got != 2 {
		t.Fatalf("success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.RefreshTotal.WithLabelValues("error")); got != 1 {
		t.Fatalf("error = %v, want 1", got)
	}
}

func TestSetPodsSupported(t *testing.T) {
	r, _ := newTestRecorder(t)

	r.SetPodsSupported(true)
	if got := testutil.ToFloat64(r.PodsSupported); got != 1 {
		t.Fatalf("pods_supported = %v, want 1", got)
	}
	r.SetPodsSupported(false)
	if got := testutil.ToFloat64(r.PodsSupported); got != 0 {
		t.Fatalf("pods_supported = %v, want 0", got)
	}
}

func TestWebsocketClientsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	clients := 3
	NewRecorder(reg, func() int { return clients })

	expected := `
# HELP podsmon_websocket_clients Connected websocket event stream clients.
# TYPE podsmon_websocket_clients gauge
podsmon_websocket_clients 3
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "podsmon_websocket_clients"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestNewRecorderRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRecorder(reg, nil)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic registering the same collectors twice")
		}
	}()
	NewRecorder(reg, nil)
}
