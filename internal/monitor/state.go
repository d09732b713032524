package monitor

import (
	"time"

	"github.com/rcourtman/podsmon/internal/resources"
)

// State is an immutable view of the collections, republished after every
// successful refresh. It is safe to share across goroutines.
type State struct {
	Engine        string                       `json:"engine"`
	PodsSupported bool                         `json:"podsSupported"`
	LastRefresh   time.Time                    `json:"lastRefresh"`
	LastError     string                       `json:"lastError,omitempty"`
	Containers    []ContainerView              `json:"containers"`
	Pods          []PodView                    `json:"pods"`
	Images        []ImageView                  `json:"images"`
	Summary       map[resources.Kind]KindCount `json:"summary"`
}

// KindCount summarises one collection.
type KindCount struct {
	Len    int              `json:"len"`
	Counts resources.Counts `json:"counts"`
}

type ResourceView struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Status resources.Status `json:"status"`
}

type ContainerView struct {
	ResourceView
	Image  string `json:"image,omitempty"`
	PodID  string `json:"podId,omitempty"`
	Health string `json:"health,omitempty"`
}

type PodView struct {
	ResourceView
	ContainerIDs []string `json:"containerIds"`
}

type ImageView struct {
	ResourceView
	RepoTags []string `json:"repoTags"`
	Size     int64    `json:"size"`
}

// Healthy reports whether the last refresh succeeded.
func (s State) Healthy() bool {
	return !s.LastRefresh.IsZero() && s.LastError == ""
}

// State returns the most recently published snapshot.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Snapshot returns State as an interface value for the websocket hub.
func (m *Monitor) Snapshot() interface{} {
	return m.State()
}

func viewOf(r *resources.Resource) ResourceView {
	return ResourceView{ID: r.ID(), Name: r.Name(), Status: r.Status()}
}

// publish rebuilds the shared view from the collections. Runs on the monitor
// goroutine only.
func (m *Monitor) publish() {
	containers := make([]ContainerView, 0, m.containers.Len())
	for _, c := range m.containers.Items() {
		containers = append(containers, ContainerView{
			ResourceView: viewOf(c.Resource),
			Image:        c.Image(),
			PodID:        c.PodID(),
			Health:       c.Health(),
		})
	}

	pods := make([]PodView, 0, m.pods.Len())
	for _, p := range m.pods.Items() {
		pods = append(pods, PodView{ResourceView: viewOf(p.Resource), ContainerIDs: p.ContainerIDs()})
	}

	images := make([]ImageView, 0, m.images.Len())
	for _, i := range m.images.Items() {
		images = append(images, ImageView{ResourceView: viewOf(i.Resource), RepoTags: i.RepoTags(), Size: i.Size()})
	}

	summary := make(map[resources.Kind]KindCount, 3)
	for _, o := range m.observables() {
		summary[o.Kind()] = KindCount{Len: o.Len(), Counts: o.Counts()}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.PodsSupported = m.podsEnabled
	m.state.Containers = containers
	m.state.Pods = pods
	m.state.Images = images
	m.state.Summary = summary
}
