package resources

// PodRecord is the raw pod data supplied by the engine client.
type PodRecord struct {
	ID           string
	Name         string
	Status       string
	ContainerIDs []string
}

// Pod is a tracked Podman pod.
type Pod struct {
	*Resource

	containerIDs []string
}

// NewPod builds a pod from an engine record.
func NewPod(rec PodRecord) *Pod {
	return &Pod{
		Resource:     NewResource(KindPod, rec.ID, rec.Name, PodStatusFromState(rec.Status)),
		containerIDs: append([]string(nil), rec.ContainerIDs...),
	}
}

func (p *Pod) Base() *Resource { return p.Resource }

// ContainerIDs returns the IDs of the pod's containers, infra included.
func (p *Pod) ContainerIDs() []string {
	return append([]string(nil), p.containerIDs...)
}

func (p *Pod) update(rec PodRecord) {
	p.containerIDs = append([]string(nil), rec.ContainerIDs...)
	p.SetName(rec.Name)
	p.SetStatus(PodStatusFromState(rec.Status))
}

// PodList is the authoritative pod collection for one engine.
type PodList struct {
	*collection[*Pod]
}

// NewPodList creates an empty, bootstrapped pod list.
func NewPodList(opts Options) *PodList {
	return &PodList{collection: newCollection[*Pod](KindPod, opts)}
}

// Sync reconciles the list with a full pod listing.
func (l *PodList) Sync(records []PodRecord) error {
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	return l.sync(ids,
		func(i int) *Pod { return NewPod(records[i]) },
		func(p *Pod, i int) { p.update(records[i]) },
	)
}

// Clear removes every pod.
func (l *PodList) Clear() error {
	return l.clear()
}
