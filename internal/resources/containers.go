package resources

// ContainerRecord is the raw container data supplied by the engine client.
type ContainerRecord struct {
	ID     string
	Name   string
	State  string
	Image  string
	PodID  string
	Health string
}

// Container is a tracked engine container.
type Container struct {
	*Resource

	image  string
	podID  string
	health string
}

// NewContainer builds a container from an engine record.
func NewContainer(rec ContainerRecord) *Container {
	return &Container{
		Resource: NewResource(KindContainer, rec.ID, rec.Name, ContainerStatusFromState(rec.State)),
		image:    rec.Image,
		podID:    rec.PodID,
		health:   rec.Health,
	}
}

func (c *Container) Base() *Resource { return c.Resource }
func (c *Container) Image() string   { return c.image }

// PodID returns the owning pod, or "" for standalone containers.
func (c *Container) PodID() string  { return c.podID }
func (c *Container) Health() string { return c.health }

func (c *Container) update(rec ContainerRecord) {
	c.image = rec.Image
	c.podID = rec.PodID
	c.health = rec.Health
	c.SetName(rec.Name)
	c.SetStatus(ContainerStatusFromState(rec.State))
}

// ContainerList is the authoritative container collection for one engine.
type ContainerList struct {
	*collection[*Container]
}

// NewContainerList creates an empty, bootstrapped container list.
func NewContainerList(opts Options) *ContainerList {
	return &ContainerList{collection: newCollection[*Container](KindContainer, opts)}
}

// Sync reconciles the list with a full container listing.
func (l *ContainerList) Sync(records []ContainerRecord) error {
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	return l.sync(ids,
		func(i int) *Container { return NewContainer(records[i]) },
		func(c *Container, i int) { c.update(records[i]) },
	)
}

// Clear removes every container.
func (l *ContainerList) Clear() error {
	return l.clear()
}

// ByPod returns the containers belonging to podID, in list order.
func (l *ContainerList) ByPod(podID string) []*Container {
	if podID == "" {
		return nil
	}
	var out []*Container
	for _, c := range l.items {
		if c.podID == podID {
			out = append(out, c)
		}
	}
	return out
}
