package resources

// Resource is a single engine object tracked by a collection.
//
// The ID is fixed at construction. Name and status may change at any time;
// observers are notified synchronously, and only when the value actually
// changes.
type Resource struct {
	id     string
	kind   Kind
	name   string
	status Status

	nameChanged   Signal[*Resource]
	statusChanged Signal[*Resource]
}

// NewResource creates a resource with the given identity and initial state.
// Invalid statuses are normalized to StatusUnknown.
func NewResource(kind Kind, id, name string, status Status) *Resource {
	if !status.Valid() {
		status = StatusUnknown
	}
	return &Resource{
		id:     id,
		kind:   kind,
		name:   name,
		status: status,
	}
}

func (r *Resource) ID() string     { return r.id }
func (r *Resource) Kind() Kind     { return r.kind }
func (r *Resource) Name() string   { return r.name }
func (r *Resource) Status() Status { return r.status }

// SetName updates the display name.
func (r *Resource) SetName(name string) {
	if r.name == name {
		return
	}
	r.name = name
	r.nameChanged.Emit(r)
}

// SetStatus updates the status. Any transition is accepted.
func (r *Resource) SetStatus(status Status) {
	if !status.Valid() {
		status = StatusUnknown
	}
	if r.status == status {
		return
	}
	r.status = status
	r.statusChanged.Emit(r)
}

// ConnectNameChanged registers fn to run after every name change.
func (r *Resource) ConnectNameChanged(fn func(*Resource)) HandlerID {
	return r.nameChanged.Connect(fn)
}

// ConnectStatusChanged registers fn to run after every status change.
func (r *Resource) ConnectStatusChanged(fn func(*Resource)) HandlerID {
	return r.statusChanged.Connect(fn)
}

// Disconnect removes a name or status observer.
func (r *Resource) Disconnect(id HandlerID) bool {
	if r.nameChanged.Disconnect(id) {
		return true
	}
	return r.statusChanged.Disconnect(id)
}

// observers returns the number of connected name and status observers.
func (r *Resource) observers() int {
	return r.nameChanged.Len() + r.statusChanged.Len()
}
