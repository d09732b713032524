package resources

import "strings"

// Status is the lifecycle state reported by the engine for a resource.
type Status string

const (
	StatusCreated    Status = "created"
	StatusRunning    Status = "running"
	StatusPaused     Status = "paused"
	StatusStopping   Status = "stopping"
	StatusStopped    Status = "stopped"
	StatusRemoving   Status = "removing"
	StatusExited     Status = "exited"
	StatusDead       Status = "dead"
	StatusConfigured Status = "configured"
	StatusUnknown    Status = "unknown"
)

// AllStatuses is the closed status set in display order.
var AllStatuses = []Status{
	StatusCreated,
	StatusRunning,
	StatusPaused,
	StatusStopping,
	StatusStopped,
	StatusRemoving,
	StatusExited,
	StatusDead,
	StatusConfigured,
	StatusUnknown,
}

// Valid reports whether s belongs to the closed status set.
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// Kind identifies the engine object type a resource mirrors.
type Kind string

const (
	KindContainer Kind = "container"
	KindPod       Kind = "pod"
	KindImage     Kind = "image"
)

// Statuses returns the subset of the closed status set a kind can hold.
func (k Kind) Statuses() []Status {
	switch k {
	case KindContainer:
		return AllStatuses
	case KindPod:
		return []Status{
			StatusCreated,
			StatusRunning,
			StatusPaused,
			StatusStopped,
			StatusExited,
			StatusDead,
			StatusUnknown,
		}
	case KindImage:
		return []Status{StatusConfigured, StatusUnknown}
	default:
		return []Status{StatusUnknown}
	}
}

// ContainerStatusFromState maps Docker and Podman container state strings.
func ContainerStatusFromState(state string) Status {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "created":
		return StatusCreated
	case "configured":
		return StatusConfigured
	case "running", "restarting":
		return StatusRunning
	case "paused":
		return StatusPaused
	case "stopping":
		return StatusStopping
	case "stopped":
		return StatusStopped
	case "removing":
		return StatusRemoving
	case "exited":
		return StatusExited
	case "dead":
		return StatusDead
	default:
		return StatusUnknown
	}
}

// PodStatusFromState maps libpod pod status strings.
func PodStatusFromState(state string) Status {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "created":
		return StatusCreated
	case "running", "degraded":
		return StatusRunning
	case "paused":
		return StatusPaused
	case "stopped":
		return StatusStopped
	case "exited":
		return StatusExited
	case "dead", "error":
		return StatusDead
	default:
		return StatusUnknown
	}
}

// ImageStatusFromTags reports configured for tagged images and unknown for
// dangling ones.
func ImageStatusFromTags(tags []string) Status {
	for _, tag := range tags {
		if tag != "" && tag != "<none>:<none>" {
			return StatusConfigured
		}
	}
	return StatusUnknown
}
