package resources

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainerStatusFromState(t *testing.T) {
	tests := []struct {
		state string
		want  Status
	}{
		{"running", StatusRunning},
		{"Running", StatusRunning},
		{" restarting ", StatusRunning},
		{"created", StatusCreated},
		{"configured", StatusConfigured},
		{"paused", StatusPaused},
		{"stopping", StatusStopping},
		{"stopped", StatusStopped},
		{"removing", StatusRemoving},
		{"exited", StatusExited},
		{"dead", StatusDead},
		{"", StatusUnknown},
		{"bogus", StatusUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.state, func(t *testing.T) {
			assert.Equal(t, tc.want, ContainerStatusFromState(tc.state))
		})
	}
}

func TestContainerStatusesReachableFromEngineStates(t *testing.T) {
	states := []string{"created", "configured", "running", "paused", "stopping", "stopped", "removing", "exited", "dead", "bogus"}
	reached := make(map[Status]bool)
	for _, state := range states {
		reached[ContainerStatusFromState(state)] = true
	}

	for _, status := range KindContainer.Statuses() {
		assert.True(t, reached[status], "container status %s has no engine state", status)
	}
}

func TestPodStatusFromState(t *testing.T) {
	tests := map[string]Status{
		"Created":  StatusCreated,
		"Running":  StatusRunning,
		"Degraded": StatusRunning,
		"Paused":   StatusPaused,
		"Stopped":  StatusStopped,
		"Exited":   StatusExited,
		"Dead":     StatusDead,
		"Error":    StatusDead,
		"":         StatusUnknown,
	}
	for state, want := range tests {
		assert.Equal(t, want, PodStatusFromState(state), "state %q", state)
	}
}

func TestImageStatusFromTags(t *testing.T) {
	assert.Equal(t, StatusConfigured, ImageStatusFromTags([]string{"alpine:3"}))
	assert.Equal(t, StatusConfigured, ImageStatusFromTags([]string{"<none>:<none>", "alpine:3"}))
	assert.Equal(t, StatusUnknown, ImageStatusFromTags([]string{"<none>:<none>"}))
	assert.Equal(t, StatusUnknown, ImageStatusFromTags(nil))
}

func TestKindStatusesAreValid(t *testing.T) {
	for _, kind := range []Kind{KindContainer, KindPod, KindImage} {
		for _, status := range kind.Statuses() {
			assert.True(t, status.Valid(), "%s: %s", kind, status)
		}
	}
	assert.Len(t, KindContainer.Statuses(), len(AllStatuses))
	assert.False(t, Status("restarting").Valid())
}

func TestResourceInvalidStatusNormalized(t *testing.T) {
	r := NewResource(KindContainer, "a", "a", Status("bogus"))
	assert.Equal(t, StatusUnknown, r.Status())

	r.SetStatus(StatusRunning)
	r.SetStatus(Status("nope"))
	assert.Equal(t, StatusUnknown, r.Status())
}
