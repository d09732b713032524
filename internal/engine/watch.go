package engine

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/docker/docker/api/types/events"
	perrors "github.com/rcourtman/podsmon/internal/errors"
	"github.com/rcourtman/podsmon/internal/resources"
)

// Hint tells the monitor that a resource of Kind probably changed. Hints are
// advisory; the monitor always re-lists rather than patching from events.
type Hint struct {
	Kind   resources.Kind
	Action string
	ID     string
}

func hintFromMessage(msg events.Message) (Hint, bool) {
	var kind resources.Kind
	switch string(msg.Type) {
	case "container":
		kind = resources.KindContainer
	case "image":
		kind = resources.KindImage
	case "pod":
		kind = resources.KindPod
	default:
		return Hint{}, false
	}

	action := string(msg.Action)
	switch {
	// High-frequency actions that never change name, status or membership.
	case action == "attach", action == "resize", action == "top", action == "export",
		strings.HasPrefix(action, "exec_"):
		return Hint{}, false
	case strings.HasPrefix(action, "health_status"):
		// "health_status: healthy" and friends.
		action = "health_status"
	}

	return Hint{Kind: kind, Action: action, ID: msg.Actor.ID}, true
}

// Watch streams engine events and forwards them as hints until ctx is done
// or the stream fails. Hints are dropped when out is full.
func (c *Client) Watch(ctx context.Context, out chan<- Hint) error {
	msgs, errs := c.docker.Events(ctx, events.ListOptions{})
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if !ok {
				return perrors.WrapConnectionError("watch_events", c.host, io.EOF)
			}
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return ctx.Err()
			}
			return perrors.WrapConnectionError("watch_events", c.host, err)
		case msg, ok := <-msgs:
			if !ok {
				return perrors.WrapConnectionError("watch_events", c.host, io.EOF)
			}
			hint, ok := hintFromMessage(msg)
			if !ok {
				continue
			}
			select {
			case out <- hint:
			default:
				c.logger.Debug().Str("kind", string(hint.Kind)).Str("action", hint.Action).Msg("Refresh hint dropped; monitor busy")
			}
		}
	}
}
