package resources

import "sync/atomic"

// HandlerID identifies a connected handler. IDs are unique across all signals
// in the process, so an owner of several signals can disconnect without
// knowing which one the handler was attached to.
type HandlerID uint64

var lastHandlerID atomic.Uint64

func nextHandlerID() HandlerID {
	return HandlerID(lastHandlerID.Add(1))
}

type handler[T any] struct {
	id     HandlerID
	fn     func(T)
	active bool
}

// Signal delivers values to connected handlers in connection order.
//
// Handlers may connect or disconnect (themselves or others) while an Emit is in
// progress. A handler connected during Emit only sees later emissions; a
// handler disconnected during Emit is not called again, even within the same
// dispatch. Signal is not safe for concurrent use.
type Signal[T any] struct {
	handlers []*handler[T]
}

// Connect registers fn and returns its handler ID.
func (s *Signal[T]) Connect(fn func(T)) HandlerID {
	h := &handler[T]{id: nextHandlerID(), fn: fn, active: true}
	s.handlers = append(s.handlers, h)
	return h.id
}

// Disconnect removes the handler with the given ID. It reports whether the
// handler was connected to this signal.
func (s *Signal[T]) Disconnect(id HandlerID) bool {
	for i, h := range s.handlers {
		if h.id != id {
			continue
		}
		h.active = false
		// Copy instead of deleting in place: an Emit further up the stack
		// may still be ranging over the old slice.
		next := make([]*handler[T], 0, len(s.handlers)-1)
		next = append(next, s.handlers[:i]...)
		next = append(next, s.handlers[i+1:]...)
		s.handlers = next
		return true
	}
	return false
}

// DisconnectAll removes every handler.
func (s *Signal[T]) DisconnectAll() {
	for _, h := range s.handlers {
		h.active = false
	}
	s.handlers = nil
}

// Emit calls every connected handler with v.
func (s *Signal[T]) Emit(v T) {
	for _, h := range s.handlers {
		if h.active {
			h.fn(v)
		}
	}
}

// Len returns the number of connected handlers.
func (s *Signal[T]) Len() int {
	return len(s.handlers)
}
