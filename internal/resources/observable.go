package resources

import (
	perrors "github.com/rcourtman/podsmon/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ItemsChange describes a splice of the underlying sequence: at Position,
// Removed items were dropped and Added items inserted.
type ItemsChange struct {
	Position int
	Removed  int
	Added    int
}

// Options configures an Observable.
type Options struct {
	// Strict turns contract violations into panics. Intended for tests and
	// debug builds.
	Strict bool
	Logger *zerolog.Logger
}

// memberWatch holds the observer handles attached to one member. It is keyed
// by member ID so the collection never retains the member itself.
type memberWatch struct {
	status HandlerID
	name   HandlerID
}

// Observable is the shared change-notification contract embedded by every
// concrete collection. The collection owns its sequence and reports changes
// through ItemsChanged and the Emit methods; Observable turns those reports,
// plus per-member name and status changes, into structural events and
// aggregate count notifications.
type Observable struct {
	kind   Kind
	strict bool
	logger zerolog.Logger

	list    List
	closed  bool
	watches map[string]memberWatch

	added         Signal[*Resource]
	renamed       Signal[*Resource]
	removed       Signal[*Resource]
	itemsChanged  Signal[ItemsChange]
	lenChanged    Signal[int]
	countsChanged Signal[Counts]
}

// NewObservable creates an Observable for a collection of the given kind.
// Bootstrap must be called once the owning collection is constructed.
func NewObservable(kind Kind, opts Options) *Observable {
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Observable{
		kind:    kind,
		strict:  opts.Strict,
		logger:  logger.With().Str("kind", string(kind)).Logger(),
		watches: make(map[string]memberWatch),
	}
}

// Bootstrap installs the wiring between list and the Observable's events. It
// must be called exactly once per collection, before any Emit.
func (o *Observable) Bootstrap(list List) error {
	if o.list != nil {
		return o.violation("bootstrap", "", "already bootstrapped")
	}
	if list == nil {
		return o.violation("bootstrap", "", "nil list")
	}
	o.list = list

	o.itemsChanged.Connect(func(ItemsChange) {
		o.lenChanged.Emit(o.list.Len())
	})

	o.added.Connect(func(member *Resource) {
		o.notifyCounts()

		o.watches[member.ID()] = memberWatch{
			status: member.ConnectStatusChanged(func(*Resource) {
				o.notifyCounts()
			}),
			name: member.ConnectNameChanged(func(m *Resource) {
				o.renamed.Emit(m)
			}),
		}
	})

	// Registered ahead of any external subscriber, so the member is detached
	// before anyone else observes its removal.
	o.removed.Connect(func(member *Resource) {
		o.release(member)
		o.notifyCounts()
	})

	return nil
}

// Kind returns the resource kind of the collection.
func (o *Observable) Kind() Kind {
	return o.kind
}

// ItemsChanged reports a splice of the underlying sequence.
func (o *Observable) ItemsChanged(position, removed, added int) {
	if err := o.checkOpen("items_changed", ""); err != nil {
		return
	}
	o.itemsChanged.Emit(ItemsChange{Position: position, Removed: removed, Added: added})
}

// EmitAdded reports that member has been inserted into the sequence.
func (o *Observable) EmitAdded(member *Resource) error {
	if err := o.checkOpen("emit_added", member.ID()); err != nil {
		return err
	}
	if _, ok := o.watches[member.ID()]; ok {
		return o.violation("emit_added", member.ID(), "already a member")
	}
	o.added.Emit(member)
	return nil
}

// EmitRenamed reports that member's display name changed. Name changes made
// through Resource.SetName are reported automatically.
func (o *Observable) EmitRenamed(member *Resource) error {
	if err := o.checkOpen("emit_renamed", member.ID()); err != nil {
		return err
	}
	if _, ok := o.watches[member.ID()]; !ok {
		return o.violation("emit_renamed", member.ID(), "not a member")
	}
	o.renamed.Emit(member)
	return nil
}

// EmitRemoved reports that member has been dropped from the sequence.
func (o *Observable) EmitRemoved(member *Resource) error {
	if err := o.checkOpen("emit_removed", member.ID()); err != nil {
		return err
	}
	if _, ok := o.watches[member.ID()]; !ok {
		return o.violation("emit_removed", member.ID(), "not a member")
	}
	o.removed.Emit(member)
	return nil
}

func (o *Observable) ConnectAdded(fn func(*Resource)) HandlerID {
	return o.added.Connect(fn)
}

func (o *Observable) ConnectRenamed(fn func(*Resource)) HandlerID {
	return o.renamed.Connect(fn)
}

func (o *Observable) ConnectRemoved(fn func(*Resource)) HandlerID {
	return o.removed.Connect(fn)
}

// ConnectLenChanged registers fn to run whenever the sequence is spliced.
func (o *Observable) ConnectLenChanged(fn func(int)) HandlerID {
	return o.lenChanged.Connect(fn)
}

// ConnectCountsChanged registers fn to run whenever any status bucket could
// have changed. fn receives a fresh tally.
func (o *Observable) ConnectCountsChanged(fn func(Counts)) HandlerID {
	return o.countsChanged.Connect(fn)
}

// Disconnect removes a handler registered through any Connect method.
func (o *Observable) Disconnect(id HandlerID) bool {
	return o.added.Disconnect(id) ||
		o.renamed.Disconnect(id) ||
		o.removed.Disconnect(id) ||
		o.lenChanged.Disconnect(id) ||
		o.countsChanged.Disconnect(id)
}

// Close detaches every member observer and subscriber. Emitting after Close
// is a contract violation.
func (o *Observable) Close() {
	if o.closed {
		return
	}
	o.closed = true
	if o.list != nil {
		for i := 0; i < o.list.Len(); i++ {
			o.release(o.list.At(i))
		}
	}
	o.watches = make(map[string]memberWatch)

	o.added.DisconnectAll()
	o.renamed.DisconnectAll()
	o.removed.DisconnectAll()
	o.itemsChanged.DisconnectAll()
	o.lenChanged.DisconnectAll()
	o.countsChanged.DisconnectAll()
}

// Len returns the current member count.
func (o *Observable) Len() int {
	if o.list == nil {
		return 0
	}
	return o.list.Len()
}

// Count returns the number of members holding status.
func (o *Observable) Count(status Status) int {
	if o.list == nil {
		return 0
	}
	return CountStatus(o.list, status)
}

// Counts returns a fresh tally of every status bucket.
func (o *Observable) Counts() Counts {
	if o.list == nil {
		return Tally(emptyList{})
	}
	return Tally(o.list)
}

func (o *Observable) Created() int  { return o.Count(StatusCreated) }
func (o *Observable) Dead() int     { return o.Count(StatusDead) }
func (o *Observable) Exited() int   { return o.Count(StatusExited) }
func (o *Observable) Paused() int   { return o.Count(StatusPaused) }
func (o *Observable) Removing() int { return o.Count(StatusRemoving) }
func (o *Observable) Running() int  { return o.Count(StatusRunning) }
func (o *Observable) Stopped() int  { return o.Count(StatusStopped) }
func (o *Observable) Stopping() int { return o.Count(StatusStopping) }

func (o *Observable) notifyCounts() {
	if o.countsChanged.Len() == 0 {
		return
	}
	o.countsChanged.Emit(Tally(o.list))
}

func (o *Observable) release(member *Resource) {
	w, ok := o.watches[member.ID()]
	if !ok {
		return
	}
	member.Disconnect(w.status)
	member.Disconnect(w.name)
	delete(o.watches, member.ID())
}

func (o *Observable) checkOpen(op, id string) error {
	switch {
	case o.closed:
		return o.violation(op, id, "collection closed")
	case o.list == nil:
		return o.violation(op, id, "collection not bootstrapped")
	}
	return nil
}

func (o *Observable) violation(op, id, reason string) error {
	err := &perrors.ContractError{Op: op, Kind: string(o.kind), ID: id, Reason: reason}
	if o.strict {
		panic(err)
	}
	o.logger.Error().Err(err).Str("op", op).Str("id", id).Msg("Collection contract violation; event dropped")
	return err
}

type emptyList struct{}

func (emptyList) Len() int         { return 0 }
func (emptyList) At(int) *Resource { return nil }
