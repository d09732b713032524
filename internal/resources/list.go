package resources

import (
	"errors"
	"fmt"
)

// Member is implemented by every concrete resource type.
type Member interface {
	Base() *Resource
}

// collection is the ordered, id-indexed sequence shared by the concrete lists.
// It owns its members and reports every splice to the embedded Observable.
type collection[T Member] struct {
	*Observable

	items []T
	index map[string]int
}

func newCollection[T Member](kind Kind, opts Options) *collection[T] {
	c := &collection[T]{
		Observable: NewObservable(kind, opts),
		index:      make(map[string]int),
	}
	if err := c.Bootstrap(c); err != nil {
		panic(fmt.Sprintf("bootstrap %s collection: %v", kind, err))
	}
	return c
}

// Len returns the number of members.
func (c *collection[T]) Len() int {
	return len(c.items)
}

// At returns the member at position i.
func (c *collection[T]) At(i int) *Resource {
	return c.items[i].Base()
}

// Get looks a member up by ID.
func (c *collection[T]) Get(id string) (T, bool) {
	i, ok := c.index[id]
	if !ok {
		var zero T
		return zero, false
	}
	return c.items[i], true
}

// Items returns a copy of the current sequence.
func (c *collection[T]) Items() []T {
	return append([]T(nil), c.items...)
}

func (c *collection[T]) insert(item T) error {
	id := item.Base().ID()
	if _, ok := c.index[id]; ok {
		return fmt.Errorf("insert %s %s: already present", c.Kind(), id)
	}
	c.items = append(c.items, item)
	position := len(c.items) - 1
	c.index[id] = position

	c.ItemsChanged(position, 0, 1)
	return c.EmitAdded(item.Base())
}

func (c *collection[T]) remove(id string) error {
	position, ok := c.index[id]
	if !ok {
		return fmt.Errorf("remove %s %s: not present", c.Kind(), id)
	}
	item := c.items[position]

	c.items = append(c.items[:position], c.items[position+1:]...)
	delete(c.index, id)
	for i := position; i < len(c.items); i++ {
		c.index[c.items[i].Base().ID()] = i
	}

	c.ItemsChanged(position, 1, 0)
	return c.EmitRemoved(item.Base())
}

// sync reconciles the collection against a full engine listing. ids holds
// the listing's identities in order; create builds a member for listing
// entry i, update refreshes an existing member from it. Members absent from
// the listing are removed first, then new ones are appended in listing order.
func (c *collection[T]) sync(ids []string, create func(i int) T, update func(item T, i int)) error {
	wanted := make(map[string]int, len(ids))
	for i, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := wanted[id]; !dup {
			wanted[id] = i
		}
	}

	var errs []error

	stale := make([]string, 0)
	for _, item := range c.items {
		if _, ok := wanted[item.Base().ID()]; !ok {
			stale = append(stale, item.Base().ID())
		}
	}
	for _, id := range stale {
		errs = append(errs, c.remove(id))
	}

	for i, id := range ids {
		if wanted[id] != i || id == "" {
			continue
		}
		if existing, ok := c.Get(id); ok {
			update(existing, i)
			continue
		}
		errs = append(errs, c.insert(create(i)))
	}

	return errors.Join(errs...)
}

// clear removes every member, last first.
func (c *collection[T]) clear() error {
	var errs []error
	for len(c.items) > 0 {
		errs = append(errs, c.remove(c.items[len(c.items)-1].Base().ID()))
	}
	return errors.Join(errs...)
}
