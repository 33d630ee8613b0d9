package watcher

import (
	"errors"
	"fmt"

	"poisonchallenge/deep_pointer"
)

var (
	ErrDuplicateName = errors.New("watcher name already exists")
	ErrNotFound      = errors.New("watcher not found")
	ErrKindMismatch  = errors.New("watcher kind mismatch")
)

// Collection is an insertion-ordered set of watchers keyed by name.
// Not safe for concurrent use.
type Collection struct {
	order  []Poller
	byName map[string]Poller
}

func NewCollection() *Collection {
	return &Collection{
		byName: make(map[string]Poller),
	}
}

// Add never replaces an existing watcher; build a new Collection instead.
func (c *Collection) Add(w Poller) error {
	if _, exists := c.byName[w.Name()]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateName, w.Name())
	}
	c.order = append(c.order, w)
	c.byName[w.Name()] = w
	return nil
}

func (c *Collection) Get(name string) (Poller, error) {
	w, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return w, nil
}

// Lookup is Get with the concrete value type.
func Lookup[T Scalar](c *Collection, name string) (*Watcher[T], error) {
	p, err := c.Get(name)
	if err != nil {
		return nil, err
	}
	w, ok := p.(*Watcher[T])
	if !ok {
		return nil, fmt.Errorf("%w: %q holds %s, not %s", ErrKindMismatch, name, p.Kind(), KindOf[T]())
	}
	return w, nil
}

// UpdateAll polls every enabled watcher in insertion order and returns how
// many produced a value.
func (c *Collection) UpdateAll(t deep_pointer.Target) int {
	updated := 0
	for _, w := range c.order {
		if !w.Enabled() {
			continue
		}
		if w.Poll(t) {
			updated++
		}
	}
	return updated
}

func (c *Collection) Names() []string {
	names := make([]string, len(c.order))
	for i, w := range c.order {
		names[i] = w.Name()
	}
	return names
}

func (c *Collection) Len() int {
	return len(c.order)
}
