// Package offsets holds the per-version tables that map semantic names to
// offset chains.
package offsets

import (
	"errors"
	"fmt"

	"poisonchallenge/deep_pointer"
	"poisonchallenge/watcher"
)

const (
	InGame          = "In_Game"
	InventoryOpen   = "Inventory_Open"
	MapX            = "Map_X"
	MapY            = "Map_Y"
	PlayerHealth    = "Player_Health"
	PoisonRemaining = "Poison_Remaining"
)

var (
	ErrUnknownName   = errors.New("unknown offset name")
	ErrDuplicateName = errors.New("offset name already defined")
	ErrUnknownKind   = errors.New("unknown value kind")
)

// Entry is one named location.
type Entry struct {
	Name    string
	Pointer deep_pointer.DeepPointer
	Kind    watcher.Kind
}

// Table maps names to entries for one game version.
type Table struct {
	version string
	order   []string
	entries map[string]Entry
}

func NewTable(version string) *Table {
	return &Table{
		version: version,
		entries: make(map[string]Entry),
	}
}

func (t *Table) Version() string {
	return t.version
}

// Add registers name. Empty chains, unknown kinds and duplicate names are rejected.
func (t *Table) Add(name string, kind watcher.Kind, chain ...int) error {
	if !kind.Valid() {
		return fmt.Errorf("%s %q: %w: %q", t.version, name, ErrUnknownKind, kind)
	}
	if _, exists := t.entries[name]; exists {
		return fmt.Errorf("%s: %w: %q", t.version, ErrDuplicateName, name)
	}
	pointer, err := deep_pointer.New(chain)
	if err != nil {
		return fmt.Errorf("%s %q: %w", t.version, name, err)
	}

	t.order = append(t.order, name)
	t.entries[name] = Entry{Name: name, Pointer: pointer, Kind: kind}
	return nil
}

// mustAdd is Add for the built-in tables.
func (t *Table) mustAdd(name string, chain ...int) {
	if err := t.Add(name, watcher.KindFloat64, chain...); err != nil {
		panic(err)
	}
}

func (t *Table) Get(name string) (Entry, error) {
	e, ok := t.entries[name]
	if !ok {
		return Entry{}, fmt.Errorf("%s: %w: %q", t.version, ErrUnknownName, name)
	}
	return e, nil
}

func (t *Table) Has(name string) bool {
	_, ok := t.entries[name]
	return ok
}

// Names returns entry names in definition order.
func (t *Table) Names() []string {
	return append([]string(nil), t.order...)
}

func (t *Table) Len() int {
	return len(t.order)
}
