// Package watcher polls typed values behind deep pointers and reports changes.
package watcher

import (
	"fmt"

	"poisonchallenge/deep_pointer"
	"poisonchallenge/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// Scalar is the closed set of value kinds a watcher can hold.
type Scalar interface {
	float64 | int32 | int64
}

type Kind string

const (
	KindFloat64 Kind = "float64"
	KindInt32   Kind = "int32"
	KindInt64   Kind = "int64"
)

func (k Kind) Valid() bool {
	switch k {
	case KindFloat64, KindInt32, KindInt64:
		return true
	}
	return false
}

// KindOf returns the Kind tag for T.
func KindOf[T Scalar]() Kind {
	var zero T
	switch any(zero).(type) {
	case int32:
		return KindInt32
	case int64:
		return KindInt64
	default:
		return KindFloat64
	}
}

// Poller is the kind-independent view of a watcher used by Collection.
type Poller interface {
	Name() string
	Kind() Kind
	Poll(t deep_pointer.Target) bool
	Enabled() bool
	Enable()
	Disable()
	Reset()
}

// WriteTarget is a Target that also accepts writes.
type WriteTarget interface {
	deep_pointer.Target
	process.MemoryWriter
}

var log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "watcher"))

// Watcher holds the previous and current value at one deep pointer.
// The pointer is resolved on every poll.
type Watcher[T Scalar] struct {
	name     string
	pointer  deep_pointer.DeepPointer
	old      T
	current  T
	enabled  bool
	primed   bool
	missing  bool
	onChange func(old, current T)
}

var _ Poller = (*Watcher[float64])(nil)

type Option[T Scalar] func(*Watcher[T])

// WithEnabled sets the initial enabled state (default true).
func WithEnabled[T Scalar](enabled bool) Option[T] {
	return func(w *Watcher[T]) {
		w.enabled = enabled
	}
}

// WithOnChange registers the callback fired when a poll reads a new value.
func WithOnChange[T Scalar](fn func(old, current T)) Option[T] {
	return func(w *Watcher[T]) {
		w.onChange = fn
	}
}

func New[T Scalar](name string, pointer deep_pointer.DeepPointer, opts ...Option[T]) *Watcher[T] {
	w := &Watcher[T]{
		name:    name,
		pointer: pointer,
		enabled: true,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Watcher[T]) Name() string                      { return w.name }
func (w *Watcher[T]) Kind() Kind                        { return KindOf[T]() }
func (w *Watcher[T]) Pointer() deep_pointer.DeepPointer { return w.pointer }
func (w *Watcher[T]) Old() T                            { return w.old }
func (w *Watcher[T]) Current() T                        { return w.current }
func (w *Watcher[T]) Enabled() bool                     { return w.enabled }

// Primed reports whether a value has been read since creation or the last Reset.
func (w *Watcher[T]) Primed() bool { return w.primed }

// Enable resumes polling from the next Poll. No change event is raised.
func (w *Watcher[T]) Enable() { w.enabled = true }

// Disable freezes old and current at their last values.
func (w *Watcher[T]) Disable() { w.enabled = false }

// Reset makes the next successful poll set old = current = the read value
// without firing the callback.
func (w *Watcher[T]) Reset() { w.primed = false }

// Poll reads the value once. It returns false when disabled or when the
// pointer could not be resolved or read; old and current are untouched then.
func (w *Watcher[T]) Poll(t deep_pointer.Target) bool {
	if !w.enabled {
		return false
	}

	addr, err := w.pointer.Resolve(t)
	if err != nil {
		w.miss(err)
		return false
	}

	v, err := process.Read[T](t, addr)
	if err != nil {
		w.miss(fmt.Errorf("read %s at %s: %w", w.Kind(), addr.ToString(), err))
		return false
	}

	if w.missing {
		w.missing = false
		log.Debugln("Watcher", w.name, "available again")
	}

	if !w.primed {
		w.old, w.current = v, v
		w.primed = true
		return true
	}

	w.old, w.current = w.current, v
	if w.old != w.current && w.onChange != nil {
		w.onChange(w.old, w.current)
	}
	return true
}

// miss logs the first failure of a streak only; polls run every tick.
func (w *Watcher[T]) miss(err error) {
	if w.missing {
		return
	}
	w.missing = true
	log.Debugln("Watcher", w.name, "unavailable:", err)
}

// Write stores v at the watcher's location. See WriteValue.
func (w *Watcher[T]) Write(t WriteTarget, v T) bool {
	return WriteValue(t, w.pointer, v)
}

// WriteValue resolves pointer and writes v there. It reports false instead
// of failing when the process is gone or the address cannot be resolved or
// written.
func WriteValue[T Scalar](t WriteTarget, pointer deep_pointer.DeepPointer, v T) bool {
	addr, err := pointer.Resolve(t)
	if err != nil {
		log.Debugln("Write to", pointer.String(), "skipped:", err)
		return false
	}

	if err := process.Write(t, addr, v); err != nil {
		log.Debugln("Write to", pointer.String(), "at", addr.ToString(), "failed:", err)
		return false
	}
	return true
}

// WriteKind writes v converted to kind. Used where the kind comes from configuration.
func WriteKind(t WriteTarget, pointer deep_pointer.DeepPointer, kind Kind, v float64) bool {
	switch kind {
	case KindInt32:
		return WriteValue(t, pointer, int32(v))
	case KindInt64:
		return WriteValue(t, pointer, int64(v))
	case KindFloat64:
		return WriteValue(t, pointer, v)
	}
	log.Warn("Write to ", pointer.String(), " skipped: unknown kind ", string(kind))
	return false
}
