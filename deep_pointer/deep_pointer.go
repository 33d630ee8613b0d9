// Package deep_pointer resolves module-relative offset chains to concrete
// addresses by walking pointers in a foreign process.
package deep_pointer

import (
	"errors"
	"fmt"
	"strings"

	"poisonchallenge/process"
)

var (
	// ErrUnavailable marks a transient resolution failure: the process is
	// gone, the module is not mapped, or a hop read bad memory. Callers
	// retry next tick.
	ErrUnavailable = errors.New("deep pointer unavailable")

	// ErrEmptyChain is a configuration error.
	ErrEmptyChain = errors.New("offset chain is empty")
)

// Target is what a chain is resolved against.
type Target interface {
	process.MemoryReader
	process.ModuleProcess
}

// OffsetChain is a list of byte offsets. The first is relative to the main
// module base; each following one is added after dereferencing the pointer
// at the current address.
type OffsetChain []int

func (c OffsetChain) Validate() error {
	if len(c) == 0 {
		return ErrEmptyChain
	}
	return nil
}

// Derefs is the number of pointer reads a resolution performs.
func (c OffsetChain) Derefs() int {
	if len(c) == 0 {
		return 0
	}
	return len(c) - 1
}

func (c OffsetChain) String() string {
	parts := make([]string, len(c))
	for i, off := range c {
		if off < 0 {
			parts[i] = fmt.Sprintf("-0x%X", -off)
		} else {
			parts[i] = fmt.Sprintf("0x%X", off)
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// DeepPointer is a validated chain. It holds no addresses, so it stays
// correct when the module is relocated between launches.
type DeepPointer struct {
	chain OffsetChain
}

func New(chain OffsetChain) (DeepPointer, error) {
	if err := chain.Validate(); err != nil {
		return DeepPointer{}, err
	}
	return DeepPointer{chain: append(OffsetChain(nil), chain...)}, nil
}

// MustNew is New for chains known at compile time.
func MustNew(offsets ...int) DeepPointer {
	d, err := New(offsets)
	if err != nil {
		panic(err)
	}
	return d
}

func (d DeepPointer) Chain() OffsetChain {
	return append(OffsetChain(nil), d.chain...)
}

func (d DeepPointer) String() string {
	return d.chain.String()
}

// Hop records one dereference: the pointer read at Address plus Offset gives the next address.
type Hop struct {
	Address process.ProcessMemoryAddress
	Pointer process.ProcessMemoryAddress
	Offset  int
}

// Resolve walks the chain and returns the final address. The last offset is
// added, not dereferenced, so the caller can read or write any width there.
func (d DeepPointer) Resolve(t Target) (process.ProcessMemoryAddress, error) {
	return d.walk(t, nil)
}

// Trace is Resolve that also reports every hop.
func (d DeepPointer) Trace(t Target) (process.ProcessMemoryAddress, []Hop, error) {
	var hops []Hop
	addr, err := d.walk(t, func(h Hop) {
		hops = append(hops, h)
	})
	return addr, hops, err
}

func (d DeepPointer) walk(t Target, onHop func(Hop)) (process.ProcessMemoryAddress, error) {
	if len(d.chain) == 0 {
		return 0, ErrEmptyChain
	}

	if !t.IsAlive() {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, process.ErrProcessExited)
	}

	module, err := t.MainModule()
	if err != nil {
		return 0, fmt.Errorf("%w: main module: %w", ErrUnavailable, err)
	}

	width := t.PointerSize()
	current := module.Base.Add(d.chain[0])

	for i, off := range d.chain[1:] {
		ptr, err := process.ReadPointer(t, current, width)
		if err != nil {
			return 0, fmt.Errorf("%w: step %d read at %s: %w", ErrUnavailable, i, current.ToString(), err)
		}
		if ptr == 0 {
			return 0, fmt.Errorf("%w: step %d at %s: %w", ErrUnavailable, i, current.ToString(), process.ErrInvalidPointer)
		}
		if onHop != nil {
			onHop(Hop{Address: current, Pointer: ptr, Offset: off})
		}
		current = ptr.Add(off)
	}

	return current, nil
}
