package deep_pointer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"poisonchallenge/process"
	"poisonchallenge/process_blob"
)

const (
	moduleBase = process.ProcessMemoryAddress(0x400000)
	heapA      = process.ProcessMemoryAddress(0x10000000)
	heapB      = process.ProcessMemoryAddress(0x20000000)
)

type countingTarget struct {
	*process_blob.ProcessDump
	reads int
}

func (c *countingTarget) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	c.reads++
	return c.ProcessDump.ReadMemory(addr, size)
}

func putPointer(buf []byte, off int, ptr process.ProcessMemoryAddress, width process.ProcessMemorySize) {
	if width == process.PointerSize32 {
		binary.LittleEndian.PutUint32(buf[off:], uint32(ptr))
		return
	}
	binary.LittleEndian.PutUint64(buf[off:], uint64(ptr))
}

// newTarget lays out module+0x10 -> heapA, heapA+0x8 -> heapB.
func newTarget(width process.ProcessMemorySize) *countingTarget {
	module := make([]byte, 0x100)
	a := make([]byte, 0x100)
	b := make([]byte, 0x100)
	putPointer(module, 0x10, heapA, width)
	putPointer(a, 0x8, heapB, width)

	dump := process_blob.NewProcessDump()
	dump.AddRegion(moduleBase, module, "rw-p")
	dump.AddRegion(heapA, a, "rw-p")
	dump.AddRegion(heapB, b, "rw-p")
	dump.SetMainModule(process.Module{Name: "game.exe", Base: moduleBase, Size: 0x100})
	dump.SetPointerSize(width)
	return &countingTarget{ProcessDump: dump}
}

func TestResolveDerefCount(t *testing.T) {
	cases := []struct {
		name   string
		chain  OffsetChain
		want   process.ProcessMemoryAddress
		derefs int
	}{
		{"direct", OffsetChain{0x20}, moduleBase + 0x20, 0},
		{"one_hop", OffsetChain{0x10, 0x30}, heapA + 0x30, 1},
		{"two_hops", OffsetChain{0x10, 0x8, 0x40}, heapB + 0x40, 2},
		{"negative_offset", OffsetChain{0x10, 0x8, -0x10}, heapB - 0x10, 2},
	}

	for _, width := range []process.ProcessMemorySize{process.PointerSize32, process.PointerSize64} {
		for _, c := range cases {
			t.Run(fmt.Sprintf("%s_ptr%d", c.name, width), func(t *testing.T) {
				target := newTarget(width)
				d, err := New(c.chain)
				if err != nil {
					t.Fatalf("New(%v): %v", c.chain, err)
				}

				addr, err := d.Resolve(target)
				if err != nil {
					t.Fatalf("Resolve: %v", err)
				}
				if addr != c.want {
					t.Fatalf("expected %s, got %s", c.want.ToString(), addr.ToString())
				}
				if target.reads != c.derefs {
					t.Fatalf("expected %d dereferences, got %d", c.derefs, target.reads)
				}
				if c.chain.Derefs() != c.derefs {
					t.Fatalf("Derefs() = %d, want %d", c.chain.Derefs(), c.derefs)
				}
			})
		}
	}
}

func TestResolveUnavailable(t *testing.T) {
	cases := []struct {
		name  string
		chain OffsetChain
		setup func(*countingTarget)
		cause error
	}{
		{
			name:  "unmapped_hop",
			chain: OffsetChain{0x10, 0x200, 0x4},
			cause: process.ErrAddressNotMapped,
		},
		{
			name:  "null_pointer",
			chain: OffsetChain{0x50, 0x4},
			cause: process.ErrInvalidPointer,
		},
		{
			name:  "exited",
			chain: OffsetChain{0x10, 0x4},
			setup: func(c *countingTarget) { c.Exit() },
			cause: process.ErrProcessExited,
		},
		{
			name:  "no_module",
			chain: OffsetChain{0x10},
			setup: func(c *countingTarget) { c.SetMainModule(process.Module{}) },
			cause: process.ErrModuleNotFound,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			target := newTarget(process.PointerSize32)
			if c.setup != nil {
				c.setup(target)
			}

			_, err := MustNew(c.chain...).Resolve(target)
			if !errors.Is(err, ErrUnavailable) {
				t.Fatalf("expected ErrUnavailable, got %v", err)
			}
			if !errors.Is(err, c.cause) {
				t.Fatalf("expected cause %v, got %v", c.cause, err)
			}
		})
	}
}

func TestEmptyChainIsConfigError(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrEmptyChain) {
		t.Fatalf("expected ErrEmptyChain, got %v", err)
	}
	if _, err := (DeepPointer{}).Resolve(newTarget(process.PointerSize64)); !errors.Is(err, ErrEmptyChain) {
		t.Fatalf("expected ErrEmptyChain from zero DeepPointer, got %v", err)
	}
}

func TestTrace(t *testing.T) {
	target := newTarget(process.PointerSize64)
	addr, hops, err := MustNew(0x10, 0x8, 0x40).Trace(target)
	if err != nil {
		t.Fatalf("Trace: %v", err)
	}
	if addr != heapB+0x40 {
		t.Fatalf("expected %s, got %s", (heapB + 0x40).ToString(), addr.ToString())
	}
	want := []Hop{
		{Address: moduleBase + 0x10, Pointer: heapA, Offset: 0x8},
		{Address: heapA + 0x8, Pointer: heapB, Offset: 0x40},
	}
	if len(hops) != len(want) {
		t.Fatalf("expected %d hops, got %d", len(want), len(hops))
	}
	for i := range want {
		if hops[i] != want[i] {
			t.Fatalf("hop %d: expected %+v, got %+v", i, want[i], hops[i])
		}
	}
}

func TestChainIsCopied(t *testing.T) {
	chain := OffsetChain{0x10, 0x8}
	d := MustNew(chain...)
	chain[0] = 0x99
	if d.Chain()[0] != 0x10 {
		t.Fatalf("DeepPointer shares storage with caller's chain")
	}
	if got := d.String(); got != "[0x10, 0x8]" {
		t.Fatalf("unexpected String(): %s", got)
	}
}
