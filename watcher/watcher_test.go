package watcher

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"poisonchallenge/deep_pointer"
	"poisonchallenge/process"
	"poisonchallenge/process_blob"
)

const (
	moduleBase = process.ProcessMemoryAddress(0x400000)
	heap       = process.ProcessMemoryAddress(0x10000000)

	floatOff = 0x20
	int32Off = 0x40
	int64Off = 0x48
)

var (
	floatPtr = deep_pointer.MustNew(0x10, floatOff)
	int32Ptr = deep_pointer.MustNew(0x10, int32Off)
	int64Ptr = deep_pointer.MustNew(0x10, int64Off)
	deadPtr  = deep_pointer.MustNew(0x80, 0x0) // module+0x80 holds a null pointer
)

func newGame() *process_blob.ProcessDump {
	module := make([]byte, 0x100)
	binary.LittleEndian.PutUint32(module[0x10:], uint32(heap))

	dump := process_blob.NewProcessDump()
	dump.AddRegion(moduleBase, module, "r--p")
	dump.AddRegion(heap, make([]byte, 0x100), "rw-p")
	dump.SetMainModule(process.Module{Name: "game.exe", Base: moduleBase, Size: 0x100})
	dump.SetPointerSize(process.PointerSize32)
	return dump
}

func setFloat(t *testing.T, dump *process_blob.ProcessDump, v float64) {
	t.Helper()
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	if err := dump.WriteMemory(heap+floatOff, buf); err != nil {
		t.Fatalf("seed float: %v", err)
	}
}

type change struct{ old, current float64 }

func TestPollFiresOnChangeOnly(t *testing.T) {
	game := newGame()
	setFloat(t, game, 10)

	var changes []change
	w := New("Player_Health", floatPtr, WithOnChange(func(old, current float64) {
		changes = append(changes, change{old, current})
	}))

	steps := []struct {
		value float64
		want  []change
	}{
		{10, nil}, // first poll primes, no event
		{10, nil},
		{7, []change{{10, 7}}},
		{7, []change{{10, 7}}},
		{9.5, []change{{10, 7}, {7, 9.5}}},
	}

	for i, s := range steps {
		setFloat(t, game, s.value)
		if !w.Poll(game) {
			t.Fatalf("step %d: poll failed", i)
		}
		if w.Current() != s.value {
			t.Fatalf("step %d: expected current %v, got %v", i, s.value, w.Current())
		}
		if len(changes) != len(s.want) {
			t.Fatalf("step %d: expected %d changes, got %d (%v)", i, len(s.want), len(changes), changes)
		}
		for j := range s.want {
			if changes[j] != s.want[j] {
				t.Fatalf("step %d: change %d expected %+v, got %+v", i, j, s.want[j], changes[j])
			}
		}
	}
	if w.Old() != 7 {
		t.Fatalf("expected old 7, got %v", w.Old())
	}
}

func TestDisabledWatcherIsFrozen(t *testing.T) {
	game := newGame()
	setFloat(t, game, 50)

	fired := 0
	w := New("Player_Health", floatPtr, WithOnChange(func(old, current float64) { fired++ }))
	w.Poll(game)
	setFloat(t, game, 40)
	w.Poll(game)

	w.Disable()
	for i, v := range []float64{30, 20, 10, 0} {
		setFloat(t, game, v)
		if w.Poll(game) {
			t.Fatalf("poll %d: disabled watcher reported an update", i)
		}
		if w.Old() != 50 || w.Current() != 40 {
			t.Fatalf("poll %d: expected frozen 50/40, got %v/%v", i, w.Old(), w.Current())
		}
	}
	if fired != 1 {
		t.Fatalf("expected 1 change while enabled, got %d", fired)
	}

	// Re-enabling does not raise an event by itself.
	w.Enable()
	if fired != 1 {
		t.Fatalf("Enable fired a change event")
	}
}

func TestResetSuppressesStaleChange(t *testing.T) {
	game := newGame()
	setFloat(t, game, 100)

	fired := 0
	w := New("Player_Health", floatPtr,
		WithEnabled[float64](false),
		WithOnChange(func(old, current float64) { fired++ }),
	)

	w.Enable()
	w.Poll(game)
	w.Disable()

	setFloat(t, game, 60) // damage taken while the watcher was off

	w.Enable()
	w.Reset()
	if !w.Poll(game) {
		t.Fatalf("poll failed")
	}
	if fired != 0 {
		t.Fatalf("expected no change after Reset, got %d", fired)
	}
	if w.Old() != 60 || w.Current() != 60 {
		t.Fatalf("expected old=current=60 after Reset, got %v/%v", w.Old(), w.Current())
	}

	setFloat(t, game, 55)
	w.Poll(game)
	if fired != 1 {
		t.Fatalf("expected change after reset poll, got %d", fired)
	}
}

func TestFailedResolutionKeepsValues(t *testing.T) {
	game := newGame()
	setFloat(t, game, 42)

	fired := 0
	w := New("Map_X", floatPtr, WithOnChange(func(old, current float64) { fired++ }))
	w.Poll(game)

	// Break the first hop so the chain no longer resolves.
	if err := game.WriteMemory(moduleBase+0x10, make([]byte, 4)); err == nil {
		t.Fatalf("module region should be read-only")
	}
	broken := New("Map_X", deadPtr, WithOnChange(func(old, current float64) { fired++ }))
	if broken.Poll(game) {
		t.Fatalf("expected poll through null pointer to fail")
	}
	if broken.Current() != 0 || broken.Old() != 0 {
		t.Fatalf("failed poll changed values")
	}

	game.Exit()
	if w.Poll(game) {
		t.Fatalf("expected poll of exited process to fail")
	}
	if w.Current() != 42 || w.Old() != 42 {
		t.Fatalf("expected values preserved at 42, got %v/%v", w.Old(), w.Current())
	}
	if fired != 0 {
		t.Fatalf("failed polls fired %d changes", fired)
	}
}

func TestIntegerKinds(t *testing.T) {
	game := newGame()

	w32 := New[int32]("Counter32", int32Ptr)
	w64 := New[int64]("Counter64", int64Ptr)

	if !WriteValue(game, int32Ptr, int32(-7)) || !WriteValue(game, int64Ptr, int64(1)<<40) {
		t.Fatalf("writes failed")
	}
	w32.Poll(game)
	w64.Poll(game)

	if w32.Current() != -7 {
		t.Fatalf("int32: expected -7, got %d", w32.Current())
	}
	if w64.Current() != 1<<40 {
		t.Fatalf("int64: expected %d, got %d", int64(1)<<40, w64.Current())
	}
	if w32.Kind() != KindInt32 || w64.Kind() != KindInt64 {
		t.Fatalf("unexpected kinds %s, %s", w32.Kind(), w64.Kind())
	}
}

func TestWriteThenRead(t *testing.T) {
	game := newGame()
	w := New[float64]("Poison_Remaining", floatPtr)

	if !w.Write(game, 500.0) {
		t.Fatalf("write to live process failed")
	}
	w.Poll(game)
	if w.Current() != 500.0 {
		t.Fatalf("expected 500, got %v", w.Current())
	}

	if !WriteKind(game, floatPtr, KindInt32, 3) {
		t.Fatalf("WriteKind int32 failed")
	}
	v, err := process.Read[int32](game, heap+floatOff)
	if err != nil || v != 3 {
		t.Fatalf("expected int32 3, got %d (%v)", v, err)
	}
	if WriteKind(game, floatPtr, Kind("float32"), 1) {
		t.Fatalf("WriteKind accepted an unknown kind")
	}

	game.Exit()
	if w.Write(game, 500.0) {
		t.Fatalf("write to exited process reported success")
	}
}

func TestCollection(t *testing.T) {
	c := NewCollection()
	health := New[float64]("Player_Health", floatPtr, WithEnabled[float64](false))
	mapX := New[float64]("Map_X", floatPtr)
	counter := New[int32]("Counter", int32Ptr)

	for _, w := range []Poller{mapX, health, counter} {
		if err := c.Add(w); err != nil {
			t.Fatalf("Add(%s): %v", w.Name(), err)
		}
	}

	if err := c.Add(New[float64]("Map_X", floatPtr)); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
	if got, _ := Lookup[float64](c, "Map_X"); got != mapX {
		t.Fatalf("duplicate Add replaced the original watcher")
	}

	names := c.Names()
	want := []string{"Map_X", "Player_Health", "Counter"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected insertion order %v, got %v", want, names)
		}
	}

	if _, err := c.Get("Edea"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := Lookup[float64](c, "Counter"); !errors.Is(err, ErrKindMismatch) {
		t.Fatalf("expected ErrKindMismatch, got %v", err)
	}

	game := newGame()
	setFloat(t, game, 12)
	if n := c.UpdateAll(game); n != 2 {
		t.Fatalf("expected 2 enabled watchers polled, got %d", n)
	}
	if health.Current() != 0 {
		t.Fatalf("disabled watcher was polled")
	}
	if mapX.Current() != 12 {
		t.Fatalf("expected Map_X 12, got %v", mapX.Current())
	}
}

func TestUpdateAllOrder(t *testing.T) {
	game := newGame()
	setFloat(t, game, 1)

	c := NewCollection()
	var seen []string
	var second *Watcher[float64]
	first := New("First", floatPtr, WithOnChange(func(old, current float64) {
		seen = append(seen, "First")
	}))
	second = New("Second", floatPtr, WithOnChange(func(old, current float64) {
		seen = append(seen, "Second")
		if first.Current() != current {
			t.Errorf("Second saw First at %v, expected %v", first.Current(), current)
		}
	}))
	c.Add(first)
	c.Add(second)

	c.UpdateAll(game)
	setFloat(t, game, 2)
	c.UpdateAll(game)

	if len(seen) != 2 || seen[0] != "First" || seen[1] != "Second" {
		t.Fatalf("expected callbacks in insertion order, got %v", seen)
	}
}
