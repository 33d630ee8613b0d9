package challenge

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"poisonchallenge/boss_tracker"
	"poisonchallenge/offsets"
	"poisonchallenge/process"
	"poisonchallenge/process_blob"
	"poisonchallenge/watcher"
)

const (
	moduleBase = process.ProcessMemoryAddress(0x400000)
	heap       = process.ProcessMemoryAddress(0x10000000)

	testVersion = "test"
)

// Heap layout of the fake game, every value a float64.
var fields = map[string]int{
	offsets.InGame:          0x00,
	offsets.InventoryOpen:   0x08,
	offsets.MapX:            0x10,
	offsets.MapY:            0x18,
	offsets.PlayerHealth:    0x20,
	offsets.PoisonRemaining: 0x28,
	"Edea":                  0x100,
	"Moka":                  0x108,
	"Lubella_One":           0x110,
}

var fieldOrder = []string{
	offsets.InGame, offsets.InventoryOpen, offsets.MapX, offsets.MapY,
	offsets.PlayerHealth, offsets.PoisonRemaining, "Edea", "Moka", "Lubella_One",
}

func testLookup() boss_tracker.Lookup {
	return boss_tracker.Lookup{
		{36, 17}: {"Edea"},
		{45, 18}: {"Moka", "Lubella_One"},
	}
}

func testCatalog(t *testing.T) *offsets.Catalog {
	t.Helper()
	table := offsets.NewTable(testVersion)
	for _, name := range fieldOrder {
		if err := table.Add(name, watcher.KindFloat64, 0x10, fields[name]); err != nil {
			t.Fatalf("Add(%s): %v", name, err)
		}
	}
	c := offsets.DefaultCatalog()
	if err := c.Register(table); err != nil {
		t.Fatal(err)
	}
	return c
}

func newGame() *process_blob.ProcessDump {
	module := make([]byte, 0x100)
	binary.LittleEndian.PutUint32(module[0x10:], uint32(heap))

	dump := process_blob.NewProcessDump()
	dump.AddRegion(moduleBase, module, "r--p")
	dump.AddRegion(heap, make([]byte, 0x200), "rw-p")
	dump.SetMainModule(process.Module{Name: "MomodoraRUtM.exe", Base: moduleBase, Size: 0x100})
	dump.SetPointerSize(process.PointerSize32)
	return dump
}

func set(t *testing.T, game *process_blob.ProcessDump, name string, v float64) {
	t.Helper()
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	if err := game.WriteMemory(heap.Add(fields[name]), buf); err != nil {
		t.Fatalf("set %s: %v", name, err)
	}
}

func get(t *testing.T, game *process_blob.ProcessDump, name string) float64 {
	t.Helper()
	buf, err := game.ReadMemory(heap.Add(fields[name]), 8)
	if err != nil {
		t.Fatalf("get %s: %v", name, err)
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf))
}

func advance(t *testing.T, c *Challenge) {
	t.Helper()
	if err := c.Advance(); err != nil {
		t.Fatalf("Advance: %v", err)
	}
}

// playing returns a challenge attached to a game that is in game with the
// inventory closed, standing outside any boss room with full health.
func playing(t *testing.T) (*Challenge, *process_blob.ProcessDump) {
	t.Helper()
	game := newGame()
	set(t, game, offsets.InGame, 1)
	set(t, game, offsets.PlayerHealth, 10)

	c := New(DefaultSettings(), testCatalog(t), testLookup())
	if err := c.SetVersion(testVersion); err != nil {
		t.Fatalf("SetVersion: %v", err)
	}
	c.Attach(game)
	advance(t, c)
	return c, game
}

func clearRewards(t *testing.T, game *process_blob.ProcessDump) {
	t.Helper()
	for _, name := range []string{"Edea", "Moka", "Lubella_One"} {
		set(t, game, name, 0)
	}
}

func TestPoisonSentinel(t *testing.T) {
	c, game := playing(t)

	if got := get(t, game, offsets.PoisonRemaining); got != 500 {
		t.Fatalf("poison = %v, want 500", got)
	}
	if c.HealthArmed() || len(c.CurrentBosses()) != 0 {
		t.Fatalf("nothing should be armed outside a boss room")
	}
	if got := get(t, game, "Edea"); got != 0 {
		t.Fatalf("reward written outside a boss room")
	}
}

func TestRewardWithoutHit(t *testing.T) {
	c, game := playing(t)

	set(t, game, offsets.MapX, 45)
	set(t, game, offsets.MapY, 18)
	advance(t, c)

	if !c.HealthArmed() {
		t.Fatalf("health gate should be armed in a boss room")
	}
	bosses := c.CurrentBosses()
	if len(bosses) != 2 || bosses[0] != "Moka" || bosses[1] != "Lubella_One" {
		t.Fatalf("bosses = %v", bosses)
	}
	if get(t, game, "Moka") != RewardFlag || get(t, game, "Lubella_One") != RewardFlag {
		t.Fatalf("rewards not written")
	}
	if get(t, game, "Edea") != 0 {
		t.Fatalf("reward written for another room")
	}

	// A drop of exactly the threshold is not a hit.
	clearRewards(t, game)
	set(t, game, offsets.PlayerHealth, 9)
	advance(t, c)
	if !c.HealthArmed() || get(t, game, "Moka") != RewardFlag {
		t.Fatalf("a drop of 1.0 disarmed the reward")
	}

	clearRewards(t, game)
	set(t, game, offsets.PlayerHealth, 7.99)
	advance(t, c)
	if c.HealthArmed() {
		t.Fatalf("a drop of 1.01 should disarm the reward")
	}
	if get(t, game, "Moka") != 0 || get(t, game, "Lubella_One") != 0 {
		t.Fatalf("reward written after a hit")
	}
	if c.Stats().Hits != 1 {
		t.Fatalf("hits = %d", c.Stats().Hits)
	}

	// Health recovering does not re-arm; only entering another room does.
	set(t, game, offsets.PlayerHealth, 10)
	advance(t, c)
	if c.HealthArmed() {
		t.Fatalf("healing re-armed the reward")
	}

	set(t, game, offsets.MapX, 36)
	set(t, game, offsets.MapY, 17)
	advance(t, c)
	if !c.HealthArmed() || get(t, game, "Edea") != RewardFlag {
		t.Fatalf("entering a new room should re-arm")
	}

	set(t, game, offsets.MapX, 1)
	advance(t, c)
	if c.HealthArmed() || len(c.CurrentBosses()) != 0 {
		t.Fatalf("leaving the room should disarm")
	}
}

func TestNoWritesWhenNotPlaying(t *testing.T) {
	tests := []struct {
		name      string
		inGame    float64
		inventory float64
	}{
		{"title_screen", 0, 0},
		{"loading", 2, 0},
		{"inventory_open", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			game := newGame()
			set(t, game, offsets.InGame, tt.inGame)
			set(t, game, offsets.InventoryOpen, tt.inventory)

			c := New(DefaultSettings(), testCatalog(t), testLookup())
			if err := c.SetVersion(testVersion); err != nil {
				t.Fatal(err)
			}
			c.Attach(game)
			advance(t, c)
			advance(t, c)

			if got := get(t, game, offsets.PoisonRemaining); got != 0 {
				t.Fatalf("poison written: %v", got)
			}
			if c.Stats().SentinelWrites != 0 {
				t.Fatalf("sentinel writes = %d", c.Stats().SentinelWrites)
			}
		})
	}
}

func TestLeavingGameResetsTracking(t *testing.T) {
	c, game := playing(t)

	set(t, game, offsets.MapX, 45)
	set(t, game, offsets.MapY, 18)
	advance(t, c)
	if !c.HealthArmed() {
		t.Fatalf("setup: gate not armed")
	}

	set(t, game, offsets.InGame, 0)
	advance(t, c)

	set(t, game, offsets.InGame, 1)
	set(t, game, offsets.PoisonRemaining, 0)
	clearRewards(t, game)
	advance(t, c)

	if c.HealthArmed() || len(c.CurrentBosses()) != 0 {
		t.Fatalf("tracking survived leaving the game: %v", c.CurrentBosses())
	}
	if get(t, game, "Moka") != 0 {
		t.Fatalf("reward written right after returning to the game")
	}
	if get(t, game, offsets.PoisonRemaining) != 500 {
		t.Fatalf("poison not written after returning")
	}
}

func TestSetVersionStartsFresh(t *testing.T) {
	c, game := playing(t)

	set(t, game, offsets.MapX, 36)
	set(t, game, offsets.MapY, 17)
	advance(t, c)
	if len(c.CurrentBosses()) != 1 {
		t.Fatalf("setup: bosses = %v", c.CurrentBosses())
	}

	if err := c.SetVersion(testVersion); err != nil {
		t.Fatal(err)
	}
	if c.HealthArmed() || len(c.CurrentBosses()) != 0 || c.Stats().Ticks != 0 {
		t.Fatalf("state survived SetVersion")
	}
}

func TestUnsupportedVersion(t *testing.T) {
	game := newGame()
	set(t, game, offsets.InGame, 1)

	c := New(DefaultSettings(), testCatalog(t), testLookup())
	c.Attach(game)
	if err := c.SetVersion(offsets.Version105b); err != nil {
		t.Fatalf("unsupported version should not be an error: %v", err)
	}
	if c.IsVersionSupported() || c.Version() != offsets.Version105b {
		t.Fatalf("version state: supported=%v version=%q", c.IsVersionSupported(), c.Version())
	}

	advance(t, c)
	if get(t, game, offsets.PoisonRemaining) != 0 || c.Watchers() != nil {
		t.Fatalf("unsupported version touched the game")
	}
}

func TestProcessGone(t *testing.T) {
	c, game := playing(t)
	if !c.IsProcessAvailable() {
		t.Fatalf("process should be available")
	}

	game.Exit()
	if c.IsProcessAvailable() {
		t.Fatalf("exited process reported available")
	}
	advance(t, c)

	c.Detach()
	advance(t, c)
	if c.IsProcessAvailable() {
		t.Fatalf("detached process reported available")
	}
}

func TestUnreadableMemoryKeepsTicking(t *testing.T) {
	game := newGame()
	set(t, game, offsets.InGame, 1)

	c := New(DefaultSettings(), testCatalog(t), testLookup())
	if err := c.SetVersion(testVersion); err != nil {
		t.Fatal(err)
	}

	// The root pointer is not set up yet, as while the game is loading.
	module := make([]byte, 0x100)
	broken := process_blob.NewProcessDump()
	broken.AddRegion(moduleBase, module, "r--p")
	broken.SetMainModule(process.Module{Base: moduleBase, Size: 0x100})
	broken.SetPointerSize(process.PointerSize32)

	c.Attach(broken)
	advance(t, c)
	if c.Stats().InGameTicks != 0 {
		t.Fatalf("unreadable In_Game counted as in game")
	}

	c.Attach(game)
	advance(t, c)
	if c.Stats().InGameTicks != 1 || get(t, game, offsets.PoisonRemaining) != 500 {
		t.Fatalf("challenge did not recover: %+v", c.Stats())
	}
}

func TestSetVersionRejectsBrokenTables(t *testing.T) {
	incomplete := offsets.NewTable("incomplete")
	for _, name := range fieldOrder {
		if name == offsets.PoisonRemaining || name == "Edea" {
			continue
		}
		incomplete.Add(name, watcher.KindFloat64, 0x10, fields[name])
	}

	wrongKind := offsets.NewTable("wrong_kind")
	for _, name := range fieldOrder {
		kind := watcher.KindFloat64
		if name == offsets.MapX {
			kind = watcher.KindInt32
		}
		wrongKind.Add(name, kind, 0x10, fields[name])
	}

	catalog := offsets.NewCatalog()
	catalog.Register(incomplete)
	catalog.Register(wrongKind)

	c := New(DefaultSettings(), catalog, testLookup())
	if err := c.SetVersion("incomplete"); !errors.Is(err, ErrIncompleteTable) {
		t.Fatalf("expected ErrIncompleteTable, got %v", err)
	}
	if c.IsVersionSupported() {
		t.Fatalf("broken table was activated")
	}
	if err := c.SetVersion("wrong_kind"); !errors.Is(err, watcher.ErrKindMismatch) {
		t.Fatalf("expected ErrKindMismatch, got %v", err)
	}
}

func TestDefaultCatalogIsComplete(t *testing.T) {
	c := New(DefaultSettings(), nil, nil)
	if err := c.SetVersion(offsets.Version107); err != nil {
		t.Fatalf("SetVersion(%s): %v", offsets.Version107, err)
	}
	if !c.IsVersionSupported() || c.Watchers().Len() != 5 {
		t.Fatalf("default table not activated")
	}
}

func TestSetCatalog(t *testing.T) {
	c, game := playing(t)

	broken := offsets.NewTable(testVersion)
	for _, name := range fieldOrder {
		if name != offsets.PoisonRemaining {
			broken.Add(name, watcher.KindFloat64, 0x10, fields[name])
		}
	}
	brokenCatalog := offsets.NewCatalog()
	brokenCatalog.Register(broken)

	if err := c.SetCatalog(brokenCatalog); !errors.Is(err, ErrIncompleteTable) {
		t.Fatalf("SetCatalog(broken) error = %v, want ErrIncompleteTable", err)
	}
	if !c.IsVersionSupported() || c.Stats().Ticks != 1 {
		t.Fatalf("broken catalog disturbed the running challenge")
	}

	if err := c.SetCatalog(testCatalog(t)); err != nil {
		t.Fatalf("SetCatalog() error = %v", err)
	}
	if !c.IsVersionSupported() || c.Stats().Ticks != 0 {
		t.Fatalf("reloaded catalog did not start fresh: %+v", c.Stats())
	}
	advance(t, c)
	if get(t, game, offsets.PoisonRemaining) != 500 {
		t.Fatalf("poison not written after reload")
	}

	if err := c.SetCatalog(offsets.NewCatalog()); err != nil {
		t.Fatalf("SetCatalog(empty) error = %v", err)
	}
	if c.IsVersionSupported() || c.Version() != testVersion {
		t.Fatalf("version without a table still supported")
	}
}
