// Package challenge runs the poison challenge against an attached game: every
// tick it keeps the poison counter topped up and grants the reward of a boss
// beaten without taking a hit.
package challenge

import (
	"errors"
	"fmt"
	"strings"

	"poisonchallenge/boss_tracker"
	"poisonchallenge/deep_pointer"
	"poisonchallenge/offsets"
	"poisonchallenge/watcher"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// ErrIncompleteTable means an offset table lacks an entry the challenge needs.
var ErrIncompleteTable = errors.New("offset table is incomplete")

// RewardFlag is written to a boss reward location to grant it.
const RewardFlag = 1.0

type Settings struct {
	// PoisonSentinel is kept in Poison_Remaining while playing. Values close
	// to zero let the poison run out between ticks.
	PoisonSentinel float64
	// HitThreshold is the health drop above which a hit is assumed.
	HitThreshold float64
}

func DefaultSettings() Settings {
	return Settings{
		PoisonSentinel: 500,
		HitThreshold:   1,
	}
}

// Stats counts what Advance did since the last SetVersion.
type Stats struct {
	Ticks          int
	InGameTicks    int
	SentinelWrites int
	RewardWrites   int
	Hits           int
}

// Challenge is not safe for concurrent use.
type Challenge struct {
	settings Settings
	catalog  *offsets.Catalog
	lookup   boss_tracker.Lookup

	proc    watcher.WriteTarget
	version string
	table   *offsets.Table

	watchers  *watcher.Collection
	tracker   *boss_tracker.Tracker
	inGame    *watcher.Watcher[float64]
	inventory *watcher.Watcher[float64]
	mapX      *watcher.Watcher[float64]
	mapY      *watcher.Watcher[float64]
	health    *watcher.Watcher[float64]
	rebuild   bool
	playing   bool

	stats Stats
	log   *logger.Logger
}

func New(settings Settings, catalog *offsets.Catalog, lookup boss_tracker.Lookup) *Challenge {
	if catalog == nil {
		catalog = offsets.DefaultCatalog()
	}
	if lookup == nil {
		lookup = boss_tracker.DefaultLookup()
	}
	return &Challenge{
		settings: settings,
		catalog:  catalog,
		lookup:   lookup,
		log:      logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "challenge")),
	}
}

// Attach sets the process Advance works on. Tracking state starts fresh.
func (c *Challenge) Attach(proc watcher.WriteTarget) {
	c.proc = proc
	c.rebuild = c.table != nil
}

func (c *Challenge) Detach() {
	c.proc = nil
	c.rebuild = c.table != nil
}

// SetVersion selects the offset table for version and builds a fresh watcher
// set and tracker. A version without a table is not an error; Advance then
// does nothing until another version is set.
func (c *Challenge) SetVersion(version string) error {
	c.version = version
	c.stats = Stats{}
	c.clear()

	table, ok := c.catalog.Lookup(version)
	if !ok {
		c.log.Warn("Version not supported: ", version)
		return nil
	}
	if err := c.validate(table); err != nil {
		return err
	}

	c.table = table
	c.log.Infoln("Supported version detected:", version)
	return c.build()
}

// SetCatalog swaps the offset tables. When a version is selected its new
// table is checked first; a broken table leaves the challenge untouched.
// Otherwise the current version is selected again from the new catalog.
func (c *Challenge) SetCatalog(catalog *offsets.Catalog) error {
	if catalog == nil {
		catalog = offsets.DefaultCatalog()
	}
	if c.version == "" {
		c.catalog = catalog
		return nil
	}
	if table, ok := catalog.Lookup(c.version); ok {
		if err := c.validate(table); err != nil {
			return err
		}
	}

	c.catalog = catalog
	return c.SetVersion(c.version)
}

func (c *Challenge) clear() {
	c.table = nil
	c.watchers = nil
	c.tracker = nil
	c.inGame, c.inventory, c.mapX, c.mapY, c.health = nil, nil, nil, nil, nil
	c.rebuild = false
	c.playing = false
}

func (c *Challenge) validate(table *offsets.Table) error {
	var missing []string
	for _, name := range []string{offsets.InGame, offsets.InventoryOpen, offsets.MapX, offsets.MapY, offsets.PlayerHealth} {
		e, err := table.Get(name)
		if err != nil {
			missing = append(missing, name)
			continue
		}
		if e.Kind != watcher.KindFloat64 {
			return fmt.Errorf("%s %q: %w: want %s, have %s", table.Version(), name, watcher.ErrKindMismatch, watcher.KindFloat64, e.Kind)
		}
	}
	if !table.Has(offsets.PoisonRemaining) {
		missing = append(missing, offsets.PoisonRemaining)
	}
	for _, name := range c.lookup.Names() {
		if !table.Has(name) {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%s: %w: missing %s", table.Version(), ErrIncompleteTable, strings.Join(missing, ", "))
	}
	return nil
}

// build creates the watcher set for the current table.
func (c *Challenge) build() error {
	pointer := func(name string) deep_pointer.DeepPointer {
		e, _ := c.table.Get(name) // checked by validate
		return e.Pointer
	}

	c.inGame = watcher.New[float64](offsets.InGame, pointer(offsets.InGame))
	c.inventory = watcher.New[float64](offsets.InventoryOpen, pointer(offsets.InventoryOpen))
	c.mapX = watcher.New(offsets.MapX, pointer(offsets.MapX), watcher.WithOnChange(func(old, current float64) {
		c.log.Debugln("Map:", current, c.mapY.Current(), "was", old, c.mapY.Old())
		c.tracker.Update(current, c.mapY.Current())
	}))
	c.mapY = watcher.New(offsets.MapY, pointer(offsets.MapY), watcher.WithOnChange(func(old, current float64) {
		c.log.Debugln("Map:", c.mapX.Current(), current, "was", c.mapX.Old(), old)
		c.tracker.Update(c.mapX.Current(), current)
	}))
	c.health = watcher.New(offsets.PlayerHealth, pointer(offsets.PlayerHealth),
		watcher.WithEnabled[float64](false),
		watcher.WithOnChange(c.onHealthChange),
	)

	c.watchers = watcher.NewCollection()
	for _, w := range []watcher.Poller{c.inGame, c.inventory, c.mapX, c.mapY, c.health} {
		if err := c.watchers.Add(w); err != nil {
			return err
		}
	}
	c.tracker = boss_tracker.New(c.lookup, c.health)
	c.rebuild = false
	return nil
}

func (c *Challenge) onHealthChange(old, current float64) {
	c.log.Debugln("Health difference (current-old):", current-old)
	if old-current > c.settings.HitThreshold {
		c.log.Infoln("Hit taken in", strings.Join(c.tracker.Current(), " & "), "reward disarmed")
		c.stats.Hits++
		c.health.Disable()
	}
}

// Advance runs one tick. Transient problems such as a closed game, an
// unsupported version or unreadable memory end the tick early without error;
// only a broken offset table is reported.
func (c *Challenge) Advance() error {
	if !c.IsProcessAvailable() || c.table == nil {
		return nil
	}
	c.stats.Ticks++

	if c.rebuild {
		if err := c.build(); err != nil {
			return err
		}
	}

	// Out of game the whole watcher set is rebuilt on the next tick, so a
	// save loaded later starts from fresh positions and a disarmed gate.
	c.inGame.Poll(c.proc)
	if !c.inGame.Primed() || c.inGame.Current() != 1 {
		if c.playing {
			c.log.Infoln("Left the game")
			c.playing = false
		}
		c.rebuild = true
		return nil
	}
	if !c.playing {
		c.log.Infoln("In game")
		c.playing = true
	}
	c.stats.InGameTicks++

	c.watchers.UpdateAll(c.proc)

	if !c.inventory.Primed() || c.inventory.Current() != 0 {
		return nil
	}

	if c.write(offsets.PoisonRemaining, c.settings.PoisonSentinel) {
		c.stats.SentinelWrites++
	}

	if !c.health.Enabled() {
		return nil
	}
	for _, boss := range c.tracker.Current() {
		if c.write(boss, RewardFlag) {
			c.stats.RewardWrites++
		}
	}
	return nil
}

func (c *Challenge) write(name string, v float64) bool {
	e, err := c.table.Get(name)
	if err != nil {
		c.log.Warn("Write skipped: ", err)
		return false
	}
	return watcher.WriteKind(c.proc, e.Pointer, e.Kind, v)
}

// IsProcessAvailable reports whether a process is attached and still running.
func (c *Challenge) IsProcessAvailable() bool {
	return c.proc != nil && c.proc.IsAlive()
}

func (c *Challenge) IsVersionSupported() bool {
	return c.table != nil
}

func (c *Challenge) Version() string {
	return c.version
}

// CurrentBosses returns the reward flags armed for the current room.
func (c *Challenge) CurrentBosses() []string {
	if c.tracker == nil {
		return nil
	}
	return c.tracker.Current()
}

// HealthArmed reports whether reward writes are currently allowed.
func (c *Challenge) HealthArmed() bool {
	return c.health != nil && c.health.Enabled()
}

func (c *Challenge) Stats() Stats {
	return c.stats
}

// Watchers exposes the current watcher set, nil without a supported version.
func (c *Challenge) Watchers() *watcher.Collection {
	return c.watchers
}
