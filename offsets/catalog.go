package offsets

import (
	"fmt"
	"sort"
)

const (
	Version105b = "1.05b"
	Version107  = "1.07"
)

// Known main module sizes per build. 1.05b is recognised but has no verified
// table, so it resolves to an unsupported version.
var buildSizes = map[uint64]string{
	40222720: Version107,
	39690240: Version105b,
}

// VersionForBuildSize maps the main module image size to a version label.
func VersionForBuildSize(size uint64) (string, bool) {
	v, ok := buildSizes[size]
	return v, ok
}

// Catalog holds one table per supported version.
type Catalog struct {
	tables map[string]*Table
}

func NewCatalog() *Catalog {
	return &Catalog{tables: make(map[string]*Table)}
}

// Register adds or replaces the table for its version.
func (c *Catalog) Register(t *Table) error {
	if t.Version() == "" {
		return fmt.Errorf("table without version")
	}
	c.tables[t.Version()] = t
	return nil
}

// Lookup returns the table for version; false means the version is unsupported.
func (c *Catalog) Lookup(version string) (*Table, bool) {
	t, ok := c.tables[version]
	return t, ok
}

func (c *Catalog) Versions() []string {
	versions := make([]string, 0, len(c.tables))
	for v := range c.tables {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}

// DefaultCatalog returns the built-in tables.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	c.Register(table107())
	return c
}

func table107() *Table {
	t := NewTable(Version107)
	t.mustAdd(InGame, 0x2379600, 0x0, 0x4, 0x5B0)
	t.mustAdd(InventoryOpen, 0x2371EA8, 0x4, 0xAD0)
	t.mustAdd(MapX, 0x2371EA8, 0x4, 0x7B0)
	t.mustAdd(MapY, 0x2371EA8, 0x4, 0x7C0)
	t.mustAdd(PlayerHealth, 0x2371EA8, 0x4, 0x0)
	t.mustAdd(PoisonRemaining, 0x25A2B3C, 0xC, 0xBC, 0x8, 0x4, 0xAC0)

	// Boss reward flags
	t.mustAdd("Edea", 0x237E54C, 0x4, 0x140, 0x4, 0x1460)
	t.mustAdd("Moka", 0x237C39C, 0x84, 0x140, 0x4, 0x1460)
	t.mustAdd("Lubella_One", 0x237E54C, 0xC, 0x13C, 0x4, 0x1460)
	t.mustAdd("Frida", 0x237E54C, 0x34, 0x13C, 0x4, 0x1460)
	t.mustAdd("Lubella_Two", 0x236FE44, 0x0, 0x0, 0x4, 0x1460)
	t.mustAdd("Arsonist", 0x2332CB4, 0x318, 0xC, 0x13C, 0x13C, 0x13C, 0x4, 0x1460)
	t.mustAdd("Fennel", 0x236FE44, 0x0, 0x0, 0x4, 0x1460)
	t.mustAdd("Lupiar", 0x2332CB4, 0x8E0, 0xC, 0x13C, 0x4, 0x1460)
	t.mustAdd("Magnolia", 0x236FE44, 0x0, 0x0, 0x4, 0x1460)
	t.mustAdd("Queen", 0x236FE44, 0x0, 0x4C, 0x298, 0x13C, 0x298, 0x140, 0x140, 0x4, 0x1460)
	t.mustAdd("Choir", 0x236FE44, 0x0, 0x0, 0x4, 0x1460)
	return t
}
