package offsets

import (
	"fmt"
	"os"

	"poisonchallenge/watcher"

	"gopkg.in/yaml.v2"
)

// catalogFile is the YAML layout accepted by LoadCatalog:
//
//	versions:
//	  "1.07":
//	    - name: Map_X
//	      chain: [0x2371EA8, 0x4, 0x7B0]
//	      kind: float64
type catalogFile struct {
	Versions map[string][]entryFile `yaml:"versions"`
}

type entryFile struct {
	Name  string `yaml:"name"`
	Chain []int  `yaml:"chain"`
	Kind  string `yaml:"kind"`
}

// LoadCatalog reads tables from a YAML file on top of base. A version
// present in the file replaces the built-in table for that version.
func LoadCatalog(filePath string, base *Catalog) (*Catalog, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return ParseCatalog(data, base)
}

func ParseCatalog(data []byte, base *Catalog) (*Catalog, error) {
	var file catalogFile
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse offsets: %w", err)
	}

	c := NewCatalog()
	if base != nil {
		for _, v := range base.Versions() {
			t, _ := base.Lookup(v)
			c.Register(t)
		}
	}

	for version, entries := range file.Versions {
		t := NewTable(version)
		for _, e := range entries {
			kind := watcher.Kind(e.Kind)
			if kind == "" {
				kind = watcher.KindFloat64
			}
			if err := t.Add(e.Name, kind, e.Chain...); err != nil {
				return nil, err
			}
		}
		if err := c.Register(t); err != nil {
			return nil, err
		}
	}

	return c, nil
}
