package main

import (
	"fmt"
	"os"

	"poisonchallenge/hexdump"
	"poisonchallenge/process"
	"poisonchallenge/watcher"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli"
)

var resolve = cli.Command{
	Name:  "resolve",
	Usage: "walk one named offset chain and print every hop and the value",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "name",
			Usage: "offset name, e.g. Player_Health",
		},
		cli.IntFlag{
			Name:  "pid, p",
			Usage: "process id, the configured process name is searched when 0",
		},
		cli.StringFlag{
			Name:  "from, f",
			Usage: "resolve against a dump directory instead of a live process",
		},
		cli.StringFlag{
			Name:  "version, v",
			Usage: "game version, detected from the main module when empty",
		},
		cli.IntFlag{
			Name:  "context",
			Usage: "also hex dump this many bytes on each side of the resolved address",
		},
		cli.BoolFlag{
			Name:  "no-color",
			Usage: "plain hex dump output, the default when stdout is not a terminal",
		},
	},
	Action: func(c *cli.Context) error {
		name := c.String("name")
		if name == "" {
			return fmt.Errorf("--name is required")
		}

		settings, err := loadSettings(c)
		if err != nil {
			return err
		}
		catalog, err := loadCatalog(settings)
		if err != nil {
			return err
		}

		proc, err := openTarget(settings, c.String("from"), c.Int("pid"))
		if err != nil {
			return err
		}
		defer proc.Close()

		module, err := proc.MainModule()
		if err != nil {
			return err
		}
		version := c.String("version")
		if version == "" {
			version = detectVersion(module)
		}

		table, ok := catalog.Lookup(version)
		if !ok {
			return fmt.Errorf("%s: %s", statusNotSupported, version)
		}
		entry, err := table.Get(name)
		if err != nil {
			return err
		}

		fmt.Printf("%s %s (%s), version %s\n", name, entry.Pointer.String(), entry.Kind, version)
		fmt.Printf("Module %s at %s, %d bytes, %d-byte pointers\n", module.Name, module.Base.ToString(), module.Size, proc.PointerSize())

		addr, hops, err := entry.Pointer.Trace(proc)
		for _, hop := range hops {
			fmt.Printf("  [%s] -> %s %+d\n", hop.Address.ToString(), hop.Pointer.ToString(), hop.Offset)
		}
		if err != nil {
			return err
		}

		value, err := readKind(proc, addr, entry.Kind)
		if err != nil {
			return err
		}
		fmt.Printf("%s = %s\n", addr.ToString(), value)

		if n := c.Int("context"); n > 0 {
			return dumpAround(proc, addr, n, !c.Bool("no-color") && stdoutIsTerminal())
		}
		return nil
	},
}

// dumpAround prints the bytes surrounding addr, line aligned, marking words
// that point into mapped memory.
func dumpAround(proc process.Process, addr process.ProcessMemoryAddress, n int, color bool) error {
	options := hexdump.DefaultOptions()
	options.Color = color
	options.PointerSize = int(proc.PointerSize())
	options.BytesPerLine = 2 * options.PointerSize
	options.Mark = uint64(addr)

	line := uint64(options.BytesPerLine)
	start := (uint64(addr) - min(uint64(addr), uint64(n))) / line * line
	end := (uint64(addr) + uint64(n) + line) / line * line

	data, err := proc.ReadMemory(process.ProcessMemoryAddress(start), process.ProcessMemorySize(end-start))
	if err != nil {
		return fmt.Errorf("dump %s: %w", addr.ToString(), err)
	}
	if regions, err := proc.GetMemoryMap(); err == nil {
		options.Regions = regions
	}
	hexdump.DumpToWriter(colorable.NewColorableStdout(), data, start, options)
	return nil
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func readKind(r process.MemoryReader, addr process.ProcessMemoryAddress, kind watcher.Kind) (string, error) {
	switch kind {
	case watcher.KindInt32:
		v, err := process.Read[int32](r, addr)
		return fmt.Sprint(v), err
	case watcher.KindInt64:
		v, err := process.Read[int64](r, addr)
		return fmt.Sprint(v), err
	case watcher.KindFloat64:
		v, err := process.Read[float64](r, addr)
		return fmt.Sprint(v), err
	}
	return "", fmt.Errorf("unknown kind %q", kind)
}
