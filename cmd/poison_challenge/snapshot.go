package main

import (
	"fmt"

	"poisonchallenge/process"
	"poisonchallenge/process_blob"

	"github.com/urfave/cli"
)

var snapshot = cli.Command{
	Name:  "snapshot",
	Usage: "save the game's readable memory to a directory for replay and resolve",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "out, o",
			Usage: "output directory for the dump",
		},
		cli.IntFlag{
			Name:  "pid, p",
			Usage: "process id, the configured process name is searched when 0",
		},
		cli.IntFlag{
			Name:  "max-region",
			Usage: "skip regions larger than this many MiB",
			Value: process_blob.DefaultMaxRegionSize >> 20,
		},
	},
	Action: func(c *cli.Context) error {
		out := c.String("out")
		if out == "" {
			return fmt.Errorf("--out is required")
		}

		settings, err := loadSettings(c)
		if err != nil {
			return err
		}

		proc, err := openTarget(settings, "", c.Int("pid"))
		if err != nil {
			return err
		}
		defer proc.Close()

		maxRegion := process.ProcessMemorySize(c.Int("max-region")) << 20
		dump, err := process_blob.Capture(proc, settings.ProcessName, maxRegion)
		if err != nil {
			return err
		}

		fmt.Printf("Captured %d regions from process %d, main module %s (%s)\n",
			len(dump.Blobs), dump.PID, dump.Module.Name, detectVersion(dump.Module))
		if err := dump.Save(out); err != nil {
			return err
		}
		fmt.Printf("Dump saved to %s\n", out)
		return nil
	},
}
