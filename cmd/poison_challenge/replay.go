package main

import (
	"fmt"
	"strings"

	"poisonchallenge/challenge"
	"poisonchallenge/process_blob"

	"github.com/urfave/cli"
)

var replay = cli.Command{
	Name:  "replay",
	Usage: "run challenge ticks against a saved dump instead of the live game",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "from, f",
			Usage: "dump directory written by snapshot",
		},
		cli.IntFlag{
			Name:  "ticks, n",
			Usage: "number of ticks to run",
			Value: 1,
		},
		cli.StringFlag{
			Name:  "version, v",
			Usage: "game version, detected from the dump's main module when empty",
		},
		cli.StringFlag{
			Name:  "out, o",
			Usage: "save the dump with the challenge's writes applied",
		},
	},
	Action: func(c *cli.Context) error {
		from := c.String("from")
		if from == "" {
			return fmt.Errorf("--from is required")
		}
		if c.Int("ticks") < 1 {
			return fmt.Errorf("--ticks must be at least 1")
		}

		settings, err := loadSettings(c)
		if err != nil {
			return err
		}
		catalog, err := loadCatalog(settings)
		if err != nil {
			return err
		}

		dump := process_blob.NewProcessDump()
		if err := dump.Load(from); err != nil {
			return fmt.Errorf("load dump %s: %w", from, err)
		}

		version := c.String("version")
		if version == "" {
			module, err := dump.MainModule()
			if err != nil {
				return err
			}
			version = detectVersion(module)
		}

		ch := challenge.New(settings.Challenge(), catalog, settings.Lookup())
		if err := ch.SetVersion(version); err != nil {
			return err
		}
		if !ch.IsVersionSupported() {
			return fmt.Errorf("%s: %s", statusNotSupported, version)
		}
		ch.Attach(dump)

		for i := 0; i < c.Int("ticks"); i++ {
			if err := ch.Advance(); err != nil {
				return err
			}
		}

		s := ch.Stats()
		fmt.Printf("Version %s: %d ticks, %d in game, %d poison writes, %d reward writes, %d hits\n",
			version, s.Ticks, s.InGameTicks, s.SentinelWrites, s.RewardWrites, s.Hits)
		fmt.Printf("Tracking [%s], reward armed: %v\n", strings.Join(ch.CurrentBosses(), ", "), ch.HealthArmed())

		if out := c.String("out"); out != "" {
			if err := dump.Save(out); err != nil {
				return err
			}
			fmt.Printf("Dump saved to %s\n", out)
		}
		return nil
	},
}
