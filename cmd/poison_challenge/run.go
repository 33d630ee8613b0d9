package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"poisonchallenge/challenge"
	"poisonchallenge/offsets"
	"poisonchallenge/process"

	"github.com/urfave/cli"
)

var run = cli.Command{
	Name:  "run",
	Usage: "wait for the game and keep the challenge running until interrupted",
	Action: func(c *cli.Context) error {
		settings, err := loadSettings(c)
		if err != nil {
			return err
		}
		catalog, err := loadCatalog(settings)
		if err != nil {
			return err
		}

		h := newHost(challenge.New(settings.Challenge(), catalog, settings.Lookup()), func() (process.Process, error) {
			return openProcessByName(settings)
		}, os.Stdout)
		h.debug = settings.Debug

		if settings.OffsetsFile != "" {
			fw, err := newFileWatcher(settings.OffsetsFile)
			if err != nil {
				return err
			}
			defer fw.Close()
			h.reloads = fw.Events
			h.loadCatalog = func() (*offsets.Catalog, error) {
				return loadCatalog(settings)
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Infoln("Waiting for", settings.ProcessName, "every", settings.TickInterval())
		return h.run(ctx, settings.TickInterval())
	},
}
