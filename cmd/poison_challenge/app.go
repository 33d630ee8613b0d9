package main

import (
	"fmt"
	"strconv"

	"poisonchallenge/config"
	"poisonchallenge/offsets"
	"poisonchallenge/process"
	"poisonchallenge/process_blob"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"github.com/urfave/cli"
)

const (
	usage = `keeps Momodora: Reverie Under the Moonlight permanently poisoned and
             grants a boss reward only when the boss was beaten without a hit`

	defaultConfigFile = "poison_challenge.yaml"
)

var log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "poison_challenge"))

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "poison_challenge"
	app.Usage = usage
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "settings file, created with defaults when missing",
			Value: defaultConfigFile,
		},
	}
	app.Commands = []cli.Command{
		run,
		replay,
		resolve,
		snapshot,
	}

	return app
}

func loadSettings(context *cli.Context) (*config.Settings, error) {
	return config.LoadConfig(context.GlobalString("config"))
}

// loadCatalog returns the built-in tables, extended by the settings' offsets file.
func loadCatalog(settings *config.Settings) (*offsets.Catalog, error) {
	base := offsets.DefaultCatalog()
	if settings.OffsetsFile == "" {
		return base, nil
	}
	catalog, err := offsets.LoadCatalog(settings.OffsetsFile, base)
	if err != nil {
		return nil, err
	}
	log.Infoln("Loaded offsets from", settings.OffsetsFile, "versions:", catalog.Versions())
	return catalog, nil
}

// detectVersion labels a main module. Unknown builds get a label no table
// is registered under.
func detectVersion(m process.Module) string {
	if version, ok := offsets.VersionForBuildSize(uint64(m.Size)); ok {
		return version
	}
	return "unknown build " + strconv.FormatUint(uint64(m.Size), 10)
}

// openTarget opens a dump directory when from is set, otherwise a live
// process by PID, or by the configured name when pid is 0.
func openTarget(settings *config.Settings, from string, pid int) (process.Process, error) {
	if from != "" {
		dump := process_blob.NewProcessDump()
		if err := dump.Load(from); err != nil {
			return nil, fmt.Errorf("load dump %s: %w", from, err)
		}
		return dump, nil
	}
	if pid != 0 {
		return openProcessByPID(settings, process.ProcessID(pid))
	}
	return openProcessByName(settings)
}
