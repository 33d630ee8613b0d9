package main

import (
	"strings"

	"poisonchallenge/config"
	"poisonchallenge/process"
	"poisonchallenge/process_finder"
	"poisonchallenge/process_linux"
)

func linuxOptions(settings *config.Settings) []process_linux.Option {
	var opts []process_linux.Option
	if settings.PointerSize != 0 {
		opts = append(opts, process_linux.WithPointerSize(process.ProcessMemorySize(settings.PointerSize)))
	}
	return opts
}

func openProcessByName(settings *config.Settings) (process.Process, error) {
	p, err := process_linux.OpenProcessByName(process_finder.New(), settings.ProcessName, linuxOptions(settings)...)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func openProcessByPID(settings *config.Settings, pid process.ProcessID) (process.Process, error) {
	opts := linuxOptions(settings)
	if strings.HasSuffix(strings.ToLower(settings.ProcessName), ".exe") {
		opts = append(opts, process_linux.WithMainModule(settings.ProcessName))
	}
	p, err := process_linux.NewWithPID(pid, opts...)
	if err != nil {
		return nil, err
	}
	return p, nil
}
