package main

import (
	"poisonchallenge/config"
	"poisonchallenge/process"
	"poisonchallenge/process_finder"
	"poisonchallenge/process_windows"
)

func windowsOptions(settings *config.Settings) []process_windows.Option {
	var opts []process_windows.Option
	if settings.PointerSize != 0 {
		opts = append(opts, process_windows.WithPointerSize(process.ProcessMemorySize(settings.PointerSize)))
	}
	return opts
}

func openProcessByName(settings *config.Settings) (process.Process, error) {
	p, err := process_windows.OpenProcessByName(process_finder.New(), settings.ProcessName, windowsOptions(settings)...)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func openProcessByPID(settings *config.Settings, pid process.ProcessID) (process.Process, error) {
	p, err := process_windows.NewWithPID(pid, windowsOptions(settings)...)
	if err != nil {
		return nil, err
	}
	return p, nil
}
