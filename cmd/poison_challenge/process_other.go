//go:build !linux && !windows

package main

import (
	"errors"

	"poisonchallenge/config"
	"poisonchallenge/process"
)

var errUnsupportedPlatform = errors.New("live processes are only supported on linux and windows")

func openProcessByName(settings *config.Settings) (process.Process, error) {
	return nil, errUnsupportedPlatform
}

func openProcessByPID(settings *config.Settings, pid process.ProcessID) (process.Process, error) {
	return nil, errUnsupportedPlatform
}
