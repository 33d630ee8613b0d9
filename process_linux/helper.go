//go:build linux

package process_linux

import (
	"fmt"
	"strings"

	"poisonchallenge/process"
)

// OpenProcessByName opens the process finder reports for name. A Windows
// executable name is also used as the main module, since under Wine
// /proc/<pid>/exe points at the loader. Later options override that.
func OpenProcessByName(finder process.ProcessFinder, name string, opts ...Option) (*LinuxProcess, error) {
	info, err := finder.FindProcessByName(name)
	if err != nil {
		return nil, err
	}

	if strings.HasSuffix(strings.ToLower(name), ".exe") {
		opts = append([]Option{WithMainModule(name)}, opts...)
	}

	p, err := NewWithPID(info.PID, opts...)
	if err != nil {
		return nil, fmt.Errorf("open %s (pid %d): %w", name, info.PID, err)
	}
	return p, nil
}
