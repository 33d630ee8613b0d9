package process_blob

import (
	"fmt"

	"poisonchallenge/process"
)

// DefaultMaxRegionSize skips huge mappings (GPU heaps, file caches) that never hold game state
const DefaultMaxRegionSize = 64 * 1024 * 1024

// Capture copies every readable region of a live process into a ProcessDump
// so it can be saved and replayed offline. Regions that fail to read are
// left out of the dump entirely.
func Capture(proc process.Process, name string, maxRegionSize process.ProcessMemorySize) (*ProcessDump, error) {
	if !proc.IsAlive() {
		return nil, process.ErrProcessExited
	}
	if maxRegionSize == 0 {
		maxRegionSize = DefaultMaxRegionSize
	}

	if err := proc.UpdateMemoryMap(); err != nil {
		return nil, fmt.Errorf("failed to refresh memory map: %w", err)
	}
	mm, err := proc.GetMemoryMap()
	if err != nil {
		return nil, err
	}
	module, err := proc.MainModule()
	if err != nil {
		return nil, fmt.Errorf("failed to locate main module: %w", err)
	}

	dump := NewProcessDump()
	dump.PID = proc.GetPID()
	dump.Name = name
	dump.Module = module
	dump.PtrSize = proc.PointerSize()

	for _, region := range mm {
		if !region.IsReadable() || process.ProcessMemorySize(region.Size) > maxRegionSize {
			continue
		}

		data, err := proc.ReadMemory(process.ProcessMemoryAddress(region.Address), process.ProcessMemorySize(region.Size))
		if err != nil {
			continue
		}

		dump.MemoryMap = append(dump.MemoryMap, region)
		dump.Blobs[region.Address] = data
	}

	if len(dump.Blobs) == 0 {
		return nil, fmt.Errorf("no readable regions captured from process %d", dump.PID)
	}

	return dump, nil
}
