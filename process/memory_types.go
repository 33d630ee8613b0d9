package process

import (
	"fmt"
)

// ProcessMemoryAddress represents a memory address within a process
type ProcessMemoryAddress uint64

func (pma ProcessMemoryAddress) ToString() string {
	return fmt.Sprintf("0x%X", uint64(pma))
}

// Add applies a signed byte offset.
func (pma ProcessMemoryAddress) Add(offset int) ProcessMemoryAddress {
	return ProcessMemoryAddress(int64(pma) + int64(offset))
}

// ProcessMemorySize represents a size of memory region
type ProcessMemorySize uint

func (pms ProcessMemorySize) ToString() string {
	return fmt.Sprintf("%d bytes", uint(pms))
}

const (
	PointerSize32 ProcessMemorySize = 4
	PointerSize64 ProcessMemorySize = 8
)
