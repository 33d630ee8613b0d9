package process

import (
	"poisonchallenge/process/memory_map"
)

// MemoryReader reads raw bytes from a foreign address space
type MemoryReader interface {
	// ReadMemory reads memory from the process at the specified address
	ReadMemory(addr ProcessMemoryAddress, size ProcessMemorySize) ([]byte, error)
}

// MemoryWriter writes raw bytes into a foreign address space
type MemoryWriter interface {
	// WriteMemory writes data to the process memory at the specified address
	WriteMemory(addr ProcessMemoryAddress, data []byte) error
}

// ModuleProcess exposes what is needed to root a pointer chain in a process image
type ModuleProcess interface {
	// IsAlive reports whether the process is still running
	IsAlive() bool

	// MainModule returns the main executable image as mapped right now
	MainModule() (Module, error)

	// PointerSize returns the pointer width of the target, 4 or 8 bytes
	PointerSize() ProcessMemorySize
}

// Process is the interface that defines operations for interacting with a system process
type Process interface {
	// Open opens a process with the given PID for memory operations
	Open(pid ProcessID) error

	// Close closes the process and releases resources
	Close() error

	// GetPID returns the process ID
	GetPID() ProcessID

	// UpdateMemoryMap refreshes the memory map for the process
	UpdateMemoryMap() error

	// IsValidAddress checks if the given memory address is valid and readable
	IsValidAddress(addr ProcessMemoryAddress) bool

	// GetMemoryMap returns a copy of the current memory map
	GetMemoryMap() ([]memory_map.MemoryMapItem, error)

	MemoryReader
	MemoryWriter
	ModuleProcess
}
