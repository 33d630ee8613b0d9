package process

// ProcessID represents a unique identifier for a process
type ProcessID int

// ProcessInfo contains basic information about a process
type ProcessInfo struct {
	PID  ProcessID // Process ID
	Name string    // Executable name
	Exe  string    // Path to the executable, empty when unreadable
}

// Module describes a loaded image inside a process. Base is where the image
// is mapped this launch; Size is the image extent, which also fingerprints
// the build.
type Module struct {
	Name string
	Base ProcessMemoryAddress
	Size ProcessMemorySize
}

func (m Module) Contains(addr ProcessMemoryAddress) bool {
	return addr >= m.Base && addr < m.Base+ProcessMemoryAddress(m.Size)
}
