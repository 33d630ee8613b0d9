package process

// ProcessFinder locates a target process and answers liveness queries for it
type ProcessFinder interface {
	// FindProcessByName returns the first process whose executable name matches (case-insensitive)
	FindProcessByName(name string) (*ProcessInfo, error)

	// Exists reports whether a process with the given PID is still running
	Exists(pid ProcessID) bool
}
