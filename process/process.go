// Package process provides interfaces and types for reading and writing the
// memory of another process.
package process

import "errors"

// The interface lives in process_interface.go, the address types in
// memory_types.go and the typed accessors in typed.go.

var (
	// ErrAddressNotMapped is returned when a memory address is not found within any mapped region of a process.
	ErrAddressNotMapped = errors.New("address not mapped")

	// ErrProcessNotOpen is returned when an operation requiring an open process is attempted
	// before the process has been successfully opened or after it has been closed.
	ErrProcessNotOpen = errors.New("process not open")

	ErrInvalidPointer = errors.New("invalid pointer read")

	// ErrProcessExited is returned once the target process is gone, even if the handle is still open.
	ErrProcessExited = errors.New("process exited")

	ErrModuleNotFound = errors.New("module not found")

	ErrNotWritable = errors.New("memory region not writable")
)
