package process

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// Read reads a single value of type T from memory. T must be plain data;
// the bytes are copied as-is in host byte order.
func Read[T any](r MemoryReader, addr ProcessMemoryAddress) (T, error) {
	var t T
	size := ProcessMemorySize(unsafe.Sizeof(t))
	if size == 0 {
		return t, nil
	}

	data, err := r.ReadMemory(addr, size)
	if err != nil {
		return t, err
	}

	copyTo(&t, data)
	return t, nil
}

// Write is the inverse of Read: it stores the in-memory bytes of v at addr.
func Write[T any](w MemoryWriter, addr ProcessMemoryAddress, v T) error {
	size := int(unsafe.Sizeof(v))
	if size == 0 {
		return nil
	}
	src := unsafe.Slice((*byte)(unsafe.Pointer(&v)), size)
	out := make([]byte, size)
	copy(out, src)
	return w.WriteMemory(addr, out)
}

// ReadPointer reads a pointer of the given width (4 or 8 bytes, little endian).
func ReadPointer(r MemoryReader, addr ProcessMemoryAddress, width ProcessMemorySize) (ProcessMemoryAddress, error) {
	switch width {
	case PointerSize32, PointerSize64:
	default:
		return 0, fmt.Errorf("unsupported pointer width %d", width)
	}

	data, err := r.ReadMemory(addr, width)
	if err != nil {
		return 0, err
	}
	if len(data) < int(width) {
		return 0, fmt.Errorf("short pointer read at %s: %d of %d bytes", addr.ToString(), len(data), width)
	}

	if width == PointerSize32 {
		return ProcessMemoryAddress(binary.LittleEndian.Uint32(data)), nil
	}
	return ProcessMemoryAddress(binary.LittleEndian.Uint64(data)), nil
}

// copyTo copies bytes to *T
func copyTo[T any](dst *T, src []byte) {
	size := int(unsafe.Sizeof(*dst))
	if len(src) < size {
		return // Should not happen if ReadMemory succeeded with correct size
	}

	dstBytes := unsafe.Slice((*byte)(unsafe.Pointer(dst)), size)
	copy(dstBytes, src)
}
