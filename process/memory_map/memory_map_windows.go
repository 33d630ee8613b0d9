//go:build windows

package memory_map

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// WindowsMemoryMap implements MemoryMap for Windows by walking VirtualQueryEx
type WindowsMemoryMap struct {
	handle windows.Handle
}

// NewWindowsMemoryMap creates a new WindowsMemoryMap bound to an open process handle
func NewWindowsMemoryMap(handle windows.Handle) *WindowsMemoryMap {
	return &WindowsMemoryMap{handle: handle}
}

// ReadMemoryMap lists committed regions. pid is ignored; the handle already identifies the process.
func (w *WindowsMemoryMap) ReadMemoryMap(pid int) ([]MemoryMapItem, error) {
	var memoryMap []MemoryMapItem
	var mbi windows.MemoryBasicInformation
	var addr uintptr

	for {
		err := windows.VirtualQueryEx(w.handle, addr, &mbi, unsafe.Sizeof(mbi))
		if err != nil {
			// ERROR_INVALID_PARAMETER marks the end of the user address space
			break
		}
		if mbi.RegionSize == 0 {
			break
		}

		if mbi.State == windows.MEM_COMMIT {
			memoryMap = append(memoryMap, MemoryMapItem{
				Address: uint64(mbi.BaseAddress),
				Size:    uint(mbi.RegionSize),
				Perms:   protectToPerms(mbi.Protect),
			})
		}

		next := mbi.BaseAddress + mbi.RegionSize
		if next <= addr {
			break
		}
		addr = next
	}

	return memoryMap, nil
}

// protectToPerms renders a PAGE_* protection as a /proc/maps style string
func protectToPerms(protect uint32) string {
	if protect&windows.PAGE_GUARD != 0 || protect&windows.PAGE_NOACCESS != 0 {
		return "---p"
	}

	switch protect &^ (windows.PAGE_NOCACHE | windows.PAGE_WRITECOMBINE) {
	case windows.PAGE_READONLY:
		return "r--p"
	case windows.PAGE_READWRITE, windows.PAGE_WRITECOPY:
		return "rw-p"
	case windows.PAGE_EXECUTE:
		return "--xp"
	case windows.PAGE_EXECUTE_READ:
		return "r-xp"
	case windows.PAGE_EXECUTE_READWRITE, windows.PAGE_EXECUTE_WRITECOPY:
		return "rwxp"
	}
	return "---p"
}

func (w *WindowsMemoryMap) IsReadablePerms(perms string) bool {
	return len(perms) > 0 && perms[0] == 'r'
}

func (w *WindowsMemoryMap) IsWritablePerms(perms string) bool {
	return len(perms) > 1 && perms[1] == 'w'
}
