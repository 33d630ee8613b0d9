package memory_map

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// MemoryMapItem represents a memory region in a process's address space
type MemoryMapItem struct {
	Address  uint64 // The starting address of the memory region
	Size     uint   // The size of the memory region in bytes
	Perms    string // Permissions (e.g., "r-xp" for read, execute, private)
	Pathname string // Backing file, empty for anonymous mappings
}

// String returns a string representation of the memory map item
func (mmItem MemoryMapItem) String() string {
	return fmt.Sprintf("Address: %x, Size: %d, Perms: %s, Path: %s", mmItem.Address, mmItem.Size, mmItem.Perms, mmItem.Pathname)
}

func (mmItem MemoryMapItem) End() uint64 {
	return mmItem.Address + uint64(mmItem.Size)
}

func (mmItem MemoryMapItem) IsReadable() bool {
	return len(mmItem.Perms) > 0 && mmItem.Perms[0] == 'r'
}

func (mmItem MemoryMapItem) IsWritable() bool {
	return len(mmItem.Perms) > 1 && mmItem.Perms[1] == 'w'
}

// MemoryMap defines the interface for operations related to a process's memory map
type MemoryMap interface {
	// ReadMemoryMap reads and parses the memory map for a process
	ReadMemoryMap(pid int) ([]MemoryMapItem, error)

	// IsReadablePerms checks if a memory region has read permissions
	IsReadablePerms(perms string) bool

	// IsWritablePerms checks if a memory region has write permissions
	IsWritablePerms(perms string) bool
}

// Sort orders regions by start address; IsValidAddress2 depends on it.
func Sort(memoryMap []MemoryMapItem) {
	sort.Slice(memoryMap, func(i, j int) bool {
		return memoryMap[i].Address < memoryMap[j].Address
	})
}

// IsValidAddress checks if an address is within any mapped memory region
func IsValidAddress(addr uint64, memoryMap []MemoryMapItem) bool {
	return GetMemoryRegionForAddress(addr, memoryMap) != nil
}

// IsValidAddress2 is the binary-search variant of GetMemoryRegionForAddress.
// memoryMap must be sorted by address.
func IsValidAddress2(addr uint64, memoryMap []MemoryMapItem) *MemoryMapItem {
	i := sort.Search(len(memoryMap), func(i int) bool {
		return memoryMap[i].End() > addr
	})
	if i < len(memoryMap) && memoryMap[i].Address <= addr {
		return &memoryMap[i]
	}

	return nil
}

// GetMemoryRegionForAddress returns the memory region containing an address
func GetMemoryRegionForAddress(addr uint64, memoryMap []MemoryMapItem) *MemoryMapItem {
	for i := range memoryMap {
		if addr >= memoryMap[i].Address && addr < memoryMap[i].End() {
			return &memoryMap[i]
		}
	}
	return nil
}

// FindModule returns the extent covered by every mapping of the named file.
// name matches either the full pathname or its base name, case-insensitively,
// since PE images under Wine keep their Windows file names.
func FindModule(name string, memoryMap []MemoryMapItem) (start, end uint64, ok bool) {
	for _, item := range memoryMap {
		if item.Pathname == "" {
			continue
		}
		if !strings.EqualFold(item.Pathname, name) && !strings.EqualFold(filepath.Base(item.Pathname), name) {
			continue
		}
		if !ok || item.Address < start {
			start = item.Address
		}
		if !ok || item.End() > end {
			end = item.End()
		}
		ok = true
	}
	return start, end, ok
}

// ParseMapsLine parses one line of /proc/[pid]/maps, e.g.
//
//	00400000-0040b000 r-xp 00000000 08:01 131 /usr/bin/cat
func ParseMapsLine(line string) (MemoryMapItem, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return MemoryMapItem{}, false
	}

	addrRange := strings.Split(fields[0], "-")
	if len(addrRange) != 2 {
		return MemoryMapItem{}, false
	}

	startAddr, err := strconv.ParseUint(addrRange[0], 16, 64)
	if err != nil {
		return MemoryMapItem{}, false
	}

	endAddr, err := strconv.ParseUint(addrRange[1], 16, 64)
	if err != nil || endAddr < startAddr {
		return MemoryMapItem{}, false
	}

	item := MemoryMapItem{
		Address: startAddr,
		Size:    uint(endAddr - startAddr),
		Perms:   fields[1],
	}

	// Pathnames may contain spaces; everything after the inode is the path.
	if len(fields) >= 6 {
		item.Pathname = strings.Join(fields[5:], " ")
	}

	return item, true
}
