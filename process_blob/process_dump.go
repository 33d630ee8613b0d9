package process_blob

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"poisonchallenge/process"
	"poisonchallenge/process/memory_map"
)

// ProcessDump implements process.Process over memory held locally: either a
// dump loaded from disk or regions built up in code. Writes land in the local
// copy, so a dump can stand in for a live target.
type ProcessDump struct {
	PID       process.ProcessID
	Name      string
	MemoryMap []memory_map.MemoryMapItem
	Blobs     map[uint64][]byte // Address -> Data
	Module    process.Module
	PtrSize   process.ProcessMemorySize

	mu     sync.Mutex
	exited bool
}

var _ process.Process = (*ProcessDump)(nil)

type dumpMetadata struct {
	PID         process.ProcessID         `json:"pid"`
	Name        string                    `json:"name"`
	ModuleName  string                    `json:"module_name"`
	ModuleBase  uint64                    `json:"module_base"`
	ModuleSize  uint64                    `json:"module_size"`
	PointerSize process.ProcessMemorySize `json:"pointer_size"`
}

// NewProcessDump creates a new ProcessDump instance
func NewProcessDump() *ProcessDump {
	return &ProcessDump{
		Blobs:   make(map[uint64][]byte),
		PtrSize: process.PointerSize64,
	}
}

// AddRegion maps data at addr. The slice is owned by the dump afterwards.
func (p *ProcessDump) AddRegion(addr process.ProcessMemoryAddress, data []byte, perms string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.MemoryMap = append(p.MemoryMap, memory_map.MemoryMapItem{
		Address: uint64(addr),
		Size:    uint(len(data)),
		Perms:   perms,
	})
	memory_map.Sort(p.MemoryMap)
	p.Blobs[uint64(addr)] = data
}

// SetMainModule sets the image that pointer chains are rooted at
func (p *ProcessDump) SetMainModule(m process.Module) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Module = m
}

func (p *ProcessDump) SetPointerSize(size process.ProcessMemorySize) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PtrSize = size
}

// Exit simulates the target going away; every later access fails with ErrProcessExited
func (p *ProcessDump) Exit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exited = true
}

func (p *ProcessDump) Open(pid process.ProcessID) error {
	return fmt.Errorf("Open not supported for ProcessDump, use Load")
}

func (p *ProcessDump) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Blobs = nil
	p.MemoryMap = nil
	p.exited = true
	return nil
}

func (p *ProcessDump) GetPID() process.ProcessID {
	return p.PID
}

func (p *ProcessDump) IsAlive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.exited
}

func (p *ProcessDump) MainModule() (process.Module, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.exited {
		return process.Module{}, process.ErrProcessExited
	}
	if p.Module.Base == 0 {
		return process.Module{}, process.ErrModuleNotFound
	}
	return p.Module, nil
}

func (p *ProcessDump) PointerSize() process.ProcessMemorySize {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.PtrSize == 0 {
		return process.PointerSize64
	}
	return p.PtrSize
}

func (p *ProcessDump) UpdateMemoryMap() error {
	return nil // Memory map is static in a dump
}

func (p *ProcessDump) IsValidAddress(addr process.ProcessMemoryAddress) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return memory_map.IsValidAddress(uint64(addr), p.MemoryMap)
}

func (p *ProcessDump) GetMemoryMap() ([]memory_map.MemoryMapItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := make([]memory_map.MemoryMapItem, len(p.MemoryMap))
	copy(result, p.MemoryMap)
	return result, nil
}

// regionData returns the backing slice and offset for [addr, addr+size). Caller holds mu.
func (p *ProcessDump) regionData(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) (*memory_map.MemoryMapItem, []byte, uint64, error) {
	if p.exited {
		return nil, nil, 0, process.ErrProcessExited
	}

	region := memory_map.GetMemoryRegionForAddress(uint64(addr), p.MemoryMap)
	if region == nil {
		return nil, nil, 0, process.ErrAddressNotMapped
	}

	data, ok := p.Blobs[region.Address]
	if !ok {
		return nil, nil, 0, fmt.Errorf("no data for region 0x%x", region.Address)
	}

	offset := uint64(addr) - region.Address
	if offset+uint64(size) > uint64(len(data)) {
		return nil, nil, 0, fmt.Errorf("access of %d bytes at %s exceeds region data bounds", size, addr.ToString())
	}

	return region, data, offset, nil
}

func (p *ProcessDump) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, data, offset, err := p.regionData(addr, size)
	if err != nil {
		return nil, err
	}

	result := make([]byte, size)
	copy(result, data[offset:offset+uint64(size)])
	return result, nil
}

func (p *ProcessDump) WriteMemory(addr process.ProcessMemoryAddress, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	region, blob, offset, err := p.regionData(addr, process.ProcessMemorySize(len(data)))
	if err != nil {
		return err
	}
	if !region.IsWritable() {
		return fmt.Errorf("%w: %s", process.ErrNotWritable, addr.ToString())
	}

	copy(blob[offset:], data)
	return nil
}

// Save writes the dump as metadata.json, process_memory_map.json and one
// blob_0x<addr>_<size>.bin file per region.
func (p *ProcessDump) Save(dirname string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.MkdirAll(dirname, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	metadata := dumpMetadata{
		PID:         p.PID,
		Name:        p.Name,
		ModuleName:  p.Module.Name,
		ModuleBase:  uint64(p.Module.Base),
		ModuleSize:  uint64(p.Module.Size),
		PointerSize: p.PtrSize,
	}
	if err := writeJSON(filepath.Join(dirname, "metadata.json"), metadata); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dirname, "process_memory_map.json"), p.MemoryMap); err != nil {
		return err
	}

	for _, region := range p.MemoryMap {
		data, ok := p.Blobs[region.Address]
		if !ok {
			continue
		}
		filename := filepath.Join(dirname, fmt.Sprintf("blob_0x%x_%d.bin", region.Address, region.Size))
		if err := os.WriteFile(filename, data, 0644); err != nil {
			return fmt.Errorf("failed to write blob %s: %w", filename, err)
		}
	}

	return nil
}

func (p *ProcessDump) Load(dirname string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	metadataBytes, err := os.ReadFile(filepath.Join(dirname, "metadata.json"))
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata dumpMetadata
	if err := json.Unmarshal(metadataBytes, &metadata); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	p.PID = metadata.PID
	p.Name = metadata.Name
	p.Module = process.Module{
		Name: metadata.ModuleName,
		Base: process.ProcessMemoryAddress(metadata.ModuleBase),
		Size: process.ProcessMemorySize(metadata.ModuleSize),
	}
	p.PtrSize = metadata.PointerSize

	mmBytes, err := os.ReadFile(filepath.Join(dirname, "process_memory_map.json"))
	if err != nil {
		return fmt.Errorf("failed to read memory map: %w", err)
	}

	if err := json.Unmarshal(mmBytes, &p.MemoryMap); err != nil {
		return fmt.Errorf("failed to unmarshal memory map: %w", err)
	}
	memory_map.Sort(p.MemoryMap)

	if p.Blobs == nil {
		p.Blobs = make(map[uint64][]byte)
	}

	for _, region := range p.MemoryMap {
		filename := filepath.Join(dirname, fmt.Sprintf("blob_0x%x_%d.bin", region.Address, region.Size))
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			continue // Blob not saved (e.g. too large or not readable)
		}

		data, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("failed to read blob %s: %w", filename, err)
		}

		p.Blobs[region.Address] = data
	}

	p.exited = false
	return nil
}

func writeJSON(filename string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(filename), err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(filename), err)
	}
	return nil
}
