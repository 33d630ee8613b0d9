//go:build linux

package process_linux

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"poisonchallenge/process"
	"poisonchallenge/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// LinuxProcess implements the process.Process interface for Linux systems.
// A Windows game running under Wine is a Linux process whose main image is
// the mapped .exe; WithMainModule names it.
type LinuxProcess struct {
	pid        process.ProcessID
	log        *logger.Logger
	mm         []memory_map.MemoryMapItem
	mmUpdated  time.Time
	mu         sync.Mutex
	moduleName string
	ptrSize    process.ProcessMemorySize
	module     process.Module
}

var _ process.Process = (*LinuxProcess)(nil)

type Option func(*LinuxProcess)

// WithMainModule selects the image pointer chains are rooted at, by file
// name or full path. Default is the file behind /proc/<pid>/exe.
func WithMainModule(name string) Option {
	return func(p *LinuxProcess) {
		p.moduleName = name
	}
}

// WithPointerSize overrides the pointer width read from the image header.
func WithPointerSize(size process.ProcessMemorySize) Option {
	return func(p *LinuxProcess) {
		p.ptrSize = size
	}
}

// New creates a new LinuxProcess instance
func New(opts ...Option) *LinuxProcess {
	result := &LinuxProcess{
		log: logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open")),
	}
	for _, opt := range opts {
		opt(result)
	}
	return result
}

// NewWithPID creates a new LinuxProcess instance and opens it with the given PID
func NewWithPID(pid process.ProcessID, opts ...Option) (*LinuxProcess, error) {
	p := New(opts...)
	err := p.Open(pid)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (p *LinuxProcess) Open(pid process.ProcessID) error {
	// Check if process exists
	procPath := fmt.Sprintf("/proc/%d", pid)
	if _, err := os.Stat(procPath); os.IsNotExist(err) {
		return fmt.Errorf("process with PID %d does not exist", pid)
	}

	p.mu.Lock()
	p.pid = pid
	p.module = process.Module{}
	p.log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("process-%d", pid)))
	p.mu.Unlock()

	if err := p.UpdateMemoryMap(); err != nil {
		return fmt.Errorf("failed to initialize memory map: %w", err)
	}

	p.log.Infoln("Process opened")

	return nil
}

func (p *LinuxProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.log.Infoln("Closing process")

	p.pid = 0
	p.mm = nil
	p.module = process.Module{}

	p.log = logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open"))

	return nil
}

// GetPID returns the process ID
func (p *LinuxProcess) GetPID() process.ProcessID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// IsAlive reports whether the opened PID still exists and is not a zombie.
// PIDs can be reused; the main module check in MainModule catches that.
func (p *LinuxProcess) IsAlive() bool {
	pid := p.GetPID()
	if pid == 0 {
		return false
	}
	stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	state, ok := statState(string(stat))
	return ok && state != 'Z' && state != 'X'
}

// statState returns the state field of /proc/<pid>/stat. The command name
// may contain spaces and parentheses, so the state follows the last ')'.
func statState(stat string) (byte, bool) {
	for i := len(stat) - 1; i >= 0; i-- {
		if stat[i] == ')' {
			if i+2 < len(stat) {
				return stat[i+2], true
			}
			return 0, false
		}
	}
	return 0, false
}

// MainModule finds the main image in the memory map. The result is cached
// until the process is reopened.
func (p *LinuxProcess) MainModule() (process.Module, error) {
	if !p.IsAlive() {
		return process.Module{}, process.ErrProcessExited
	}

	p.mu.Lock()
	if p.module.Base != 0 {
		m := p.module
		p.mu.Unlock()
		return m, nil
	}
	pid, name := p.pid, p.moduleName
	p.mu.Unlock()

	if name == "" {
		exe, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", pid))
		if err != nil {
			return process.Module{}, fmt.Errorf("%w: %w", process.ErrModuleNotFound, err)
		}
		name = exe
	}

	// Wine maps the image some time after the process starts.
	start, end, ok := p.findModule(name)
	if !ok {
		if err := p.UpdateMemoryMap(); err != nil {
			return process.Module{}, err
		}
		if start, end, ok = p.findModule(name); !ok {
			return process.Module{}, fmt.Errorf("%w: %s", process.ErrModuleNotFound, name)
		}
	}

	m := process.Module{
		Name: filepath.Base(name),
		Base: process.ProcessMemoryAddress(start),
		Size: process.ProcessMemorySize(end - start),
	}

	header, err := process.ReadImageHeader(p, m.Base)
	if err != nil {
		p.log.Warn("Main module header unreadable, using mapped extent: ", err)
	} else {
		if header.ImageSize != 0 {
			m.Size = header.ImageSize
		}
		p.mu.Lock()
		if p.ptrSize == 0 {
			p.ptrSize = header.PointerSize
		}
		p.mu.Unlock()
	}

	p.mu.Lock()
	p.module = m
	p.mu.Unlock()

	p.log.Infoln("Main module", m.Name, "at", m.Base.ToString(), "size", m.Size, "pointer size", p.PointerSize())
	return m, nil
}

func (p *LinuxProcess) findModule(name string) (uint64, uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return memory_map.FindModule(name, p.mm)
}

// PointerSize returns the configured or detected width, 8 until MainModule
// has read the image header.
func (p *LinuxProcess) PointerSize() process.ProcessMemorySize {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ptrSize == 0 {
		return process.PointerSize64
	}
	return p.ptrSize
}

func (p *LinuxProcess) UpdateMemoryMap() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pid == 0 {
		return process.ErrProcessNotOpen
	}

	linuxMemMap := memory_map.NewLinuxMemoryMap()
	mm, err := linuxMemMap.ReadMemoryMap(int(p.pid))
	if err != nil {
		return fmt.Errorf("failed to read memory map: %w", err)
	}

	// IsValidAddress2 requires the memory map to be sorted by address
	memory_map.Sort(mm)

	p.mm = mm
	p.mmUpdated = time.Now()
	return nil
}

// mapRefreshInterval bounds how often a miss in the cached memory map
// triggers a reread of /proc/<pid>/maps.
const mapRefreshInterval = 250 * time.Millisecond

// checkAddress validates addr against the cached map, rereading the map
// once if it is stale. The game allocates after the process was opened.
func (p *LinuxProcess) checkAddress(addr process.ProcessMemoryAddress) (process.ProcessID, *memory_map.MemoryMapItem, error) {
	p.mu.Lock()
	pid := p.pid
	item := p.regionInternal(addr)
	stale := time.Since(p.mmUpdated) > mapRefreshInterval
	p.mu.Unlock()

	if pid == 0 {
		return 0, nil, process.ErrProcessNotOpen
	}
	if item == nil && stale {
		if err := p.UpdateMemoryMap(); err != nil {
			return pid, nil, err
		}
		p.mu.Lock()
		item = p.regionInternal(addr)
		p.mu.Unlock()
	}
	if item == nil {
		return pid, nil, fmt.Errorf("%w: %s", process.ErrAddressNotMapped, addr.ToString())
	}
	return pid, item, nil
}

// regionInternal returns a copy of the readable region holding addr. Assumes the mutex is held.
func (p *LinuxProcess) regionInternal(addr process.ProcessMemoryAddress) *memory_map.MemoryMapItem {
	if !p.isValidAddressInternal(addr) {
		return nil
	}
	item := *memory_map.IsValidAddress2(uint64(addr), p.mm)
	return &item
}

func (p *LinuxProcess) IsValidAddress(addr process.ProcessMemoryAddress) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.isValidAddressInternal(addr)
}

// Internal helper function that assumes the mutex is already locked
func (p *LinuxProcess) isValidAddressInternal(addr process.ProcessMemoryAddress) bool {
	if addr <= 0x10000 {
		return false
	}

	if item := memory_map.IsValidAddress2(uint64(addr), p.mm); item != nil {
		return item.IsReadable()
	}

	return false
}

func (p *LinuxProcess) GetMemoryMap() ([]memory_map.MemoryMapItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pid == 0 {
		return nil, process.ErrProcessNotOpen
	}

	// Make a copy of the memory map to prevent external modification
	result := make([]memory_map.MemoryMapItem, len(p.mm))
	copy(result, p.mm)

	return result, nil
}
