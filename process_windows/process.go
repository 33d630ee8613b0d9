//go:build windows

package process_windows

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"poisonchallenge/process"
	"poisonchallenge/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/windows"
)

const (
	processAccess = windows.PROCESS_VM_READ | windows.PROCESS_VM_WRITE | windows.PROCESS_VM_OPERATION |
		windows.PROCESS_QUERY_INFORMATION | windows.SYNCHRONIZE

	WAIT_TIMEOUT = 0x00000102
)

// WindowsProcess implements the process.Process interface for Windows systems
type WindowsProcess struct {
	pid        process.ProcessID
	handle     windows.Handle
	log        *logger.Logger
	mm         []memory_map.MemoryMapItem
	mu         sync.Mutex
	moduleName string
	ptrSize    process.ProcessMemorySize
	module     process.Module
}

var _ process.Process = (*WindowsProcess)(nil)

type Option func(*WindowsProcess)

// WithMainModule selects the module pointer chains are rooted at. Default is
// the executable, the first module the loader reports.
func WithMainModule(name string) Option {
	return func(p *WindowsProcess) {
		p.moduleName = name
	}
}

// WithPointerSize overrides the width derived from IsWow64Process.
func WithPointerSize(size process.ProcessMemorySize) Option {
	return func(p *WindowsProcess) {
		p.ptrSize = size
	}
}

// New creates a new WindowsProcess instance
func New(opts ...Option) *WindowsProcess {
	p := &WindowsProcess{
		log: logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewWithPID creates a new WindowsProcess instance and opens it with the given PID
func NewWithPID(pid process.ProcessID, opts ...Option) (*WindowsProcess, error) {
	p := New(opts...)
	err := p.Open(pid)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// OpenProcessByName opens the process finder reports for name.
func OpenProcessByName(finder process.ProcessFinder, name string, opts ...Option) (*WindowsProcess, error) {
	info, err := finder.FindProcessByName(name)
	if err != nil {
		return nil, err
	}
	p, err := NewWithPID(info.PID, opts...)
	if err != nil {
		return nil, fmt.Errorf("open %s (pid %d): %w", name, info.PID, err)
	}
	return p, nil
}

func (p *WindowsProcess) Open(pid process.ProcessID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	handle, err := windows.OpenProcess(processAccess, false, uint32(pid))
	if err != nil {
		return fmt.Errorf("OpenProcess failed: %w", err)
	}

	p.pid = pid
	p.handle = handle
	p.module = process.Module{}
	p.log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("process-%d", pid)))

	if p.ptrSize == 0 {
		var wow64 bool
		if err := windows.IsWow64Process(handle, &wow64); err != nil {
			p.log.Warn("IsWow64Process failed: ", err)
		} else if wow64 {
			p.ptrSize = process.PointerSize32
		} else {
			p.ptrSize = process.ProcessMemorySize(unsafe.Sizeof(uintptr(0)))
		}
	}

	if err := p.updateMemoryMapInternal(); err != nil {
		p.log.Warn("Failed to initialize memory map: ", err)
	}

	p.log.Infoln("Process opened")
	return nil
}

func (p *WindowsProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle != 0 {
		if err := windows.CloseHandle(p.handle); err != nil {
			return fmt.Errorf("CloseHandle failed: %w", err)
		}
		p.handle = 0
	}

	p.pid = 0
	p.mm = nil
	p.module = process.Module{}
	p.log = logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open"))
	p.log.Infoln("Process closed")

	return nil
}

func (p *WindowsProcess) GetPID() process.ProcessID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// IsAlive reports whether the process handle is not yet signaled.
func (p *WindowsProcess) IsAlive() bool {
	p.mu.Lock()
	handle := p.handle
	p.mu.Unlock()

	if handle == 0 {
		return false
	}
	result, _ := windows.WaitForSingleObject(handle, 0)
	return result == WAIT_TIMEOUT
}

// MainModule returns the executable module, or the one named by
// WithMainModule. The result is cached until the process is reopened.
func (p *WindowsProcess) MainModule() (process.Module, error) {
	if !p.IsAlive() {
		return process.Module{}, process.ErrProcessExited
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.module.Base != 0 {
		return p.module, nil
	}

	hMods := make([]windows.Handle, 1024)
	var cbNeeded uint32
	if err := windows.EnumProcessModulesEx(p.handle, &hMods[0], uint32(len(hMods))*uint32(unsafe.Sizeof(hMods[0])), &cbNeeded, windows.LIST_MODULES_ALL); err != nil {
		// The loader has not finished mapping modules right after start.
		return process.Module{}, fmt.Errorf("%w: %w", process.ErrModuleNotFound, err)
	}
	numMods := cbNeeded / uint32(unsafe.Sizeof(hMods[0]))
	if numMods > uint32(len(hMods)) {
		numMods = uint32(len(hMods))
	}

	for i := uint32(0); i < numMods; i++ {
		var modName [windows.MAX_PATH]uint16
		if err := windows.GetModuleBaseName(p.handle, hMods[i], &modName[0], windows.MAX_PATH); err != nil {
			continue
		}
		name := windows.UTF16ToString(modName[:])
		if p.moduleName != "" && !strings.EqualFold(name, p.moduleName) {
			continue
		}

		var info windows.ModuleInfo
		if err := windows.GetModuleInformation(p.handle, hMods[i], &info, uint32(unsafe.Sizeof(info))); err != nil {
			return process.Module{}, fmt.Errorf("GetModuleInformation %s: %w", name, err)
		}

		p.module = process.Module{
			Name: name,
			Base: process.ProcessMemoryAddress(info.BaseOfDll),
			Size: process.ProcessMemorySize(info.SizeOfImage),
		}
		p.log.Infoln("Main module", name, "at", p.module.Base.ToString(), "size", info.SizeOfImage)
		return p.module, nil
	}

	return process.Module{}, fmt.Errorf("%w: %q", process.ErrModuleNotFound, p.moduleName)
}

func (p *WindowsProcess) PointerSize() process.ProcessMemorySize {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ptrSize == 0 {
		return process.PointerSize64
	}
	return p.ptrSize
}

func (p *WindowsProcess) UpdateMemoryMap() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.updateMemoryMapInternal()
}

func (p *WindowsProcess) updateMemoryMapInternal() error {
	if p.handle == 0 {
		return process.ErrProcessNotOpen
	}

	mm, err := memory_map.NewWindowsMemoryMap(p.handle).ReadMemoryMap(int(p.pid))
	if err != nil {
		return err
	}
	memory_map.Sort(mm)
	p.mm = mm
	return nil
}

func (p *WindowsProcess) IsValidAddress(addr process.ProcessMemoryAddress) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if item := memory_map.IsValidAddress2(uint64(addr), p.mm); item != nil {
		return item.IsReadable()
	}
	return false
}

func (p *WindowsProcess) GetMemoryMap() ([]memory_map.MemoryMapItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle == 0 {
		return nil, process.ErrProcessNotOpen
	}
	result := make([]memory_map.MemoryMapItem, len(p.mm))
	copy(result, p.mm)
	return result, nil
}

// ReadMemory goes straight to ReadProcessMemory; the kernel rejects
// unmapped addresses, so the cached map is not consulted.
func (p *WindowsProcess) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}

	p.mu.Lock()
	handle := p.handle
	p.mu.Unlock()

	if handle == 0 {
		return nil, process.ErrProcessNotOpen
	}

	buf := make([]byte, size)
	var bytesRead uintptr
	if err := windows.ReadProcessMemory(handle, uintptr(addr), &buf[0], uintptr(size), &bytesRead); err != nil {
		return nil, p.accessError("ReadProcessMemory", addr, err)
	}

	if bytesRead != uintptr(size) {
		return nil, fmt.Errorf("read incomplete at %s: expected %d, got %d", addr.ToString(), size, bytesRead)
	}

	return buf, nil
}

func (p *WindowsProcess) WriteMemory(addr process.ProcessMemoryAddress, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	p.mu.Lock()
	handle := p.handle
	p.mu.Unlock()

	if handle == 0 {
		return process.ErrProcessNotOpen
	}

	var written uintptr
	if err := windows.WriteProcessMemory(handle, uintptr(addr), &data[0], uintptr(len(data)), &written); err != nil {
		return p.accessError("WriteProcessMemory", addr, err)
	}
	if written != uintptr(len(data)) {
		return fmt.Errorf("only wrote %d of %d bytes at %s", written, len(data), addr.ToString())
	}
	return nil
}

func (p *WindowsProcess) accessError(op string, addr process.ProcessMemoryAddress, err error) error {
	if !p.IsAlive() {
		return fmt.Errorf("%s at %s: %w", op, addr.ToString(), process.ErrProcessExited)
	}
	if errors.Is(err, windows.ERROR_PARTIAL_COPY) || errors.Is(err, windows.ERROR_NOACCESS) {
		return fmt.Errorf("%s at %s: %w: %w", op, addr.ToString(), process.ErrAddressNotMapped, err)
	}
	return fmt.Errorf("%s at %s: %w", op, addr.ToString(), err)
}
