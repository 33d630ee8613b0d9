package process

import (
	"bytes"
	"debug/elf"
	"debug/pe"
	"encoding/binary"
	"fmt"
)

// ImageHeader is what the header of a mapped executable image says about it.
type ImageHeader struct {
	Format      string // "pe" or "elf"
	PointerSize ProcessMemorySize
	// ImageSize is SizeOfImage for PE images and 0 for ELF, whose extent
	// has to come from the memory map.
	ImageSize ProcessMemorySize
}

const (
	dosHeaderSize  = 0x40
	peSignature    = "PE\x00\x00"
	peHeaderProbe  = 4 + 20 + 0x3C // signature, file header, optional header through SizeOfImage
	sizeOfImageOff = 4 + 20 + 0x38
)

// ReadImageHeader parses the PE or ELF header mapped at base.
func ReadImageHeader(r MemoryReader, base ProcessMemoryAddress) (ImageHeader, error) {
	head, err := r.ReadMemory(base, dosHeaderSize)
	if err != nil {
		return ImageHeader{}, fmt.Errorf("read image header at %s: %w", base.ToString(), err)
	}

	switch {
	case bytes.HasPrefix(head, []byte("MZ")):
		return readPEHeader(r, base, head)
	case bytes.HasPrefix(head, []byte(elf.ELFMAG)):
		switch elf.Class(head[elf.EI_CLASS]) {
		case elf.ELFCLASS32:
			return ImageHeader{Format: "elf", PointerSize: PointerSize32}, nil
		case elf.ELFCLASS64:
			return ImageHeader{Format: "elf", PointerSize: PointerSize64}, nil
		}
		return ImageHeader{}, fmt.Errorf("unknown ELF class %d at %s", head[elf.EI_CLASS], base.ToString())
	}
	return ImageHeader{}, fmt.Errorf("no executable image at %s", base.ToString())
}

func readPEHeader(r MemoryReader, base ProcessMemoryAddress, dos []byte) (ImageHeader, error) {
	lfanew := binary.LittleEndian.Uint32(dos[0x3C:])
	if lfanew == 0 || lfanew > 0x1000 {
		return ImageHeader{}, fmt.Errorf("bad e_lfanew 0x%X at %s", lfanew, base.ToString())
	}

	nt, err := r.ReadMemory(base.Add(int(lfanew)), peHeaderProbe)
	if err != nil {
		return ImageHeader{}, fmt.Errorf("read PE header: %w", err)
	}
	if string(nt[:4]) != peSignature {
		return ImageHeader{}, fmt.Errorf("missing PE signature at %s", base.Add(int(lfanew)).ToString())
	}

	var fh pe.FileHeader
	if err := binary.Read(bytes.NewReader(nt[4:24]), binary.LittleEndian, &fh); err != nil {
		return ImageHeader{}, err
	}

	h := ImageHeader{
		Format:    "pe",
		ImageSize: ProcessMemorySize(binary.LittleEndian.Uint32(nt[sizeOfImageOff:])),
	}
	switch fh.Machine {
	case pe.IMAGE_FILE_MACHINE_I386:
		h.PointerSize = PointerSize32
	case pe.IMAGE_FILE_MACHINE_AMD64, pe.IMAGE_FILE_MACHINE_ARM64:
		h.PointerSize = PointerSize64
	default:
		return ImageHeader{}, fmt.Errorf("unsupported PE machine 0x%X", fh.Machine)
	}
	return h, nil
}
