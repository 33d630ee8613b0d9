package hexdump

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"unicode"

	"poisonchallenge/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
)

// Options controls the layout of a dump
type Options struct {
	BytesPerLine int
	PointerSize  int // word size used for grouping and pointer preview, 4 or 8
	Color        bool

	// Regions, when set, marks words that point into a mapped region
	Regions []memory_map.MemoryMapItem

	// Mark highlights the line holding this address, 0 disables it
	Mark uint64
}

func DefaultOptions() Options {
	return Options{
		BytesPerLine: 16,
		PointerSize:  8,
		Color:        true,
	}
}

// Dump renders data, whose first byte lives at base, as a string
func Dump(data []byte, base uint64, options Options) string {
	var sb strings.Builder
	DumpToWriter(&sb, data, base, options)
	return sb.String()
}

func DumpToWriter(w io.Writer, data []byte, base uint64, options Options) {
	if options.PointerSize != 4 {
		options.PointerSize = 8
	}
	if options.BytesPerLine <= 0 || options.BytesPerLine%options.PointerSize != 0 {
		options.BytesPerLine = 2 * options.PointerSize
	}

	for off := 0; off < len(data); off += options.BytesPerLine {
		end := off + options.BytesPerLine
		if end > len(data) {
			end = len(data)
		}
		writeLine(w, data[off:end], base+uint64(off), options)
	}
}

func writeLine(w io.Writer, line []byte, addr uint64, options Options) {
	paint := func(fg coloransi.ColorCode, s string) string {
		if !options.Color {
			return s
		}
		return coloransi.Foreground(fg, s)
	}

	marker := " "
	if options.Mark != 0 && options.Mark >= addr && options.Mark < addr+uint64(len(line)) {
		marker = paint(coloransi.Yellow, ">")
	}
	fmt.Fprintf(w, "%s%s  ", marker, paint(coloransi.Cyan, fmt.Sprintf("%016x", addr)))

	// hex column, one group per word
	width := 0
	for i := 0; i < len(line); i += options.PointerSize {
		end := i + options.PointerSize
		if end > len(line) {
			end = len(line)
		}
		if i > 0 {
			fmt.Fprint(w, " ")
			width++
		}
		for _, b := range line[i:end] {
			s := fmt.Sprintf("%02x", b)
			if b == 0 {
				s = paint(coloransi.BrightBlack, s)
			}
			fmt.Fprint(w, s)
			width += 2
		}
	}
	full := options.BytesPerLine*2 + options.BytesPerLine/options.PointerSize - 1
	if width < full {
		fmt.Fprint(w, strings.Repeat(" ", full-width))
	}

	fmt.Fprint(w, " | ")
	for _, b := range line {
		c := rune(b)
		switch {
		case b == 0:
			fmt.Fprint(w, paint(coloransi.BrightBlack, "."))
		case b > unicode.MaxASCII || !unicode.IsPrint(c):
			fmt.Fprint(w, ".")
		default:
			fmt.Fprint(w, string(c))
		}
	}

	if ptrs := pointers(line, options); len(ptrs) > 0 {
		fmt.Fprint(w, " | ")
		for i, p := range ptrs {
			if i > 0 {
				fmt.Fprint(w, " ")
			}
			fmt.Fprint(w, paint(coloransi.Yellow, fmt.Sprintf("0x%x", p)))
		}
	}
	fmt.Fprintln(w)
}

// pointers returns the whole words in line that land inside a mapped region
func pointers(line []byte, options Options) []uint64 {
	if len(options.Regions) == 0 {
		return nil
	}
	var out []uint64
	for i := 0; i+options.PointerSize <= len(line); i += options.PointerSize {
		var v uint64
		if options.PointerSize == 4 {
			v = uint64(binary.LittleEndian.Uint32(line[i:]))
		} else {
			v = binary.LittleEndian.Uint64(line[i:])
		}
		if v != 0 && memory_map.GetMemoryRegionForAddress(v, options.Regions) != nil {
			out = append(out, v)
		}
	}
	return out
}
