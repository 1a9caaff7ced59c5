// program_header.go - program-header table reading and segment resolution
package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const (
	progHeaderSize32 = 32
	ptLoad           = 1
)

// elf32ProgHeader mirrors Elf32_Phdr.
type elf32ProgHeader struct {
	Type   uint32
	Offset uint32
	Vaddr  uint32
	Paddr  uint32 // ignored
	Filesz uint32
	Memsz  uint32
	Flags  uint32
	Align  uint32
}

// segment is the derived record for a retained PT_LOAD entry.
type segment struct {
	vaddr  uint32
	memsz  uint32
	filesz uint32
	foff   uint32
}

func (s segment) contains(addr uint32) bool {
	return addr >= s.vaddr && addr < s.vaddr+s.memsz
}

func (s segment) end() uint32 {
	return s.vaddr + s.memsz
}

// loadSegments seeks to hdr.Phoff, reads hdr.Phnum entries of hdr.Phentsize
// bytes, and returns the retained PT_LOAD segments in on-file order. It
// fails if any two retained segments overlap or if the entry point falls
// inside none of them.
func loadSegments(f *os.File, hdr *elf32Header) ([]segment, error) {
	if hdr.Phentsize < progHeaderSize32 {
		return nil, formatErr(fmt.Sprintf("program header entry size %d is smaller than Elf32_Phdr (%d)", hdr.Phentsize, progHeaderSize32), nil)
	}

	if _, err := f.Seek(int64(hdr.Phoff), io.SeekStart); err != nil {
		return nil, fileErr("seek to program header table", err)
	}

	entry := make([]byte, hdr.Phentsize)
	segments := make([]segment, 0, hdr.Phnum)

	for i := 0; i < int(hdr.Phnum); i++ {
		n, err := io.ReadFull(f, entry)
		if err != nil || n != len(entry) {
			return nil, fileErr(fmt.Sprintf("read program header entry %d", i), err)
		}

		var phdr elf32ProgHeader
		if err := binary.Read(bytes.NewReader(entry[:progHeaderSize32]), binary.LittleEndian, &phdr); err != nil {
			return nil, formatErr(fmt.Sprintf("malformed program header entry %d", i), err)
		}

		if phdr.Type != ptLoad {
			continue
		}
		if phdr.Filesz > phdr.Memsz {
			return nil, formatErr(fmt.Sprintf("segment %d: filesz (%d) exceeds memsz (%d)", i, phdr.Filesz, phdr.Memsz), nil)
		}

		segments = append(segments, segment{
			vaddr:  phdr.Vaddr,
			memsz:  phdr.Memsz,
			filesz: phdr.Filesz,
			foff:   phdr.Offset,
		})
	}

	if len(segments) == 0 {
		return nil, formatErr("no loadable (PT_LOAD) segments found", nil)
	}

	if err := checkNoOverlap(segments); err != nil {
		return nil, err
	}

	if !entryCoveredByExactlyOne(segments, hdr.Entry) {
		return nil, formatErr(fmt.Sprintf("entry point 0x%x is not contained in exactly one loadable segment", hdr.Entry), nil)
	}

	return segments, nil
}

func checkNoOverlap(segments []segment) error {
	for i := 0; i < len(segments); i++ {
		for j := i + 1; j < len(segments); j++ {
			a, b := segments[i], segments[j]
			if a.vaddr < b.end() && b.vaddr < a.end() {
				return formatErr(fmt.Sprintf("loadable segments overlap: [0x%x,0x%x) and [0x%x,0x%x)", a.vaddr, a.end(), b.vaddr, b.end()), nil)
			}
		}
	}
	return nil
}

func entryCoveredByExactlyOne(segments []segment, entry uint32) bool {
	count := 0
	for _, s := range segments {
		if s.contains(entry) {
			count++
		}
	}
	return count == 1
}

// segmentContaining returns the first segment covering addr, or false if
// none does (overlap is already rejected by loadSegments, so at most one
// segment of a successfully loaded table can cover addr).
func segmentContaining(segments []segment, addr uint32) (segment, bool) {
	for _, s := range segments {
		if s.contains(addr) {
			return s, true
		}
	}
	return segment{}, false
}
