// elf_fixture_test.go - hand-assembled ELF32/i386 fixtures for the test
// suite, in the same direct byte-level style the teacher builds (and
// cross-validates) its own ELF output in elf_test.go.
package main

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"testing"
)

const (
	testPageSize = 4096
	testBaseAddr = 0x08048000 // conventional i386 static-exec base
)

// fixtureSegment describes one PT_LOAD entry to synthesize.
type fixtureSegment struct {
	vaddr uint32
	memsz uint32
	data  []byte // file content; len(data) becomes filesz
}

// buildELF32 assembles a minimal, syntactically valid ELF32/EM_386/ET_EXEC
// file: a 52-byte header, one 32-byte program header per fixtureSegment,
// and each segment's file bytes placed back to back after the headers.
func buildELF32(t *testing.T, entry uint32, segs []fixtureSegment) []byte {
	t.Helper()

	const ehsize = 52
	const phentsize = 32
	phoff := uint32(ehsize)
	dataOff := phoff + phentsize*uint32(len(segs))

	var buf bytes.Buffer

	// e_ident
	buf.Write([]byte{0x7F, 'E', 'L', 'F', 1, 1, 1, 0})
	buf.Write(make([]byte, 8)) // padding

	write16 := func(v uint16) { binary.Write(&buf, binary.LittleEndian, v) }
	write32 := func(v uint32) { binary.Write(&buf, binary.LittleEndian, v) }

	write16(2)         // e_type = ET_EXEC
	write16(3)          // e_machine = EM_386
	write32(1)          // e_version
	write32(entry)      // e_entry
	write32(phoff)      // e_phoff
	write32(0)          // e_shoff
	write32(0)          // e_flags
	write16(ehsize)     // e_ehsize
	write16(phentsize)  // e_phentsize
	write16(uint16(len(segs))) // e_phnum
	write16(0)          // e_shentsize
	write16(0)          // e_shnum
	write16(0)          // e_shstrndx

	offsets := make([]uint32, len(segs))
	cur := dataOff
	for i, s := range segs {
		offsets[i] = cur
		cur += uint32(len(s.data))
	}

	for i, s := range segs {
		write32(1)                 // p_type = PT_LOAD
		write32(offsets[i])        // p_offset
		write32(s.vaddr)           // p_vaddr
		write32(s.vaddr)           // p_paddr
		write32(uint32(len(s.data))) // p_filesz
		write32(s.memsz)           // p_memsz
		write32(7)                 // p_flags = RWX
		write32(testPageSize)      // p_align
	}

	for _, s := range segs {
		buf.Write(s.data)
	}

	out := buf.Bytes()
	if int(dataOff)+sumLens(segs) != len(out) {
		t.Fatalf("fixture assembly size mismatch: got %d want %d", len(out), int(dataOff)+sumLens(segs))
	}
	return out
}

func sumLens(segs []fixtureSegment) int {
	n := 0
	for _, s := range segs {
		n += len(s.data)
	}
	return n
}

// writeFixture writes bytes to a temp file and returns its path.
func writeFixture(t *testing.T, name string, b []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/" + name
	if err := os.WriteFile(path, b, 0o755); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

// movEaxRet encodes `mov eax, imm32; ret` (x86, 6 bytes): B8 imm32 C3.
func movEaxRet(imm32 uint32) []byte {
	code := make([]byte, 6)
	code[0] = 0xB8
	binary.LittleEndian.PutUint32(code[1:5], imm32)
	code[5] = 0xC3
	return code
}

// assertParsesWithStdlib cross-checks a fixture against debug/elf, the
// same sanity pass the teacher runs its own hand-assembled ELF output
// through in elf_test.go.
func assertParsesWithStdlib(t *testing.T, raw []byte) {
	t.Helper()
	f, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("debug/elf rejected fixture: %v", err)
	}
	defer f.Close()
	if f.Class != elf.ELFCLASS32 {
		t.Fatalf("fixture is not ELFCLASS32")
	}
	if f.Machine != elf.EM_386 {
		t.Fatalf("fixture is not EM_386")
	}
}
