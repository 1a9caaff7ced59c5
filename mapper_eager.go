// mapper_eager.go - eager variant: map and copy the entry segment up front
package main

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mapEager establishes one anonymous rw+x mapping sized entrySeg.memsz at an
// address of the kernel's choosing, copies entrySeg.filesz bytes from the
// file starting at entrySeg.foff into it, and returns the mapping together
// with the local address corresponding to the ELF entry point.
//
// Segments that do not contain the entry address are ignored (spec.md §4.3):
// programs whose code or data spans more than one segment will fault when
// they touch the others. That is a documented limitation, not a bug here.
func mapEager(f *os.File, entrySeg segment, entry uint32) (mem []byte, entryLocal uintptr, err error) {
	mem, err = unix.Mmap(-1, 0, int(entrySeg.memsz),
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, 0, mappingErr("mmap entry segment", err)
	}

	if entrySeg.filesz > 0 {
		n, rerr := f.ReadAt(mem[:entrySeg.filesz], int64(entrySeg.foff))
		if rerr != nil || uint32(n) != entrySeg.filesz {
			unix.Munmap(mem)
			return nil, 0, fileErr(fmt.Sprintf("read entry segment (%d bytes at offset %d)", entrySeg.filesz, entrySeg.foff), rerr)
		}
	}

	base := uintptr(unsafeBaseAddr(mem))
	entryLocal = base + uintptr(entry-entrySeg.vaddr)
	return mem, entryLocal, nil
}

func unmapEager(mem []byte) error {
	if mem == nil {
		return nil
	}
	if err := unix.Munmap(mem); err != nil {
		return mappingErr("munmap entry segment", err)
	}
	return nil
}
