// session.go - state owner for the lazy (smart) loader
//
// spec.md §9 requires a process-wide owner for the segment table, mapping
// table, and counters because a POSIX sigaction handler receives no user
// context pointer. fault_resolver.go's Go-native redesign (runtime/debug's
// SetPanicOnFault rather than a raw sigaction trampoline, see that file's
// header comment) resolves faults by recovering on the same goroutine
// stack that is re-entering the guest, so the session reaches the resolver
// as an ordinary parameter rather than a package-level variable - but it is
// still one struct owning everything for the lifetime of a single
// load-and-run, set up once and torn down once, which is the part of
// spec.md §9's design that actually matters. Grounded on the same
// single-struct-owns-everything shape the teacher uses for its own
// process-wide compilation state (compiler_state.go's CompilerState), here
// repurposed for the loader's segment table / mapping table / counters
// instead of a compile pipeline.
package main

import "os"

// pageMapping is one page-granular mapping the resolver has established.
type pageMapping struct {
	base   uintptr
	length uintptr
}

// loaderSession owns every piece of state the fault resolver and the driver
// share. Its mapping-table storage is pre-allocated up front (fixed
// capacity, no append-driven growth) so the resolver never allocates on the
// signal-handling path (spec.md §4.4, §9).
type loaderSession struct {
	file     *os.File
	rawFd    int
	segments []segment
	pageSize uint32

	mappings    []pageMapping
	mappingHigh int // index one past the last populated slot

	counters counters

	verbose bool
}

// newSession pre-sizes the mapping table to the total number of pages the
// segments' [vaddr, vaddr+memsz) ranges span (one more than memsz alone
// fills when vaddr is not page-aligned), so the resolver's append-equivalent
// is a bounded index bump, never a reallocation.
func newSession(f *os.File, segments []segment, pageSize uint32, verbose bool) *loaderSession {
	capacity := 0
	for _, s := range segments {
		if s.memsz > 0 {
			capacity += pagesFor(s.vaddr%pageSize+s.memsz, pageSize)
		}
	}
	return &loaderSession{
		file:     f,
		rawFd:    int(f.Fd()),
		segments: segments,
		pageSize: pageSize,
		mappings: make([]pageMapping, capacity),
		verbose:  verbose,
	}
}

func pagesFor(memsz, pageSize uint32) int {
	if memsz == 0 {
		return 0
	}
	return int((memsz + pageSize - 1) / pageSize)
}

// recordMapping appends {base, length} to the fixed-capacity mapping table.
// Safe to call from the signal handler: it is index arithmetic, no
// allocation, no lock.
func (s *loaderSession) recordMapping(base, length uintptr) {
	if s.mappingHigh < len(s.mappings) {
		s.mappings[s.mappingHigh] = pageMapping{base: base, length: length}
		s.mappingHigh++
	}
}

// hasMapping reports whether page base P is already present in the mapping
// table (spec.md §4.4 step 3: re-fault on a mapped page is a permission
// error, not a missing page).
func (s *loaderSession) hasMapping(base uintptr) bool {
	for i := 0; i < s.mappingHigh; i++ {
		if s.mappings[i].base == base {
			return true
		}
	}
	return false
}
