// driver.go - composes ELF parsing, segment mapping, and guest execution
// into a single load-and-run session, then tears everything down exactly
// once. Grounded on the teacher's CompilerState-as-single-owner shape
// (compiler_state.go), generalized from a compile pipeline to a
// load-and-run pipeline.
package main

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// loadResult is what run reports to main for formatting and exit-code
// selection.
type loadResult struct {
	returnValue int32
	lazy        bool
	faults      uint64
	allocations uint64
	fragBytes   uint64
}

// run parses path, establishes guest memory under the requested policy,
// transfers control to the entry point, and returns its result. Cleanup
// happens unconditionally, including on every early-return error path, so
// partial initialization (e.g. file opened but header invalid) never leaks
// a descriptor.
func run(path string, lazy bool, verbose bool) (*loadResult, error) {
	f, hdr, err := openAndParse(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	segments, err := loadSegments(f, hdr)
	if err != nil {
		return nil, err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "loaded %d segment(s), entry=0x%x\n", len(segments), hdr.Entry)
		for i, s := range segments {
			fmt.Fprintf(os.Stderr, "  segment %d: vaddr=0x%x memsz=0x%x filesz=0x%x foff=0x%x\n", i, s.vaddr, s.memsz, s.filesz, s.foff)
		}
	}

	if lazy {
		return runLazy(f, segments, hdr.Entry, verbose)
	}
	return runEager(f, segments, hdr.Entry, verbose)
}

func runEager(f *os.File, segments []segment, entry uint32, verbose bool) (*loadResult, error) {
	entrySeg, ok := segmentContaining(segments, entry)
	if !ok {
		return nil, formatErr(fmt.Sprintf("entry point 0x%x is not covered by any loadable segment", entry), nil)
	}

	mem, entryLocal, err := mapEager(f, entrySeg, entry)
	if err != nil {
		return nil, err
	}
	defer unmapEager(mem)

	if verbose {
		fmt.Fprintf(os.Stderr, "eager: mapped entry segment, local entry=0x%x\n", entryLocal)
	}

	result := callEntry(entryLocal)
	return &loadResult{returnValue: result, lazy: false}, nil
}

func runLazy(f *os.File, segments []segment, entry uint32, verbose bool) (*loadResult, error) {
	pageSize := uint32(unix.Getpagesize())
	sess := newSession(f, segments, pageSize, verbose)

	result, err := runLazyGuest(sess, entry)
	if err != nil {
		cleanupSession(sess)
		return nil, err
	}

	faults, allocations, fragBytes := sess.counters.snapshot()
	cleanupSession(sess)

	return &loadResult{
		returnValue: result,
		lazy:        true,
		faults:      faults,
		allocations: allocations,
		fragBytes:   fragBytes,
	}, nil
}

// cleanupSession releases every mapping the resolver established, exactly
// once each. Safe to call after a partial run: mappingHigh is only ever
// advanced past a slot once that slot holds a real mapping.
func cleanupSession(sess *loaderSession) {
	for i := 0; i < sess.mappingHigh; i++ {
		m := sess.mappings[i]
		unix.Syscall(unix.SYS_MUNMAP, m.base, m.length, 0)
	}
}

// report prints the stdout contract of spec.md §6: one line for the eager
// variant, four for the lazy variant.
func report(r *loadResult) {
	fmt.Printf("User _start return value = %d\n", r.returnValue)
	if !r.lazy {
		return
	}
	fmt.Printf("Total page faults = %d\n", r.faults)
	fmt.Printf("Total page allocations = %d\n", r.allocations)
	fmt.Printf("Internal fragmentation in KB = %.2f\n", float64(r.fragBytes)/1024.0)
}
