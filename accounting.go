// accounting.go - fault/allocation/fragmentation counters for the lazy loader
package main

import "sync/atomic"

// counters is touched only by the fault resolver, which runs with the rest
// of the loader paused (see SPEC_FULL.md §5), so plain fields would be
// enough; atomics are used anyway so a future reader never has to reason
// about whether that invariant still holds to read them safely.
type counters struct {
	faults      uint64
	allocations uint64
	fragBytes   uint64
}

func (c *counters) recordFault() {
	atomic.AddUint64(&c.faults, 1)
}

func (c *counters) recordAllocation(fragContribution uint32) {
	atomic.AddUint64(&c.allocations, 1)
	if fragContribution != 0 {
		atomic.AddUint64(&c.fragBytes, uint64(fragContribution))
	}
}

func (c *counters) snapshot() (faults, allocations, fragBytes uint64) {
	return atomic.LoadUint64(&c.faults), atomic.LoadUint64(&c.allocations), atomic.LoadUint64(&c.fragBytes)
}

// fragmentationContribution computes the last-page tail-waste spec.md
// §4.4 step 7 requires: when the page just materialized reaches or passes
// the end of its segment, the unused tail of the segment's last page
// (page_size - (memsz mod page_size)), else 0.
func fragmentationContribution(pageEnd, segEnd, memsz, pageSize uint32) uint32 {
	if pageEnd < segEnd {
		return 0
	}
	memszMod := memsz % pageSize
	if memszMod == 0 {
		return 0
	}
	return pageSize - memszMod
}
