package vmem

import (
	"unsafe"

	"github.com/CircuitOperatingSystem/circuit/kernel"
	"github.com/CircuitOperatingSystem/circuit/kernel/mem"
	"github.com/CircuitOperatingSystem/circuit/kernel/mem/pmm"
	"github.com/CircuitOperatingSystem/circuit/kernel/sync"
)

const (
	// tagsPerSpanCreate is the boundary-tag cost of AddSpan/importSpan:
	// one tag for the span marker, one for the free tag tiling it.
	tagsPerSpanCreate = 2
	// tagsPerPartialAllocation is the boundary-tag cost of Allocate
	// splitting a free tag that is larger than the requested length.
	tagsPerPartialAllocation = 1
	// MaxTagsPerAllocation is chosen so that a single public operation
	// can never exhaust a local pool that already holds this many tags:
	// the worst case is importing a span (2 tags) and then splitting the
	// free tag it produces (1 tag).
	MaxTagsPerAllocation = tagsPerSpanCreate + tagsPerPartialAllocation
)

// globalTagPool is the lock-free LIFO every arena's local pool ultimately
// draws from, shared across every arena in the kernel.
var globalTagPool sync.SLStack[Tag, *Tag]

// globalTagAllocMutex serializes PMM-backed tag-page creation across every
// arena in the kernel, so two arenas racing to replenish an empty global
// pool don't both allocate a fresh page when one would do.
var globalTagAllocMutex = sync.NewTicketLock()

var (
	tagSupplyPMM       *pmm.Allocator
	tagSupplyDirectMap mem.DirectMap
	tagsPerPage        int
)

// ConfigureTagSupply wires the global boundary-tag pool to the physical
// page allocator. It must run once during boot, after the PMM has pages to
// give out and before any arena operation might need to replenish its tag
// pool.
func ConfigureTagSupply(alloc *pmm.Allocator, directMap mem.DirectMap) {
	tagSupplyPMM = alloc
	tagSupplyDirectMap = directMap
	tagsPerPage = int(mem.PageSize) / int(unsafe.Sizeof(Tag{}))
}

// ensureBoundaryTags implements the boundary-tag supply protocol. It
// guarantees the arena's local pool holds at least MaxTagsPerAllocation
// tags and returns holding the arena mutex, which the caller then reuses
// for its own tag mutations rather than acquiring it a second time.
func (a *Arena) ensureBoundaryTags() (*sync.Held, *kernel.Error) {
	h := a.mu.Acquire()
	if a.localPoolLen >= MaxTagsPerAllocation {
		return h, nil
	}

	for a.localPoolLen < MaxTagsPerAllocation {
		t := globalTagPool.Pop()
		if t == nil {
			break
		}
		a.localPool.Push(t)
		a.localPoolLen++
	}
	if a.localPoolLen >= MaxTagsPerAllocation {
		return h, nil
	}

	h.Release()
	gh := globalTagAllocMutex.Acquire()

	var scratch sync.SLList[Tag, *Tag]
	scratchLen := 0
	for {
		t := globalTagPool.Pop()
		if t == nil {
			break
		}
		scratch.Push(t)
		scratchLen++
	}

	if scratchLen < MaxTagsPerAllocation {
		page, err := tagSupplyPMM.AllocatePage()
		if err != nil {
			for t := scratch.Pop(); t != nil; t = scratch.Pop() {
				globalTagPool.Push(t)
			}
			gh.Release()
			return nil, ErrOutOfBoundaryTags
		}

		virt := tagSupplyDirectMap.ToVirtual(page.Address)
		tags := unsafe.Slice((*Tag)(virt.AsPointer()), tagsPerPage)
		for i := range tags {
			tags[i] = Tag{}
			scratch.Push(&tags[i])
			scratchLen++
		}
	}

	for scratchLen > MaxTagsPerAllocation {
		globalTagPool.Push(scratch.Pop())
		scratchLen--
	}
	gh.Release()

	h = a.mu.Acquire()
	for t := scratch.Pop(); t != nil; t = scratch.Pop() {
		a.localPool.Push(t)
		a.localPoolLen++
	}
	return h, nil
}
