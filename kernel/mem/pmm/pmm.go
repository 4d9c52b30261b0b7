// Package pmm implements the physical page allocator: a single LIFO free
// list of 4 KiB frames, threaded through the frames' otherwise-unused
// memory via the direct map, protected by a TicketLock. This trades a
// per-region free bitmap for no auxiliary bookkeeping storage at all, at
// the cost of O(1) allocation always returning a single page and never any
// explicit locality control. The arena above this package (kernel/vmem) is
// the layer that batches pages into runs for its callers.
package pmm

import (
	"sync/atomic"

	"github.com/CircuitOperatingSystem/circuit/kernel"
	"github.com/CircuitOperatingSystem/circuit/kernel/mem"
	"github.com/CircuitOperatingSystem/circuit/kernel/sync"
)

var (
	// ErrOutOfMemory is returned by AllocatePage when the free list is empty.
	ErrOutOfMemory = &kernel.Error{Module: "pmm", Message: "no free physical pages remain"}
	// ErrMisalignedRange is returned by AddRange/DeallocatePage when a range
	// is not page-aligned in address or size.
	ErrMisalignedRange = &kernel.Error{Module: "pmm", Message: "physical range is not page-aligned"}
)

// pageNode is written directly into the first bytes of a free page. It is
// only ever valid to dereference while the page is on the free list; once
// allocated its contents belong entirely to the caller.
type pageNode struct {
	next mem.VirtualAddress
}

// Allocator is a LIFO free-list physical page allocator. The zero value is
// not ready to use; construct with NewAllocator.
type Allocator struct {
	lock         *sync.TicketLock
	directMap    mem.DirectMap
	freeListHead mem.VirtualAddress // 0 (the null direct-mapped address) means empty

	totalPages atomic.Uint64
	freePages  atomic.Uint64
}

// NewAllocator returns an empty Allocator that translates between physical
// and virtual addresses using directMap. Callers populate it with AddRange
// once the boot memory map has been walked.
func NewAllocator(directMap mem.DirectMap) *Allocator {
	return &Allocator{
		lock:      sync.NewTicketLock(),
		directMap: directMap,
	}
}

// AddRange adds every page-aligned 4 KiB frame in r to the free list. r's
// base and size must both be page-aligned.
func (a *Allocator) AddRange(r mem.PhysicalRange) *kernel.Error {
	if !r.Address.IsAligned(mem.PageSize) || r.Size%mem.PageSize != 0 {
		return ErrMisalignedRange
	}

	pages := uint64(r.Size / mem.PageSize)
	h := a.lock.Acquire()
	for i := uint64(0); i < pages; i++ {
		a.pushLocked(r.Address.Add(mem.Size(i) * mem.PageSize))
	}
	h.Release()

	a.totalPages.Add(pages)
	a.freePages.Add(pages)
	return nil
}

// AllocatePage removes and returns a single 4 KiB frame from the free list.
func (a *Allocator) AllocatePage() (mem.PhysicalRange, *kernel.Error) {
	h := a.lock.Acquire()
	if a.freeListHead == 0 {
		h.Release()
		return mem.PhysicalRange{}, ErrOutOfMemory
	}

	virt := a.freeListHead
	node := (*pageNode)(virt.AsPointer())
	a.freeListHead = node.next
	h.Release()

	a.freePages.Add(^uint64(0)) // decrement
	return mem.PhysicalRange{Address: a.directMap.ToPhysical(virt), Size: mem.PageSize}, nil
}

// DeallocatePage returns a single 4 KiB frame to the free list. r must be
// exactly one page and must have come from AllocatePage or AddRange.
func (a *Allocator) DeallocatePage(r mem.PhysicalRange) *kernel.Error {
	if !r.Address.IsAligned(mem.PageSize) || r.Size != mem.PageSize {
		return ErrMisalignedRange
	}

	h := a.lock.Acquire()
	a.pushLocked(r.Address)
	h.Release()

	a.freePages.Add(1)
	return nil
}

// pushLocked links phys onto the head of the free list. Callers must hold
// a.lock.
func (a *Allocator) pushLocked(phys mem.PhysicalAddress) {
	virt := a.directMap.ToVirtual(phys)
	node := (*pageNode)(virt.AsPointer())
	node.next = a.freeListHead
	a.freeListHead = virt
}

// TotalPages returns the number of pages ever added via AddRange.
func (a *Allocator) TotalPages() uint64 { return a.totalPages.Load() }

// FreePages returns the number of pages currently on the free list. The
// value may be stale the instant it is read on a system with more than one
// CPU; it exists for diagnostics, not for capacity planning.
func (a *Allocator) FreePages() uint64 { return a.freePages.Load() }
