// Package heap is the kernel heap façade: a thin wrapper around two stacked
// vmem arenas. The bottom arena is seeded with the
// kernel's free virtual-address range and never itself hands out memory a
// caller can write to; the top arena (Heap.arena) imports from it through a
// Source whose Import both carves out a virtual range and backs it with
// freshly allocated physical pages, mapped in via hal.MapRange, and whose
// Release frees those pages and hands the range back; the page-table
// entries stay installed, since hal.Arch has no unmap primitive. This is the same "arenas stacked on arenas"
// composition kernel/vmem's package doc describes, specialized to be the
// one spot in the core that turns a bare address range into memory you can
// actually dereference.
package heap

import (
	"github.com/CircuitOperatingSystem/circuit/kernel"
	"github.com/CircuitOperatingSystem/circuit/kernel/hal"
	"github.com/CircuitOperatingSystem/circuit/kernel/mem"
	"github.com/CircuitOperatingSystem/circuit/kernel/mem/pmm"
	"github.com/CircuitOperatingSystem/circuit/kernel/sync"
	"github.com/CircuitOperatingSystem/circuit/kernel/vmem"
)

// Heap owns the kernel's dynamically allocated virtual memory.
type Heap struct {
	arena        *vmem.Arena
	addressSpace *vmem.Arena
	pmm          *pmm.Allocator
	pageTable    hal.PageTable

	// framesMu guards frames. vmem.Arena.Allocate calls into Source.Import
	// without holding the arena's own lock, so nothing else serializes
	// concurrent imports/releases against this bookkeeping.
	framesMu *sync.TicketLock
	frames   map[uintptr][]mem.PhysicalRange
}

// New builds a Heap whose backing address range comes from addressSpace
// (typically a vmem.Arena seeded with the kernel's own free virtual-address
// range) and whose backing physical pages come from alloc. pageTable is the
// root page table new mappings are installed into.
func New(addressSpace *vmem.Arena, alloc *pmm.Allocator, pageTable hal.PageTable) *Heap {
	h := &Heap{
		arena:        vmem.Create("heap", uintptr(mem.PageSize), vmem.Options{}),
		addressSpace: addressSpace,
		pmm:          alloc,
		pageTable:    pageTable,
		framesMu:     sync.NewTicketLock(),
		frames:       make(map[uintptr][]mem.PhysicalRange),
	}

	source := vmem.NewSource(addressSpace)
	source.Import = h.importBacked
	source.Release = h.releaseBacked
	h.arena.SetSource(source)

	return h
}

// importBacked carves a virtual range of len bytes from h.addressSpace,
// backs every page in it with a freshly allocated physical frame, and maps
// each one in. On any failure past the virtual reservation it unwinds what
// it already committed — freeing the physical pages it allocated, then
// handing the virtual range back — so the caller never receives a
// partially backed import. Page-table entries it already installed are not
// removed (see unwindImport). The frames it allocates are recorded under virt.Base so
// releaseBacked can later free exactly those frames, not a guess.
func (h *Heap) importBacked(len uintptr) (vmem.Allocation, *kernel.Error) {
	virt, err := h.addressSpace.Allocate(len, vmem.InstantFit)
	if err != nil {
		return vmem.Allocation{}, err
	}

	pageSize := uintptr(mem.PageSize)
	backing := make([]mem.PhysicalRange, 0, virt.Len/pageSize)

	for mapped := uintptr(0); mapped < virt.Len; mapped += pageSize {
		frame, ferr := h.pmm.AllocatePage()
		if ferr != nil {
			h.unwindImport(backing)
			_ = h.addressSpace.Deallocate(virt)
			return vmem.Allocation{}, ferr
		}

		vr := mem.VirtualRange{Address: mem.VirtualAddress(virt.Base + mapped), Size: mem.PageSize}
		if merr := hal.MapRange(h.pageTable, vr, frame, hal.MapTypeNormalRW); merr != nil {
			_ = h.pmm.DeallocatePage(frame)
			h.unwindImport(backing)
			_ = h.addressSpace.Deallocate(virt)
			return vmem.Allocation{}, merr
		}

		backing = append(backing, frame)
	}

	held := h.framesMu.Acquire()
	h.frames[virt.Base] = backing
	held.Release()

	return virt, nil
}

// unwindImport returns every frame in backing to h.pmm. It does not unmap
// the page-table entries backing frame N for N already appended before a
// later frame failed: hal.Arch has no unmap primitive in this core's scope
// (the Arch surface only maps), so those virtual pages stay mapped to
// physical memory the PMM now considers free until the range is imported
// again and remapped.
// TODO(hal-unmap): once hal.Arch grows an UnmapRange, unwindImport should
// call it here to avoid that transient double-use window.
func (h *Heap) unwindImport(backing []mem.PhysicalRange) {
	for _, frame := range backing {
		_ = h.pmm.DeallocatePage(frame)
	}
}

// releaseBacked frees the physical frames importBacked recorded for alloc
// and hands the virtual range back to h.addressSpace.
func (h *Heap) releaseBacked(alloc vmem.Allocation) *kernel.Error {
	held := h.framesMu.Acquire()
	backing := h.frames[alloc.Base]
	delete(h.frames, alloc.Base)
	held.Release()

	h.unwindImport(backing)

	return h.addressSpace.Deallocate(alloc)
}

// Allocate reserves size bytes of heap memory and returns its base virtual
// address.
func (h *Heap) Allocate(size uintptr) (mem.VirtualAddress, *kernel.Error) {
	alloc, err := h.arena.Allocate(size, vmem.InstantFit)
	if err != nil {
		return 0, err
	}
	return mem.VirtualAddress(alloc.Base), nil
}

// DeallocateBase returns a previous Allocate's result to the heap.
func (h *Heap) DeallocateBase(base mem.VirtualAddress) *kernel.Error {
	return h.arena.DeallocateBase(uintptr(base))
}
