package vmem

import "github.com/CircuitOperatingSystem/circuit/kernel"

// Source describes how an arena grows by importing address space from
// another, larger arena instead of failing outright when it runs out of
// its own free space. Hierarchies such as system virtual address space ->
// kernel heap -> slab-like typed caches are expressed as arenas stacked on
// arenas this way, with imports elevating pressure upward only when
// needed.
type Source struct {
	// Arena is the arena spans are imported from.
	Arena *Arena
	// Import requests a new span of at least len bytes from Arena. The
	// default, installed by NewSource, is Arena.Allocate(len, InstantFit).
	Import func(len uintptr) (Allocation, *kernel.Error)
	// Release returns a previously imported span to Arena. The default,
	// installed by NewSource, is Arena.Deallocate.
	Release func(Allocation) *kernel.Error
}

// NewSource builds a Source backed by arena's own Allocate/Deallocate, the
// composition every arena uses unless it needs something more specific
// (kernel/heap overrides Import to also establish page-table mappings for
// the range it imports, and Release to free the physical frames backing
// it; the mappings themselves stay installed).
func NewSource(arena *Arena) *Source {
	s := &Source{Arena: arena}
	s.Import = func(len uintptr) (Allocation, *kernel.Error) {
		return arena.Allocate(len, InstantFit)
	}
	s.Release = arena.Deallocate
	return s
}
