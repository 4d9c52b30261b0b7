// Package hal declares the small capability surface the core depends on but
// does not implement: interrupt masking, the current-CPU accessor, a
// spin-wait hint, and page-table mapping. Concrete implementations (x86-64,
// AArch64, RISC-V 64) live outside the core, called through a narrow Go
// interface rather than bodyless functions bound to assembly, since the
// core needs to run the same logic against a software test double as
// against real hardware.
package hal

import (
	"github.com/CircuitOperatingSystem/circuit/kernel"
	"github.com/CircuitOperatingSystem/circuit/kernel/cpu"
	"github.com/CircuitOperatingSystem/circuit/kernel/mem"
)

// MapType selects the memory type a mapping is established with.
type MapType uint8

const (
	// MapTypeNormal is ordinary cacheable memory.
	MapTypeNormal MapType = iota
	// MapTypeNormalRW is ordinary cacheable, writable memory.
	MapTypeNormalRW
	// MapTypeNormalNoExecute is ordinary cacheable memory that may not be executed.
	MapTypeNormalNoExecute
	// MapTypeNonCached is uncached memory, for MMIO.
	MapTypeNonCached
)

var (
	// ErrAlreadyMapped is returned when map_range is asked to map a range
	// that already has a mapping.
	ErrAlreadyMapped = &kernel.Error{Module: "hal", Message: "virtual range is already mapped"}
	// ErrPhysicalMemoryExhausted is returned when map_range needed a new
	// page-table-level frame and the PMM had none left.
	ErrPhysicalMemoryExhausted = &kernel.Error{Module: "hal", Message: "physical memory exhausted while building page tables"}
	// ErrMappingNotValid is returned when map_range would need to descend
	// a further page-table level beneath an existing huge mapping.
	ErrMappingNotValid = &kernel.Error{Module: "hal", Message: "requested mapping is not valid beneath an existing huge page"}
)

// PageTable is an opaque handle to an architecture's root page-table
// structure (CR3 payload on x86-64, TTBR0/1 on AArch64, satp on RISC-V).
// The core only ever threads this value through hal calls; it never
// inspects it.
type PageTable interface {
	// Activate loads this page table as the current one on the calling CPU.
	Activate()
}

// Arch is the capability surface every architecture backend implements.
// Exactly one implementation is registered via SetArch during stage 1 of
// the SMP sequencer, before anything in the core calls a package-level
// function here.
type Arch interface {
	// DisableInterrupts masks interrupts on the calling CPU.
	DisableInterrupts()
	// EnableInterrupts unmasks interrupts on the calling CPU.
	EnableInterrupts()
	// InterruptsEnabled reports whether interrupts are currently unmasked
	// on the calling CPU.
	InterruptsEnabled() bool
	// DisableAndHalt masks interrupts and stops the calling CPU. It never
	// returns.
	DisableAndHalt()

	// CurrentCPU returns the Cpu struct for the calling CPU. May assume
	// interrupts are disabled.
	CurrentCPU() *cpu.Cpu

	// SpinLoopHint executes the architecture's spin-wait hint instruction.
	SpinLoopHint()

	// StandardPageSize is the page size map_range uses (4 KiB on all three
	// target architectures).
	StandardPageSize() mem.Size
	// LargePageSizes lists any larger page sizes MapRangeAllPageSizes may
	// opportunistically use (2 MiB / 1 GiB on x86-64, for example). May be
	// empty.
	LargePageSizes() []mem.Size

	// MapRange maps physical onto virtual using only the standard page
	// size. It does not flush the TLB. On failure it may leave partial
	// state: callers must either restart initialization or destroy the
	// page table.
	MapRange(pt PageTable, virtual mem.VirtualRange, physical mem.PhysicalRange, mapType MapType) *kernel.Error
	// MapRangeAllPageSizes behaves like MapRange but may opportunistically
	// use any of LargePageSizes to reduce the number of page-table entries
	// created. Used only during init-time page table construction, where
	// error rollback is deliberately skipped: a failure here is fatal by
	// design.
	MapRangeAllPageSizes(pt PageTable, virtual mem.VirtualRange, physical mem.PhysicalRange, mapType MapType) *kernel.Error

	// NewPageTable allocates and zero-initializes a fresh, architecture
	// -native page table rooted at the given physical frame.
	NewPageTable(root mem.PhysicalRange) (PageTable, *kernel.Error)
}

var current Arch

// SetArch registers the architecture backend for the running system and
// wires cpu's hooks to it. It must be called exactly once, at the very
// start of stage 1, before any other hal or cpu function.
func SetArch(a Arch) {
	current = a
	cpu.InstallHooks(
		a.DisableInterrupts,
		a.EnableInterrupts,
		a.InterruptsEnabled,
		a.CurrentCPU,
		a.SpinLoopHint,
	)
	kernel.SetHaltFn(a.DisableAndHalt)
}

// Current returns the registered Arch. Panics if SetArch has not run yet.
func Current() Arch {
	kernel.Assert(current != nil, "hal", "hal.Current called before SetArch")
	return current
}

// StandardPageSize is a convenience wrapper around Current().StandardPageSize().
func StandardPageSize() mem.Size {
	return Current().StandardPageSize()
}

// MapRange is a convenience wrapper around Current().MapRange().
func MapRange(pt PageTable, virtual mem.VirtualRange, physical mem.PhysicalRange, mapType MapType) *kernel.Error {
	return Current().MapRange(pt, virtual, physical, mapType)
}
