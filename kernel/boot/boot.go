// Package boot holds the boot protocol handoff data: the higher-half direct
// map offset, the kernel's own load addresses, the firmware memory map, the
// RSDP pointer, and the list of secondary CPUs the bootloader discovered.
// Limine hands the kernel a set of independently-negotiated request/response
// structures instead of one tag-encoded info blob to scan, so there is no
// tag-lookup loop here, just a handful of typed fields filled in by the
// arch-specific entry stub before Stage0 runs.
package boot

import "github.com/CircuitOperatingSystem/circuit/kernel/mem"

// MemoryType classifies a MemoryMapEntry the way the resource arena's
// bootstrap wiring needs to see it: usable RAM the PMM should claim, RAM
// already spoken for by the kernel image or firmware, and ACPI tables that
// can be reclaimed once they've been parsed. This collapses Limine's finer
// entry types (bootloader-reclaimable, kernel/modules, framebuffer, ...)
// down to whichever of these buckets a caller actually needs to act on,
// mapping anything unrecognized onto MemoryReservedOrUnusable.
type MemoryType uint8

const (
	// MemoryFree is RAM available for the PMM to hand out immediately.
	MemoryFree MemoryType = iota
	// MemoryInUse is RAM already committed: the kernel image, boot
	// modules, the framebuffer, and anything else the bootloader marked
	// as not-free-and-not-reclaimable.
	MemoryInUse
	// MemoryReservedOrUnusable is RAM the PMM must never touch: firmware
	// reserved regions, bad memory, and anything below the first megabyte.
	MemoryReservedOrUnusable
	// MemoryReclaimable is RAM holding data (ACPI tables, bootloader
	// structures) that becomes free once the kernel is done reading it.
	MemoryReclaimable
)

// String implements fmt.Stringer for MemoryType.
func (t MemoryType) String() string {
	switch t {
	case MemoryFree:
		return "free"
	case MemoryInUse:
		return "in_use"
	case MemoryReclaimable:
		return "reclaimable"
	default:
		return "reserved_or_unusable"
	}
}

// MemoryMapEntry describes one physical memory region as reported by the
// firmware/bootloader.
type MemoryMapEntry struct {
	Range mem.PhysicalRange
	Type  MemoryType
}

// CPUEntry describes one CPU the bootloader discovered, whether or not it
// has been started yet.
type CPUEntry struct {
	// ProcessorID is the ACPI processor UID reported by the MADT.
	ProcessorID uint32
	// LAPICID (x86-64) / MPIDR (AArch64) / hart ID (RISC-V) identifies the
	// CPU to the interrupt controller and to hal.Arch.CurrentCPU.
	HardwareID uint64
	// IsBootCPU marks the CPU stage0 is already executing on. The boot
	// sequencer starts every other entry via Boot.
	IsBootCPU bool
	// bootFn, if invoked, transfers control to entry on this CPU, passing
	// userData in whatever architecture register the entry stub expects
	// (rdi on x86-64, x0 on AArch64, a0 on RISC-V). It never returns: the
	// entry function is responsible for the peer executor bring-up
	// sequence.
	bootFn func(entry uintptr, userData uintptr)
}

// Boot starts this CPU running entry with userData passed to it. Only
// meaningful for entries where IsBootCPU is false; calling it for the boot
// CPU is a programming error.
func (e CPUEntry) Boot(entry uintptr, userData uintptr) {
	e.bootFn(entry, userData)
}

// NewCPUEntry constructs a CPUEntry backed by bootFn. Arch-specific setup
// code calls this once per MADT/PLIC entry while translating the raw
// bootloader response into the core's types; it is exported so those
// per-architecture translators, which live outside this module, can build
// entries without boot exposing bootFn itself.
func NewCPUEntry(processorID uint32, hardwareID uint64, isBootCPU bool, bootFn func(entry uintptr, userData uintptr)) CPUEntry {
	return CPUEntry{ProcessorID: processorID, HardwareID: hardwareID, IsBootCPU: isBootCPU, bootFn: bootFn}
}

// Info is the complete boot handoff record. Stage0 of the SMP sequencer
// receives exactly one of these, populated before any core package runs.
type Info struct {
	// DirectMap is the higher-half direct map the bootloader (or, on
	// architectures without one, the entry stub) established over all of
	// usable RAM.
	DirectMap mem.DirectMap

	// KernelPhysicalBase and KernelVirtualBase are the load addresses of
	// the kernel image, needed to compute ASLR slide when relocating
	// symbols.
	KernelPhysicalBase mem.PhysicalAddress
	KernelVirtualBase  mem.VirtualAddress

	// MemoryMap is the firmware-reported memory layout, already collapsed
	// to MemoryType and sorted by base address by the arch-specific
	// translator.
	MemoryMap []MemoryMapEntry

	// RSDPAddress is the physical address of the ACPI Root System
	// Description Pointer, used by kernel/acpi to locate the rest of the
	// ACPI table set.
	RSDPAddress mem.PhysicalAddress

	// CPUs lists every CPU the bootloader discovered, boot CPU included.
	CPUs []CPUEntry
}

// VisitMemoryMap invokes visitor for every entry in i.MemoryMap in address
// order, stopping early if visitor returns false. This mirrors
// multiboot.VisitMemRegions's visitor-callback shape, adapted to a slice
// the arch layer has already fully decoded instead of a tag blob decoded
// lazily on each call.
func (i Info) VisitMemoryMap(visitor func(MemoryMapEntry) bool) {
	for _, e := range i.MemoryMap {
		if !visitor(e) {
			return
		}
	}
}
