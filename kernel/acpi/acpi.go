// Package acpi implements the host-glue callback surface an embedded
// ACPI/AML interpreter expects to be handed: memory mapping, port and MMIO
// config-space I/O, mutex/spinlock primitives, interrupt vector
// installation, and a monotonic clock. This core does not carry an AML
// bytecode interpreter itself; it only supplies the callbacks such an
// interpreter would call into, the same split a table-parsing ACPI driver
// draws against a separate bytecode-evaluation package.
package acpi

import (
	"sync/atomic"

	"github.com/CircuitOperatingSystem/circuit/kernel"
	"github.com/CircuitOperatingSystem/circuit/kernel/hal"
	"github.com/CircuitOperatingSystem/circuit/kernel/mem"
	"github.com/CircuitOperatingSystem/circuit/kernel/sync"
)

// ErrVectorsExhausted is returned by InstallInterruptHandler once every
// vector this Host was configured with has been claimed.
var ErrVectorsExhausted = &kernel.Error{Module: "acpi", Message: "no free interrupt vectors remain"}

// IOPort provides the port-mapped I/O primitives Host.IORead/IOWrite defer
// to. A real implementation issues IN/OUT instructions (x86-64) or their
// architecture's equivalent; this interface exists so the core never
// imports assembly directly, the same boundary hal.Arch draws for mapping.
type IOPort interface {
	In8(port uint16) uint8
	In16(port uint16) uint16
	In32(port uint16) uint32
	Out8(port uint16, val uint8)
	Out16(port uint16, val uint16)
	Out32(port uint16, val uint32)
}

// InterruptRouter binds an allocated vector to a trampoline and routes an
// IRQ to it via the IOAPIC, the last step of install_interrupt_handler.
type InterruptRouter interface {
	// Route arms vector so that firing IRQ irq invokes trampoline, which
	// is expected to retrieve the host's handler and context pointers and
	// call through to them; Host does not know their type.
	Route(irq uint8, vector uint8, trampoline func()) *kernel.Error
}

// Clock reports elapsed monotonic time since boot, backing
// get_nanoseconds_since_boot.
type Clock interface {
	NanosecondsSinceBoot() uint64
}

// Host implements the ACPI/AML interpreter's host callback surface atop
// this core's hal, mem, and sync primitives. The zero value is not ready
// to use; construct with NewHost.
type Host struct {
	directMap mem.NonCachedDirectMap
	pageTable hal.PageTable
	io        IOPort
	router    InterruptRouter
	clock     Clock

	nextVector atomic.Uint32
	minVector  uint8
	maxVector  uint8

	pciBase mem.PhysicalAddress
}

// NewHost returns a Host that maps physical memory through directMap,
// installs page-table entries into pageTable, and issues port I/O and
// interrupt routing through io and router. pciBase is the physical base
// address of the memory-mapped PCI configuration space (MCFG), and
// [minVector, maxVector] bounds the interrupt vectors InstallInterruptHandler
// may hand out.
func NewHost(directMap mem.NonCachedDirectMap, pageTable hal.PageTable, io IOPort, router InterruptRouter, clock Clock, pciBase mem.PhysicalAddress, minVector, maxVector uint8) *Host {
	h := &Host{
		directMap: directMap,
		pageTable: pageTable,
		io:        io,
		router:    router,
		clock:     clock,
		pciBase:   pciBase,
		minVector: minVector,
		maxVector: maxVector,
	}
	h.nextVector.Store(uint32(minVector))
	return h
}

// Map identity-maps [phys, phys+len) into the non-cached direct map window
// and returns the resulting virtual address, satisfying the interpreter's
// map callback. Rather than building a fresh page-table entry per call at
// whatever virtual page happens to coincide with the physical one, Map
// always projects into the same pre-reserved window (h.directMap), so an
// MMIO region like the MCFG or an ACPI table living outside ordinary RAM
// gets a stable virtual address without needing its own arena allocation.
func (h *Host) Map(phys mem.PhysicalAddress, length mem.Size) mem.VirtualAddress {
	base := phys.AlignDown(mem.PageSize)
	end := phys.Add(length).AlignUp(mem.PageSize)

	for p := base; p < end; p = p.Add(mem.PageSize) {
		virt := h.directMap.ToVirtual(p)
		vr := mem.VirtualRange{Address: virt, Size: mem.PageSize}
		pr := mem.PhysicalRange{Address: p, Size: mem.PageSize}
		if err := hal.MapRange(h.pageTable, vr, pr, hal.MapTypeNonCached); err != nil && err != hal.ErrAlreadyMapped {
			kernel.Panic(err)
			return 0
		}
	}

	return h.directMap.ToVirtual(phys)
}

// Unmap is the inverse of Map. hal.Arch carries no unmap primitive in this
// core's scope (see kernel/heap's unwindImport), so Unmap leaves the
// mapping installed; the region stays addressable but the interpreter is
// expected not to dereference it afterward.
func (h *Host) Unmap(mem.VirtualAddress, mem.Size) {}

// PCIRead reads a width-byte (1, 2, or 4) value from PCI configuration
// space at the given bus/device/function/offset, via the ECAM-style
// memory-mapped base configured at construction.
func (h *Host) PCIRead(bus, device, function uint8, offset uint16, width uint8) uint32 {
	addr := h.directMap.ToVirtual(h.pciConfigAddress(bus, device, function, offset))
	switch width {
	case 1:
		return uint32(*(*uint8)(addr.AsPointer()))
	case 2:
		return uint32(*(*uint16)(addr.AsPointer()))
	default:
		return *(*uint32)(addr.AsPointer())
	}
}

// PCIWrite is the inverse of PCIRead.
func (h *Host) PCIWrite(bus, device, function uint8, offset uint16, width uint8, value uint32) {
	addr := h.directMap.ToVirtual(h.pciConfigAddress(bus, device, function, offset))
	switch width {
	case 1:
		*(*uint8)(addr.AsPointer()) = uint8(value)
	case 2:
		*(*uint16)(addr.AsPointer()) = uint16(value)
	default:
		*(*uint32)(addr.AsPointer()) = value
	}
}

// pciConfigAddress computes the ECAM offset for a bus/device/function/offset
// tuple: each bus occupies 1 MiB, each device 32 KiB, each function 4 KiB.
func (h *Host) pciConfigAddress(bus, device, function uint8, offset uint16) mem.PhysicalAddress {
	off := uintptr(bus)<<20 | uintptr(device)<<15 | uintptr(function)<<12 | uintptr(offset)
	return h.pciBase.Add(mem.Size(off))
}

// IORead reads a width-byte port I/O value, dispatching to IOPort.
func (h *Host) IORead(port uint16, width uint8) uint32 {
	switch width {
	case 1:
		return uint32(h.io.In8(port))
	case 2:
		return uint32(h.io.In16(port))
	default:
		return h.io.In32(port)
	}
}

// IOWrite is the inverse of IORead.
func (h *Host) IOWrite(port uint16, width uint8, value uint32) {
	switch width {
	case 1:
		h.io.Out8(port, uint8(value))
	case 2:
		h.io.Out16(port, uint16(value))
	default:
		h.io.Out32(port, value)
	}
}

// CreateMutex returns a new kernel Mutex for the interpreter to serialize an
// interrupts-enabled AML method against concurrent evaluation.
func (h *Host) CreateMutex() *sync.Mutex {
	return sync.NewMutex()
}

// AcquireMutex blocks until m is held.
func (h *Host) AcquireMutex(m *sync.Mutex) *sync.Held {
	return m.Lock()
}

// ReleaseMutex releases a Held returned by AcquireMutex.
func (h *Host) ReleaseMutex(held *sync.Held) {
	held.Release()
}

// CreateSpinlock returns a new TicketLock for interrupt-context callers.
func (h *Host) CreateSpinlock() *sync.TicketLock {
	return sync.NewTicketLock()
}

// LockSpinlock acquires l.
func (h *Host) LockSpinlock(l *sync.TicketLock) *sync.Held {
	return l.Acquire()
}

// UnlockSpinlock releases a Held returned by LockSpinlock.
func (h *Host) UnlockSpinlock(held *sync.Held) {
	held.Release()
}

// InstallInterruptHandler allocates the next free interrupt vector, binds
// trampoline to it, and routes irq to that vector via the IOAPIC. The
// trampoline is expected to look up and invoke the interpreter's own
// handler and context pointer; Host only owns the vector and routing.
func (h *Host) InstallInterruptHandler(irq uint8, trampoline func()) (uint8, *kernel.Error) {
	vector := uint8(h.nextVector.Add(1) - 1)
	if vector > h.maxVector {
		return 0, ErrVectorsExhausted
	}
	if err := h.router.Route(irq, vector, trampoline); err != nil {
		return 0, err
	}
	return vector, nil
}

// GetNanosecondsSinceBoot returns elapsed monotonic time since boot.
func (h *Host) GetNanosecondsSinceBoot() uint64 {
	return h.clock.NanosecondsSinceBoot()
}
