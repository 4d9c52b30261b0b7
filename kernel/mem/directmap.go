package mem

// DirectMap describes a configuration-time higher-half direct map (HHDM):
// a virtual range such that for every physical address p in system RAM,
// p + VirtualBase is a currently mapped, cacheable virtual address. Stage 1
// of the SMP sequencer fills this in from the boot protocol's HHDM offset
// before the PMM is initialized, since the PMM needs it to turn a free
// frame's virtual node address back into a physical one.
type DirectMap struct {
	VirtualBase VirtualAddress
	Size        Size
}

// ToVirtual translates a physical address into this direct map's virtual
// address space. The caller is responsible for knowing that phys actually
// falls within mapped RAM.
func (d DirectMap) ToVirtual(phys PhysicalAddress) VirtualAddress {
	return d.VirtualBase.Add(Size(phys))
}

// ToPhysical is the inverse of ToVirtual.
func (d DirectMap) ToPhysical(virt VirtualAddress) PhysicalAddress {
	return PhysicalAddress(virt - VirtualAddress(d.VirtualBase))
}

// NonCachedDirectMap mirrors DirectMap's layout (same offset arithmetic) but
// over memory mapped with an uncached memory type, for use with MMIO
// regions (e.g. ACPI host glue's map/unmap callbacks).
type NonCachedDirectMap struct {
	DirectMap
}
