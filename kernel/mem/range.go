package mem

// PhysicalRange represents the half-open byte range [Address, Address+Size)
// of physical memory. A Range with Size == 0 is never valid; the range
// types in this package do not check for it themselves.
type PhysicalRange struct {
	Address PhysicalAddress
	Size    Size
}

// End returns the first address past the end of r.
func (r PhysicalRange) End() PhysicalAddress {
	return r.Address.Add(r.Size)
}

// Contains reports whether addr lies within r.
func (r PhysicalRange) Contains(addr PhysicalAddress) bool {
	return addr >= r.Address && addr < r.End()
}

// Overlaps reports whether r and other share at least one byte.
func (r PhysicalRange) Overlaps(other PhysicalRange) bool {
	return r.Address < other.End() && other.Address < r.End()
}

// VirtualRange represents the half-open byte range [Address, Address+Size)
// of virtual memory.
type VirtualRange struct {
	Address VirtualAddress
	Size    Size
}

// End returns the first address past the end of r.
func (r VirtualRange) End() VirtualAddress {
	return r.Address.Add(r.Size)
}

// Contains reports whether addr lies within r.
func (r VirtualRange) Contains(addr VirtualAddress) bool {
	return addr >= r.Address && addr < r.End()
}

// Overlaps reports whether r and other share at least one byte.
func (r VirtualRange) Overlaps(other VirtualRange) bool {
	return r.Address < other.End() && other.Address < r.End()
}
