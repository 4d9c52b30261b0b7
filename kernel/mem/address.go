package mem

import "unsafe"

// PhysicalAddress is an opaque wrapper around a physical memory address. It
// exists so that physical and virtual addresses, which are both just
// uintptr under the hood, cannot be mixed up by the compiler.
type PhysicalAddress uintptr

// AlignUp rounds p up to the next multiple of align, which must be a power
// of two.
func (p PhysicalAddress) AlignUp(align Size) PhysicalAddress {
	mask := uintptr(align) - 1
	return PhysicalAddress((uintptr(p) + mask) &^ mask)
}

// AlignDown rounds p down to the previous multiple of align, which must be a
// power of two.
func (p PhysicalAddress) AlignDown(align Size) PhysicalAddress {
	mask := uintptr(align) - 1
	return PhysicalAddress(uintptr(p) &^ mask)
}

// IsAligned reports whether p is a multiple of align.
func (p PhysicalAddress) IsAligned(align Size) bool {
	return uintptr(p)&(uintptr(align)-1) == 0
}

// Add returns p offset by size bytes.
func (p PhysicalAddress) Add(size Size) PhysicalAddress {
	return p + PhysicalAddress(size)
}

// VirtualAddress is an opaque wrapper around a virtual memory address.
type VirtualAddress uintptr

// AlignUp rounds v up to the next multiple of align, which must be a power
// of two.
func (v VirtualAddress) AlignUp(align Size) VirtualAddress {
	mask := uintptr(align) - 1
	return VirtualAddress((uintptr(v) + mask) &^ mask)
}

// AlignDown rounds v down to the previous multiple of align, which must be a
// power of two.
func (v VirtualAddress) AlignDown(align Size) VirtualAddress {
	mask := uintptr(align) - 1
	return VirtualAddress(uintptr(v) &^ mask)
}

// IsAligned reports whether v is a multiple of align.
func (v VirtualAddress) IsAligned(align Size) bool {
	return uintptr(v)&(uintptr(align)-1) == 0
}

// Add returns v offset by size bytes.
func (v VirtualAddress) Add(size Size) VirtualAddress {
	return v + VirtualAddress(size)
}

// AsPointer reinterprets v as a raw pointer. Callers are responsible for
// making sure v is actually mapped and that the resulting pointer is used
// with a type of the correct size.
func (v VirtualAddress) AsPointer() unsafe.Pointer {
	return unsafe.Pointer(uintptr(v))
}
