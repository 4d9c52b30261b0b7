package mem

const (
	// PointerShift is log2(unsafe.Sizeof(uintptr)) on a 64-bit target.
	PointerShift = 3

	// PageShift is log2(PageSize). Used to convert an address to a page
	// index (shift right by PageShift) and back (shift left).
	PageShift = 12

	// PageSize is the standard page size shared by the three architectures
	// this kernel targets (x86-64, AArch64, RISC-V 64): 4 KiB. Larger page
	// sizes are opportunistic and are negotiated through hal.Arch rather
	// than assumed here.
	PageSize = Size(1 << PageShift)
)
