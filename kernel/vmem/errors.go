package vmem

import "github.com/CircuitOperatingSystem/circuit/kernel"

var (
	// ErrZeroLength is returned by AddSpan/Allocate when len is zero.
	ErrZeroLength = &kernel.Error{Module: "vmem", Message: "zero-length range"}
	// ErrWouldWrap is returned by AddSpan when base+len overflows uintptr.
	ErrWouldWrap = &kernel.Error{Module: "vmem", Message: "span base+len overflows the address space"}
	// ErrUnaligned is returned by AddSpan when base or len is not a
	// multiple of the arena's quantum.
	ErrUnaligned = &kernel.Error{Module: "vmem", Message: "span is not aligned to the arena quantum"}
	// ErrOverlap is returned by AddSpan when the new span overlaps an
	// existing one.
	ErrOverlap = &kernel.Error{Module: "vmem", Message: "span overlaps an existing span"}
	// ErrOutOfBoundaryTags is returned when ensureBoundaryTags cannot
	// replenish the local pool: the global pool is empty and the PMM has
	// no more physical pages to hand out for a new tag batch.
	ErrOutOfBoundaryTags = &kernel.Error{Module: "vmem", Message: "no boundary tags available and the PMM is exhausted"}
	// ErrRequestedLengthUnavailable is returned by Allocate when no free
	// tag satisfies the request and either there is no source arena or
	// importing from it still didn't produce one.
	ErrRequestedLengthUnavailable = &kernel.Error{Module: "vmem", Message: "no free range of the requested length is available"}
)
