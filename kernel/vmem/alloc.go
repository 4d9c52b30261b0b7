package vmem

import (
	"github.com/CircuitOperatingSystem/circuit/kernel"
	"github.com/CircuitOperatingSystem/circuit/kernel/sync"
)

// roundUp rounds length up to the next multiple of quantum, which must be
// a power of two.
func roundUp(length, quantum uintptr) uintptr {
	mask := quantum - 1
	return (length + mask) &^ mask
}

// Allocate reserves a range of at least length bytes (rounded up to the
// arena's quantum) using the given fit policy. If no free tag satisfies
// the request and the arena has a source, it imports one more span from
// the source and retries exactly once before giving up.
func (a *Arena) Allocate(length uintptr, policy Policy) (Allocation, *kernel.Error) {
	if length == 0 {
		return Allocation{}, ErrZeroLength
	}
	length = roundUp(length, a.quantum)

	h, err := a.ensureBoundaryTags()
	if err != nil {
		return Allocation{}, err
	}

	tag := a.findFreeTag(length, policy)
	if tag == nil {
		h.Release()

		if a.source == nil {
			return Allocation{}, ErrRequestedLengthUnavailable
		}
		if _, ierr := a.importSpan(roundUp(length, a.quantum)); ierr != nil {
			return Allocation{}, ierr
		}

		h, err = a.ensureBoundaryTags()
		if err != nil {
			return Allocation{}, err
		}
		tag = a.findFreeTag(length, policy)
		if tag == nil {
			h.Release()
			return Allocation{}, ErrRequestedLengthUnavailable
		}
	}
	defer h.Release()

	a.unlinkFreelist(tag)

	if tag.len > length {
		surplus := a.popLocalTag()
		surplus.base = tag.base + length
		surplus.len = tag.len - length
		surplus.kind = KindFree

		a.allTags.InsertBetween(surplus, tag, a.allTags.Next(tag))
		a.linkFreelist(surplus)
		tag.len = length
	}

	tag.kind = KindAllocated
	a.allocTable[allocBucket(tag.base)].PushFront(tag)

	return Allocation{Base: tag.base, Len: tag.len}, nil
}

// importSpan asks a.source for a new span of at least length bytes and
// folds it into this arena exactly as AddSpan would, marking it
// KindImportedSpan so a later Deallocate that coalesces the whole span back
// to free knows to hand it back to the source.
func (a *Arena) importSpan(length uintptr) (Allocation, *kernel.Error) {
	alloc, err := a.source.Import(length)
	if err != nil {
		return Allocation{}, err
	}

	h, terr := a.ensureBoundaryTags()
	if terr != nil {
		_ = a.source.Release(alloc)
		return Allocation{}, terr
	}
	defer h.Release()

	spanTag := a.popLocalTag()
	spanTag.base, spanTag.len, spanTag.kind = alloc.Base, alloc.Len, KindImportedSpan
	spanTag.importedBase, spanTag.importedLen = alloc.Base, alloc.Len

	freeTag := a.popLocalTag()
	freeTag.base, freeTag.len, freeTag.kind = alloc.Base, alloc.Len, KindFree

	a.insertAllSorted(spanTag)
	a.allTags.InsertBetween(freeTag, spanTag, a.allTags.Next(spanTag))
	a.spans.PushFront(spanTag)
	a.linkFreelist(freeTag)

	return alloc, nil
}

// Deallocate returns alloc to the arena. alloc.Base must currently be an
// allocated tag's base and alloc.Len must match its length exactly;
// otherwise this is a programming error and panics.
func (a *Arena) Deallocate(alloc Allocation) *kernel.Error {
	h, err := a.ensureBoundaryTags()
	if err != nil {
		return err
	}

	tag := a.findAllocated(alloc.Base)
	kernel.Assert(tag != nil, "vmem", "deallocate: base is not an allocated tag")
	kernel.Assert(tag.len == alloc.Len, "vmem", "deallocate: length does not match the allocation")

	return a.finishDeallocate(h, tag)
}

// DeallocateBase behaves like Deallocate but only needs the base address,
// for callers that track ranges by starting address alone.
func (a *Arena) DeallocateBase(base uintptr) *kernel.Error {
	h, err := a.ensureBoundaryTags()
	if err != nil {
		return err
	}

	tag := a.findAllocated(base)
	kernel.Assert(tag != nil, "vmem", "deallocate_base: base is not an allocated tag")

	return a.finishDeallocate(h, tag)
}

func (a *Arena) finishDeallocate(h *sync.Held, tag *Tag) *kernel.Error {
	a.allocTable[allocBucket(tag.base)].Remove(tag)
	release, releaseAlloc := a.freeAndCoalesce(tag)
	h.Release()

	if release {
		return a.source.Release(releaseAlloc)
	}
	return nil
}

// freeAndCoalesce marks tag free and merges it with an adjacent free
// neighbor on either side, never across a span boundary. If the resulting
// tag spans an entire imported_span, that span is removed from the arena
// entirely and the caller must release it back to the source after
// dropping the arena mutex, which is why this returns that decision rather
// than acting on it directly. A plain span (added directly via AddSpan,
// never imported) is never removed: it is the arena's own territory, and a
// free tag that happens to cover all of it is simply left tiling the span.
func (a *Arena) freeAndCoalesce(tag *Tag) (release bool, releaseAlloc Allocation) {
	tag.kind = KindFree

	if prev := a.allTags.Prev(tag); prev != nil && prev.kind == KindFree {
		a.unlinkFreelist(prev)
		a.allTags.Remove(prev)
		tag.base = prev.base
		tag.len += prev.len
		a.freeLocalTag(prev)
	}
	if next := a.allTags.Next(tag); next != nil && next.kind == KindFree {
		a.unlinkFreelist(next)
		a.allTags.Remove(next)
		tag.len += next.len
		a.freeLocalTag(next)
	}

	spanTag := a.allTags.Prev(tag)
	if spanTag != nil && spanTag.kind == KindImportedSpan && spanTag.len == tag.len {
		a.allTags.Remove(tag)
		a.allTags.Remove(spanTag)
		a.spans.Remove(spanTag)

		importedBase, importedLen := spanTag.importedBase, spanTag.importedLen

		a.freeLocalTag(spanTag)
		a.freeLocalTag(tag)

		return true, Allocation{Base: importedBase, Len: importedLen}
	}

	a.linkFreelist(tag)
	return false, Allocation{}
}
