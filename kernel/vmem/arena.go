package vmem

import (
	"github.com/CircuitOperatingSystem/circuit/kernel"
	"github.com/CircuitOperatingSystem/circuit/kernel/sync"
)

// maxNameLen bounds Arena.name the same way kernel/mem's Size-based types
// avoid unbounded allocation: a fixed cap lets the arena avoid needing an
// allocator just to hold its own name.
const maxNameLen = 32

// allocTableBuckets is the number of hash buckets the allocation table
// hashes allocated tags into.
const allocTableBuckets = 64

// Arena manages a sparse range of uintptr values under a single quantum. It
// is the range allocator every higher-level piece of address-space
// management (kernel/heap, port ranges, ID spaces) is built from.
//
// The zero value is not usable; construct with Create.
type Arena struct {
	name    string
	quantum uintptr
	source  *Source

	mu *sync.TicketLock

	allTags *sync.DList[Tag]
	spans   *sync.DList[Tag]

	freelists      [wordBits]*sync.DList[Tag]
	freelistBitmap uint64

	allocTable [allocTableBuckets]*sync.DList[Tag]

	localPool    sync.SLList[Tag, *Tag]
	localPoolLen int
}

// Options configures optional Arena behavior at creation time. The zero
// value selects every default.
type Options struct {
	// Source, if non-nil, lets the arena grow by importing spans from
	// another arena instead of failing RequestedLengthUnavailable
	// outright. Equivalent to setting Arena.source after Create via
	// SetSource.
	Source *Source
}

// Create initializes a new, empty Arena. quantum must be a power of two;
// name must fit within maxNameLen. Both are programmer errors, not runtime
// conditions, so violating them panics rather than returning an error.
func Create(name string, quantum uintptr, opts Options) *Arena {
	kernel.Assert(len(name) <= maxNameLen, "vmem", "arena name exceeds maxNameLen")
	kernel.Assert(quantum > 0 && quantum&(quantum-1) == 0, "vmem", "arena quantum must be a power of two")

	a := &Arena{
		name:    name,
		quantum: quantum,
		source:  opts.Source,
		mu:      sync.NewTicketLock(),
		allTags: sync.NewDList(allLink),
		spans:   sync.NewDList(kindLink),
	}
	for i := range a.freelists {
		a.freelists[i] = sync.NewDList(kindLink)
	}
	for i := range a.allocTable {
		a.allocTable[i] = sync.NewDList(kindLink)
	}
	return a
}

// SetSource wires a source arena after creation, for the common case of a
// two-arena hierarchy being built up incrementally (e.g. kernel/heap
// constructing its backing arena before it has anything to hand Create).
func (a *Arena) SetSource(source *Source) { a.source = source }

// Name returns the arena's name, mainly for diagnostics.
func (a *Arena) Name() string { return a.name }

// Destroy asserts the arena is empty of allocations and returns every
// boundary tag it owns — including tags still parked in its local pool —
// to the global unused-tag pool. It performs no locking: callers must
// guarantee exclusive access, exactly as spec'd, since a destroyed arena's
// memory (if heap-allocated) may be freed out from under a concurrent
// caller otherwise.
func (a *Arena) Destroy() {
	for i := range a.allocTable {
		kernel.Assert(a.allocTable[i].IsEmpty(), "vmem", "arena destroyed with allocations outstanding")
	}

	for t := a.spans.First(); t != nil; {
		next := a.spans.Next(t)
		a.spans.Remove(t)
		globalTagPool.Push(t)
		t = next
	}
	for i := range a.freelists {
		for t := a.freelists[i].First(); t != nil; {
			next := a.freelists[i].Next(t)
			a.freelists[i].Remove(t)
			globalTagPool.Push(t)
			t = next
		}
	}
	for t := a.allTags.First(); t != nil; {
		next := a.allTags.Next(t)
		a.allTags.Remove(t)
		t = next
	}
	for t := a.localPool.Pop(); t != nil; t = a.localPool.Pop() {
		globalTagPool.Push(t)
	}
	a.localPoolLen = 0
}

// AddSpan registers [base, base+len) as address space this arena owns,
// tiled by a single free tag.
func (a *Arena) AddSpan(base, length uintptr) *kernel.Error {
	if length == 0 {
		return ErrZeroLength
	}
	if base+length < base {
		return ErrWouldWrap
	}
	if base%a.quantum != 0 || length%a.quantum != 0 {
		return ErrUnaligned
	}

	h, err := a.ensureBoundaryTags()
	if err != nil {
		return err
	}
	defer h.Release()

	for t := a.spans.First(); t != nil; t = a.spans.Next(t) {
		if rangesOverlap(t.base, t.len, base, length) {
			return ErrOverlap
		}
	}

	spanTag := a.popLocalTag()
	spanTag.base, spanTag.len, spanTag.kind = base, length, KindSpan

	freeTag := a.popLocalTag()
	freeTag.base, freeTag.len, freeTag.kind = base, length, KindFree

	a.insertAllSorted(spanTag)
	a.allTags.InsertBetween(freeTag, spanTag, a.allTags.Next(spanTag))
	a.spans.PushFront(spanTag)
	a.linkFreelist(freeTag)

	return nil
}

func rangesOverlap(aBase, aLen, bBase, bLen uintptr) bool {
	return aBase < bBase+bLen && bBase < aBase+aLen
}

// insertAllSorted links tag into allTags at the position that keeps the
// list ordered by ascending base. Arenas are expected to hold a modest
// number of spans/tags, so a linear scan from the front is the same
// tradeoff the reference vmem algorithm makes: simplicity over an ordered
// index structure that would need its own allocator.
func (a *Arena) insertAllSorted(tag *Tag) {
	var prev *Tag
	cur := a.allTags.First()
	for cur != nil && cur.base < tag.base {
		prev = cur
		cur = a.allTags.Next(cur)
	}
	a.allTags.InsertBetween(tag, prev, cur)
}

func (a *Arena) linkFreelist(tag *Tag) {
	idx := freelistIndex(tag.len)
	a.freelists[idx].PushFront(tag)
	a.freelistBitmap |= uint64(1) << uint(idx)
}

func (a *Arena) unlinkFreelist(tag *Tag) {
	idx := freelistIndex(tag.len)
	a.freelists[idx].Remove(tag)
	if a.freelists[idx].IsEmpty() {
		a.freelistBitmap &^= uint64(1) << uint(idx)
	}
}

// allocBucket hashes base with a fixed avalanche mix (the finalizer from
// Austin Appleby's MurmurHash3, minus the seed) into an allocTableBuckets
// -sized bucket index. Any hash with good bit-mixing works here; this one
// needs no imported package.
func allocBucket(base uintptr) int {
	h := uint64(base)
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return int(h % allocTableBuckets)
}

func (a *Arena) findAllocated(base uintptr) *Tag {
	lst := a.allocTable[allocBucket(base)]
	for t := lst.First(); t != nil; t = lst.Next(t) {
		if t.base == base {
			return t
		}
	}
	return nil
}

func (a *Arena) popLocalTag() *Tag {
	t := a.localPool.Pop()
	kernel.Assert(t != nil, "vmem", "local boundary-tag pool exhausted mid-operation")
	a.localPoolLen--
	*t = Tag{}
	return t
}

func (a *Arena) freeLocalTag(t *Tag) {
	*t = Tag{}
	a.localPool.Push(t)
	a.localPoolLen++
}
