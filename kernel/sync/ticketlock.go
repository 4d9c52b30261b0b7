package sync

import (
	"sync/atomic"

	"github.com/CircuitOperatingSystem/circuit/kernel"
	"github.com/CircuitOperatingSystem/circuit/kernel/cpu"
)

var (
	errReentrantAcquire = &kernel.Error{Module: "sync", Message: "ticket lock re-acquired by its current holder"}
	errReleaseNotHolder = &kernel.Error{Module: "sync", Message: "ticket lock released by a CPU that is not its holder"}
)

// TicketLock is a FIFO mutual-exclusion lock: each acquirer draws a ticket
// with an atomic fetch-add and spins until the lock's "now serving" counter
// reaches that ticket, so CPUs enter their critical section in exactly the
// order they called Acquire. Acquire never suspends; it always spins with
// interrupts and preemption disabled, which is why it is safe to take from
// interrupt context, unlike Mutex.
type TicketLock struct {
	// current is the ticket number currently being served.
	current uint32
	// ticket is the next ticket to hand out.
	ticket uint32
	// holder is the CPU that currently holds the lock, or cpu.None.
	holder atomic.Uint32
}

// NewTicketLock returns a lock in the unlocked state. The zero value is not
// ready to use: holder must start at cpu.None rather than CPU 0, or CPU 0's
// very first Acquire would trip the re-entrancy assertion.
func NewTicketLock() *TicketLock {
	l := &TicketLock{}
	l.holder.Store(uint32(cpu.None))
	return l
}

// Held is returned by Acquire and must be passed to Release exactly once.
type Held struct {
	lock     *TicketLock
	cpuID    cpu.ID
	excl     *cpu.PreemptionInterruptExclusion
	released bool
}

// Acquire acquires combined preemption-and-interrupt exclusion, draws a
// ticket, and spins until it is this CPU's turn. Re-entrant acquisition by
// the CPU that already holds the lock is a programming error and panics
// rather than deadlocking silently.
func (l *TicketLock) Acquire() *Held {
	excl := cpu.GetPreemptionInterruptExclusion()
	h := l.acquireTicket(excl.Cpu().ID())
	h.excl = &excl
	return h
}

// AcquireAs draws a ticket and spins on behalf of the logical CPU c without
// consulting hal's current-CPU hooks. Production code always uses Acquire;
// AcquireAs exists for callers that already know, by construction, which
// executor they are running as (SMP bring-up code operating directly on an
// Executor before that core's hal hooks are wired up) and for host tests
// that simulate several CPUs as goroutines, where there is no hardware
// register to read "current CPU" from.
func (l *TicketLock) AcquireAs(c *cpu.Cpu) *Held {
	return l.acquireTicket(c.ID())
}

func (l *TicketLock) acquireTicket(me cpu.ID) *Held {
	kernel.Assert(cpu.ID(l.holder.Load()) != me, "sync", errReentrantAcquire.Message)

	myTicket := atomic.AddUint32(&l.ticket, 1) - 1
	for atomic.LoadUint32(&l.current) != myTicket {
		cpu.SpinLoopHint()
	}

	l.holder.Store(uint32(me))
	return &Held{lock: l, cpuID: me}
}

// TryAcquire attempts to acquire the lock without spinning. It succeeds
// only if the lock was completely free (no ticket outstanding) at the
// moment of the attempt, preserving FIFO order for everyone else: a
// TryAcquire never lets a late arrival cut in front of a CPU that is
// already spinning on an earlier ticket.
func (l *TicketLock) TryAcquire() (*Held, bool) {
	excl := cpu.GetPreemptionInterruptExclusion()
	me := excl.Cpu().ID()

	kernel.Assert(cpu.ID(l.holder.Load()) != me, "sync", errReentrantAcquire.Message)

	current := atomic.LoadUint32(&l.current)
	ticket := atomic.LoadUint32(&l.ticket)
	if current != ticket {
		excl.Release()
		return nil, false
	}
	if !atomic.CompareAndSwapUint32(&l.ticket, ticket, ticket+1) {
		excl.Release()
		return nil, false
	}

	l.holder.Store(uint32(me))
	return &Held{lock: l, cpuID: me, excl: &excl}, true
}

// IsLockedBy reports whether id currently holds the lock.
func (l *TicketLock) IsLockedBy(id cpu.ID) bool {
	return cpu.ID(l.holder.Load()) == id
}

// Release relinquishes the lock. The releasing CPU must be the current
// holder; violating that is a programming error and panics.
func (h *Held) Release() {
	kernel.Assert(!h.released, "sync", "ticket lock released twice")
	h.released = true

	kernel.Assert(cpu.ID(h.lock.holder.Load()) == h.cpuID, "sync", errReleaseNotHolder.Message)

	h.lock.holder.Store(uint32(cpu.None))
	atomic.AddUint32(&h.lock.current, 1)
	if h.excl != nil {
		h.excl.Release()
	}
}

// UnsafeRelease releases the lock on behalf of a logical owner other than
// the calling CPU. It performs no identity assertion and exists only for
// the scheduler, which may need to release a lock a task acquired before
// migrating in a controlled transition. It does not release any exclusion
// token, since the calling CPU never acquired one for this lock.
func (l *TicketLock) UnsafeRelease() {
	l.holder.Store(uint32(cpu.None))
	atomic.AddUint32(&l.current, 1)
}
