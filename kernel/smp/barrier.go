package smp

import (
	"sync/atomic"

	"github.com/CircuitOperatingSystem/circuit/kernel/cpu"
)

// Barrier is the rendezvous point that ends the boot sequence: every
// non-bootstrap executor arrives once, after which the bootstrap executor's
// completion callback runs exactly once, and only then are the peers
// released. Go's atomic package already gives every load/store here the
// sequentially-consistent ordering a weaker acquire/release scheme would
// also satisfy.
type Barrier struct {
	ready atomic.Uint32
	n     uint32
}

// NewBarrier returns a barrier for n executors (bootstrap included).
func NewBarrier(n uint32) *Barrier {
	return &Barrier{n: n}
}

// PeerArrive is called by a non-bootstrap executor once it finishes stage 3
// per-CPU configuration. It increments the rendezvous counter and then
// spins until the bootstrap executor has released the barrier.
func (b *Barrier) PeerArrive() {
	b.ready.Add(1)
	for b.ready.Load() < b.n {
		cpu.SpinLoopHint()
	}
}

// BootstrapComplete spins until every peer has arrived, invokes onReady
// exactly once (the "initialization complete" log line belongs here), and
// then releases every peer stuck in PeerArrive.
func (b *Barrier) BootstrapComplete(onReady func()) {
	for b.ready.Load() != b.n-1 {
		cpu.SpinLoopHint()
	}
	onReady()
	b.ready.Store(b.n)
}

// Ready reports how many executors have currently arrived, for
// diagnostics.
func (b *Barrier) Ready() uint32 { return b.ready.Load() }
