// Package cpu models the per-logical-CPU state the rest of the core relies
// on: the CPU identifier space and the two exclusion axes (preemption,
// interrupts). It never imports the hal package: instead of calling an Arch
// implementation directly, it drives a small set of function-variable hooks
// that hal installs once an Arch has been registered. This keeps the
// hal -> cpu dependency one-directional: hal's Arch interface can mention
// *cpu.Cpu in CurrentCPU's return type without cpu ever importing hal.
package cpu

import "github.com/CircuitOperatingSystem/circuit/kernel"

// ID identifies one logical CPU (one executor).
type ID uint32

// None is the sentinel "no CPU" identifier, used by the ticket lock's holder
// field while unlocked.
const None ID = ^ID(0)

// Cpu holds the per-logical-CPU exclusion counters. Exactly one Cpu exists
// per executor; it is never touched by any other CPU, since per-CPU
// disable counters are only ever mutated by the owning CPU.
type Cpu struct {
	id ID

	preemptDisableCount uint32
	intDisableCount     uint32
}

// NewCpu constructs a Cpu with the given identifier and zeroed counters.
// Called once per executor during SMP bring-up.
func NewCpu(id ID) *Cpu {
	return &Cpu{id: id}
}

// ID returns this CPU's identifier.
func (c *Cpu) ID() ID {
	return c.id
}

// hooks collects the arch-specific primitives cpu needs but does not
// implement. hal.SetArch populates these when an Arch is registered; until
// then calling any exclusion function panics rather than silently doing
// nothing.
type hooks struct {
	disableInterrupts func()
	enableInterrupts  func()
	interruptsEnabled func() bool
	currentCPU        func() *Cpu
	spinLoopHint      func()
}

var archHooks hooks

var errHooksNotInstalled = &kernel.Error{Module: "cpu", Message: "arch hooks not installed"}

// InstallHooks is called exactly once, by hal.SetArch, to wire this package
// to the registered architecture's interrupt and per-CPU primitives.
func InstallHooks(disableInterrupts, enableInterrupts func(), interruptsEnabled func() bool, currentCPU func() *Cpu, spinLoopHint func()) {
	archHooks = hooks{
		disableInterrupts: disableInterrupts,
		enableInterrupts:  enableInterrupts,
		interruptsEnabled: interruptsEnabled,
		currentCPU:        currentCPU,
		spinLoopHint:      spinLoopHint,
	}
}

func requireHooks() {
	if archHooks.currentCPU == nil {
		kernel.Panic(errHooksNotInstalled)
	}
}

// Current returns the Cpu struct for the CPU executing this call. Callers
// must already hold at least a PreemptionExclusion (or InterruptExclusion)
// over the returned pointer's lifetime, since nothing stops another context
// on the same core from observing inconsistent counters otherwise.
func Current() *Cpu {
	requireHooks()
	return archHooks.currentCPU()
}

// SpinLoopHint executes the architecture's spin-wait hint instruction
// (pause/wfe/...). Used by the ticket lock and the SMP rendezvous barrier
// while busy-waiting.
func SpinLoopHint() {
	requireHooks()
	archHooks.spinLoopHint()
}

// PreemptionExclusion is a short-lived, non-cloneable token proving that
// preemption is disabled on the CPU that produced it. There is no
// cooperative scheduler in the core yet, so acquiring one today only bumps
// a counter; the seam exists for when the scheduler lands.
type PreemptionExclusion struct {
	cpu      *Cpu
	released bool
}

// GetPreemptionExclusion reads the current CPU and increments its
// preemption-disable counter.
func GetPreemptionExclusion() PreemptionExclusion {
	requireHooks()
	c := archHooks.currentCPU()
	c.preemptDisableCount++
	return PreemptionExclusion{cpu: c}
}

// Release relinquishes the token. Releasing a token twice is a programming
// error and panics.
func (p *PreemptionExclusion) Release() {
	kernel.Assert(!p.released, "cpu", "preemption exclusion released twice")
	kernel.Assert(p.cpu.preemptDisableCount > 0, "cpu", "preemption exclusion underflow")
	p.released = true
	p.cpu.preemptDisableCount--
}

// InterruptExclusion is a short-lived, non-cloneable token proving that
// interrupts are disabled on the CPU that produced it.
type InterruptExclusion struct {
	cpu      *Cpu
	released bool
}

// GetInterruptExclusion disables interrupts (if not already disabled by an
// outer exclusion on this CPU), reads the current CPU, and increments its
// interrupt-disable counter.
func GetInterruptExclusion() InterruptExclusion {
	requireHooks()
	c := archHooks.currentCPU()
	if c.intDisableCount == 0 {
		archHooks.disableInterrupts()
	}
	c.intDisableCount++
	return InterruptExclusion{cpu: c}
}

// Release relinquishes the token, re-enabling interrupts once the outermost
// InterruptExclusion on this CPU has been released.
func (i *InterruptExclusion) Release() {
	kernel.Assert(!i.released, "cpu", "interrupt exclusion released twice")
	kernel.Assert(i.cpu.intDisableCount > 0, "cpu", "interrupt exclusion underflow")
	i.released = true
	i.cpu.intDisableCount--
	if i.cpu.intDisableCount == 0 {
		archHooks.enableInterrupts()
	}
}

// Cpu returns the CPU this token was issued for. Exposed so the ticket lock
// can record the holder's identity without acquiring a second exclusion.
func (i *InterruptExclusion) Cpu() *Cpu { return i.cpu }

// PreemptionInterruptExclusion is the product of a PreemptionExclusion and
// an InterruptExclusion, acquired in that order. It is what interrupt
// -context-visible spinlocks (the ticket lock) hold for the duration of
// their critical section.
type PreemptionInterruptExclusion struct {
	preempt   PreemptionExclusion
	interrupt InterruptExclusion
}

// GetPreemptionInterruptExclusion acquires a PreemptionExclusion followed by
// an InterruptExclusion.
func GetPreemptionInterruptExclusion() PreemptionInterruptExclusion {
	p := GetPreemptionExclusion()
	i := GetInterruptExclusion()
	return PreemptionInterruptExclusion{preempt: p, interrupt: i}
}

// Cpu returns the CPU this combined token was issued for.
func (e *PreemptionInterruptExclusion) Cpu() *Cpu { return e.interrupt.cpu }

// Release releases the interrupt exclusion, then the preemption exclusion —
// the reverse of acquisition order.
func (e *PreemptionInterruptExclusion) Release() {
	e.interrupt.Release()
	e.preempt.Release()
}
