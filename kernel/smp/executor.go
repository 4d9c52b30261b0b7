// Package smp drives the boot-time bring-up of every CPU in the system: the
// bootstrap executor runs a staged sequence from power-on to "ready for the
// scheduler", then starts every other discovered CPU and waits for them to
// reach a rendezvous barrier before declaring initialization complete. The
// shape — small, named stages; a package-level Sequencer type; errors that
// abort the whole boot rather than degrade — follows a short, explicit,
// top-to-bottom sequence of fallible steps, the same structure a
// single-core kernel's own init entry point would use, generalized to
// coordinate more than one CPU.
package smp

import (
	"github.com/CircuitOperatingSystem/circuit/kernel/cpu"
)

// Executor represents one logical CPU actively participating in the boot
// sequence. The bootstrap executor is constructed during stage 1; peer
// executors are constructed once the bootloader's CPU
// descriptor count is known.
type Executor struct {
	c          *cpu.Cpu
	isBoot     bool
	stackBytes int
	current    *Task
}

// NewExecutor wraps a *cpu.Cpu for use by the sequencer.
func NewExecutor(c *cpu.Cpu, isBoot bool) *Executor {
	return &Executor{c: c, isBoot: isBoot}
}

// Cpu returns the underlying per-CPU state.
func (e *Executor) Cpu() *cpu.Cpu { return e.c }

// IsBootstrap reports whether this is the executor stage0 ran on.
func (e *Executor) IsBootstrap() bool { return e.isBoot }

// CurrentTask returns the task this executor is currently running, or nil.
func (e *Executor) CurrentTask() *Task { return e.current }

// SetCurrentTask records the task now running on this executor.
func (e *Executor) SetCurrentTask(t *Task) { e.current = t }
