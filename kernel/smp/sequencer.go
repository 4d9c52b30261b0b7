package smp

import "github.com/CircuitOperatingSystem/circuit/kernel"

// BootstrapStage names one step of the bootstrap executor's init sequence.
type BootstrapStage int

const (
	StageInit0 BootstrapStage = iota
	StageEarlyOutput
	StageOffsetsDetermined
	StageInterruptsCaptured
	StagePMMInitialized
	StageCorePageTableLoaded
	StageACPIReady
	StageTimeInitialized
	StageHeapInitialized
	StageStacksInitialized
	StageExecutorsConstructed
	StagePeersStarted
	StageBarrierCompleted
)

// String names a bootstrap stage for logging.
func (s BootstrapStage) String() string {
	names := [...]string{
		"init0", "early_output", "offsets_determined", "interrupts_captured",
		"pmm_initialized", "core_page_table_loaded", "acpi_ready", "time_initialized",
		"heap_initialized", "stacks_initialized", "executors_constructed",
		"peers_started", "barrier_completed",
	}
	if int(s) < 0 || int(s) >= len(names) {
		return "unknown"
	}
	return names[s]
}

// PeerStage names one step of a non-bootstrap executor's init sequence.
type PeerStage int

const (
	StageSpawned PeerStage = iota
	StageStage2Entered
	StagePerCPUConfigured
	StageStage3Entered
	StageReady
)

// String names a peer stage for logging.
func (s PeerStage) String() string {
	names := [...]string{"spawned", "stage2_entered", "per_cpu_configured", "stage3_entered", "ready"}
	if int(s) < 0 || int(s) >= len(names) {
		return "unknown"
	}
	return names[s]
}

// StageFunc runs one stage of either sequence. A non-nil error return is
// always fatal.
type StageFunc func() *kernel.Error

// BootstrapSequencer runs the bootstrap executor's stages in order,
// recording which one it reached, and drives the rendezvous barrier once
// peers have been started.
type BootstrapSequencer struct {
	stage   BootstrapStage
	barrier *Barrier
	onReady func()
}

// NewBootstrapSequencer returns a sequencer that will rendezvous with
// peerCount other executors (bootstrap not included) and invoke onReady
// exactly once, when every peer has arrived.
func NewBootstrapSequencer(peerCount uint32, onReady func()) *BootstrapSequencer {
	return &BootstrapSequencer{barrier: NewBarrier(peerCount + 1), onReady: onReady}
}

// Stage reports the last stage this sequencer completed.
func (s *BootstrapSequencer) Stage() BootstrapStage { return s.stage }

// Barrier exposes the rendezvous barrier peer sequencers arrive at.
func (s *BootstrapSequencer) Barrier() *Barrier { return s.barrier }

// Run executes stages in order. stages must have exactly
// StageBarrierCompleted+1 entries; the entry for StagePeersStarted is
// expected to start every peer executor (via boot.CPUEntry.Boot) and
// return before they finish, since the barrier — not this call — is what
// waits for them. The entry for StageBarrierCompleted may be nil: Run
// always performs the rendezvous itself immediately after running it.
//
// Any stage returning a non-nil error is passed to kernel.Panic, which halts
// the calling (bootstrap) CPU; peers that were already started are not
// halted by this path.
func (s *BootstrapSequencer) Run(stages [StageBarrierCompleted + 1]StageFunc) {
	for stage, fn := range stages {
		if fn == nil {
			s.stage = BootstrapStage(stage)
			continue
		}
		if err := fn(); err != nil {
			kernel.Panic(err)
			return
		}
		s.stage = BootstrapStage(stage)
	}

	s.barrier.BootstrapComplete(s.onReady)
}

// PeerSequencer runs a non-bootstrap executor's stages and arrives at the
// shared barrier once stage 3 (per-CPU configuration) completes.
type PeerSequencer struct {
	stage   PeerStage
	barrier *Barrier
}

// NewPeerSequencer returns a sequencer that will arrive at barrier once its
// stages complete.
func NewPeerSequencer(barrier *Barrier) *PeerSequencer {
	return &PeerSequencer{barrier: barrier}
}

// Stage reports the last stage this sequencer completed.
func (s *PeerSequencer) Stage() PeerStage { return s.stage }

// Run executes stages in spec order (spawned is implicit — the caller only
// exists because it was spawned — so stages covers stage2_entered through
// stage3_entered) and then arrives at the barrier, advancing to StageReady.
func (s *PeerSequencer) Run(stages [StageStage3Entered]StageFunc) {
	s.stage = StageSpawned
	for i, fn := range stages {
		if fn == nil {
			s.stage = PeerStage(i + 1)
			continue
		}
		if err := fn(); err != nil {
			kernel.Panic(err)
			return
		}
		s.stage = PeerStage(i + 1)
	}

	s.barrier.PeerArrive()
	s.stage = StageReady
}
