// Package kmain wires together every core subsystem into the boot control
// flow: stage 1 on the bootstrap CPU builds the PMM, the kernel
// address-space arena, and the heap, then starts the remaining executors;
// each of those runs stage 2 and 3 on its own before rendezvous releases
// everyone. It is the one entry point rt0 assembly calls into, never
// expected to return.
package kmain

import (
	"bytes"

	"github.com/CircuitOperatingSystem/circuit/kernel"
	"github.com/CircuitOperatingSystem/circuit/kernel/boot"
	"github.com/CircuitOperatingSystem/circuit/kernel/hal"
	"github.com/CircuitOperatingSystem/circuit/kernel/heap"
	"github.com/CircuitOperatingSystem/circuit/kernel/kfmt"
	"github.com/CircuitOperatingSystem/circuit/kernel/mem"
	"github.com/CircuitOperatingSystem/circuit/kernel/mem/pmm"
	"github.com/CircuitOperatingSystem/circuit/kernel/smp"
	"github.com/CircuitOperatingSystem/circuit/kernel/vmem"
)

// consoleWriter routes Write calls through kfmt.Fprintf so lines still land
// in kfmt's early ring buffer when no console sink is attached yet.
type consoleWriter struct{}

func (consoleWriter) Write(p []byte) (int, error) {
	kfmt.Fprintf(kfmt.GetOutputSink(), "%s", p)
	return len(p), nil
}

// cpuLog returns a writer that tags every line logged through it with the
// booting CPU's index, so interleaved stage-progress lines from several
// executors starting up concurrently stay attributable to their CPU.
func cpuLog(index int) *kfmt.PrefixWriter {
	var prefix bytes.Buffer
	kfmt.Fprintf(&prefix, "[cpu%d] ", index)
	return &kfmt.PrefixWriter{Sink: consoleWriter{}, Prefix: prefix.Bytes()}
}

var errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

// kernelHeapWindowBase and kernelHeapWindowSize describe the slice of
// kernel virtual address space handed to the kernel address-space arena at
// boot, from which the heap arena imports. A real x86-64 higher-half layout
// would negotiate this against the direct map and the kernel image instead
// of hardcoding it; that negotiation is arch-specific and out of this
// portable core's scope.
const (
	kernelHeapWindowBase uintptr = 0xffff_9000_0000_0000
	kernelHeapWindowSize uintptr = 1 << 30
)

// Kernel collects the objects stage 1 constructs and every later stage
// needs to reach: the physical allocator, the kernel's own address-space
// arena, the heap built on top of it, and one Executor per CPU the
// bootloader reported. acpi.NewHost is constructed separately by
// architecture-specific main() code once IOPort/InterruptRouter/Clock
// backends exist (they are not part of hal.Arch), not by Kmain itself.
type Kernel struct {
	PMM          *pmm.Allocator
	AddressSpace *vmem.Arena
	Heap         *heap.Heap
	Executors    []*smp.Executor
	barrier      *smp.Barrier
}

// pending is the Kernel the currently running Kmain call is building.
// PeerMain reads it once its CPU's entry stub calls back in during stage 2.
// Exactly one Kmain call is ever in flight per boot, so this does not need
// its own lock: it is written once, before any peer's bootFn can possibly
// run, and every peer only reads it.
var pending *Kernel

// Kmain runs stage 1 on the bootstrap CPU using info from the boot
// protocol, arch as the registered architecture backend, and peerEntry as
// the address arch-specific bring-up code has already prepared for a
// non-bootstrap CPU to jump to (its own GDT/IDT and a stack are arch
// concerns kept outside this core). It starts every other CPU,
// each of which is expected to eventually call PeerMain with its index into
// info.CPUs, and blocks until all of them have rendezvoused. Kmain never
// returns; on any fatal stage error it halts via kernel.Panic instead.
func Kmain(info *boot.Info, arch hal.Arch, peerEntry uintptr) {
	hal.SetArch(arch)

	k := &Kernel{}
	pending = k
	var rootTable hal.PageTable

	seq := smp.NewBootstrapSequencer(uint32(len(info.CPUs)-1), func() {})
	k.barrier = seq.Barrier()

	var stages [smp.StageBarrierCompleted + 1]smp.StageFunc

	stages[smp.StagePMMInitialized] = func() *kernel.Error {
		k.PMM = pmm.NewAllocator(info.DirectMap)
		var rangeErr *kernel.Error
		info.VisitMemoryMap(func(e boot.MemoryMapEntry) bool {
			if e.Type != boot.MemoryFree {
				return true
			}
			if err := k.PMM.AddRange(e.Range); err != nil {
				rangeErr = err
				return false
			}
			return true
		})
		return rangeErr
	}

	stages[smp.StageCorePageTableLoaded] = func() *kernel.Error {
		root, err := k.PMM.AllocatePage()
		if err != nil {
			return err
		}
		pt, err := arch.NewPageTable(root)
		if err != nil {
			return err
		}
		rootTable = pt
		pt.Activate()
		return nil
	}

	// ACPI table enumeration itself belongs to arch-specific main() (it
	// needs kernel/acpi.Host, which this portable core cannot construct
	// without an IOPort/InterruptRouter/Clock backend); what stage_acpi_ready
	// does here is the address-space setup that must land before
	// stage_heap_initialized either way — seeding the boundary-tag supply
	// and creating the arena the heap will import from.
	stages[smp.StageACPIReady] = func() *kernel.Error {
		vmem.ConfigureTagSupply(k.PMM, info.DirectMap)
		k.AddressSpace = vmem.Create("kernel_address_space", uintptr(mem.PageSize), vmem.Options{})
		return k.AddressSpace.AddSpan(kernelHeapWindowBase, kernelHeapWindowSize)
	}

	stages[smp.StageHeapInitialized] = func() *kernel.Error {
		k.Heap = heap.New(k.AddressSpace, k.PMM, rootTable)
		return nil
	}

	stages[smp.StageExecutorsConstructed] = func() *kernel.Error {
		k.Executors = make([]*smp.Executor, len(info.CPUs))
		for i, entry := range info.CPUs {
			if entry.IsBootCPU {
				k.Executors[i] = smp.NewExecutor(arch.CurrentCPU(), true)
				kfmt.Fprintf(cpuLog(i), "bootstrap executor ready, %d CPU(s) total\n", len(info.CPUs))
			}
		}
		return nil
	}

	stages[smp.StagePeersStarted] = func() *kernel.Error {
		for i, entry := range info.CPUs {
			if entry.IsBootCPU {
				continue
			}
			kfmt.Fprintf(cpuLog(i), "starting peer\n")
			entry.Boot(peerEntry, uintptr(i))
		}
		return nil
	}

	seq.Run(stages)

	kernel.Panic(errKmainReturned)
}

// PeerMain is the Go-level entry a non-bootstrap CPU's stub jumps to after
// establishing its own arch-specific state (GDT/IDT/stack), passing the
// index this CPU occupies in the boot.Info.CPUs slice Kmain was given. It
// constructs this CPU's Executor, runs stage 2/3, and arrives at the
// rendezvous barrier. Like Kmain it never returns.
func PeerMain(index uintptr) {
	k := pending
	kernel.Assert(k != nil, "kmain", "PeerMain called before Kmain")

	k.Executors[index] = smp.NewExecutor(hal.Current().CurrentCPU(), false)
	kfmt.Fprintf(cpuLog(int(index)), "peer executor ready\n")

	peer := smp.NewPeerSequencer(k.barrier)
	peer.Run([smp.StageStage3Entered]smp.StageFunc{nil, nil, nil})

	kernel.Panic(errKmainReturned)
}
