package acpi

import (
	"testing"

	"github.com/CircuitOperatingSystem/circuit/kernel"
	"github.com/CircuitOperatingSystem/circuit/kernel/cpu"
	"github.com/CircuitOperatingSystem/circuit/kernel/hal"
	"github.com/CircuitOperatingSystem/circuit/kernel/mem"
	"github.com/stretchr/testify/require"
)

type fakePageTable struct{}

func (fakePageTable) Activate() {}

type fakeArch struct {
	mapped []mem.VirtualRange
}

func (a *fakeArch) DisableInterrupts()      {}
func (a *fakeArch) EnableInterrupts()       {}
func (a *fakeArch) InterruptsEnabled() bool { return true }
func (a *fakeArch) DisableAndHalt()         {}
func (a *fakeArch) CurrentCPU() *cpu.Cpu    { return cpu.NewCpu(0) }
func (a *fakeArch) SpinLoopHint()           {}
func (a *fakeArch) StandardPageSize() mem.Size { return mem.PageSize }
func (a *fakeArch) LargePageSizes() []mem.Size { return nil }
func (a *fakeArch) MapRange(pt hal.PageTable, virtual mem.VirtualRange, physical mem.PhysicalRange, mapType hal.MapType) *kernel.Error {
	a.mapped = append(a.mapped, virtual)
	return nil
}
func (a *fakeArch) MapRangeAllPageSizes(pt hal.PageTable, virtual mem.VirtualRange, physical mem.PhysicalRange, mapType hal.MapType) *kernel.Error {
	return a.MapRange(pt, virtual, physical, mapType)
}
func (a *fakeArch) NewPageTable(root mem.PhysicalRange) (hal.PageTable, *kernel.Error) {
	return fakePageTable{}, nil
}

func installFakeArch(t *testing.T) *fakeArch {
	t.Helper()
	a := &fakeArch{}
	hal.SetArch(a)
	return a
}

type fakeIO struct {
	writes []uint32
	r8     uint8
	r16    uint16
	r32    uint32
}

func (f *fakeIO) In8(uint16) uint8         { return f.r8 }
func (f *fakeIO) In16(uint16) uint16       { return f.r16 }
func (f *fakeIO) In32(uint16) uint32       { return f.r32 }
func (f *fakeIO) Out8(_ uint16, v uint8)   { f.writes = append(f.writes, uint32(v)) }
func (f *fakeIO) Out16(_ uint16, v uint16) { f.writes = append(f.writes, uint32(v)) }
func (f *fakeIO) Out32(_ uint16, v uint32) { f.writes = append(f.writes, v) }

type fakeRouter struct {
	routed []uint8
	fail   bool
}

func (r *fakeRouter) Route(irq, vector uint8, trampoline func()) *kernel.Error {
	if r.fail {
		return &kernel.Error{Module: "acpi", Message: "routing failed"}
	}
	r.routed = append(r.routed, vector)
	return nil
}

type fakeClock struct{ ns uint64 }

func (c *fakeClock) NanosecondsSinceBoot() uint64 { return c.ns }

func newTestHost(io IOPort, router InterruptRouter, clock Clock) *Host {
	dm := mem.NonCachedDirectMap{DirectMap: mem.DirectMap{VirtualBase: 0x1000_0000, Size: 1 << 30}}
	return NewHost(dm, nil, io, router, clock, mem.PhysicalAddress(0xE000_0000), 0x30, 0x3F)
}

func TestMapProjectsThroughDirectMap(t *testing.T) {
	arch := installFakeArch(t)
	h := newTestHost(&fakeIO{}, &fakeRouter{}, &fakeClock{})

	virt := h.Map(mem.PhysicalAddress(0x1234), mem.PageSize)

	require.Equal(t, mem.VirtualAddress(0x1000_0000+0x1234), virt)
	require.Len(t, arch.mapped, 2) // spans a page boundary: [0x1234, 0x2234)
	require.Equal(t, mem.VirtualAddress(0x1000_0000+0x1000), arch.mapped[0].Address)
	require.Equal(t, mem.VirtualAddress(0x1000_0000+0x2000), arch.mapped[1].Address)
}

func TestIOReadWriteDispatchesByWidth(t *testing.T) {
	io := &fakeIO{r8: 0xAB, r16: 0xBEEF, r32: 0xCAFEBABE}
	h := newTestHost(io, &fakeRouter{}, &fakeClock{})

	require.Equal(t, uint32(0xAB), h.IORead(0x60, 1))
	require.Equal(t, uint32(0xBEEF), h.IORead(0x60, 2))
	require.Equal(t, uint32(0xCAFEBABE), h.IORead(0x60, 4))

	h.IOWrite(0x60, 1, 0x12)
	h.IOWrite(0x60, 2, 0x3456)
	h.IOWrite(0x60, 4, 0x789ABCDE)
	require.Equal(t, []uint32{0x12, 0x3456, 0x789ABCDE}, io.writes)
}

func TestPCIConfigAddressLayout(t *testing.T) {
	h := newTestHost(&fakeIO{}, &fakeRouter{}, &fakeClock{})
	addr := h.pciConfigAddress(1, 2, 3, 0x10)
	want := h.pciBase.Add(mem.Size(uintptr(1)<<20 | uintptr(2)<<15 | uintptr(3)<<12 | 0x10))
	require.Equal(t, want, addr)
}

func TestInstallInterruptHandlerAllocatesAndRoutes(t *testing.T) {
	router := &fakeRouter{}
	h := newTestHost(&fakeIO{}, router, &fakeClock{})

	v1, err := h.InstallInterruptHandler(9, func() {})
	require.Nil(t, err)
	require.Equal(t, uint8(0x30), v1)

	v2, err := h.InstallInterruptHandler(10, func() {})
	require.Nil(t, err)
	require.Equal(t, uint8(0x31), v2)

	require.Equal(t, []uint8{0x30, 0x31}, router.routed)
}

func TestInstallInterruptHandlerExhaustsVectors(t *testing.T) {
	router := &fakeRouter{}
	dm := mem.NonCachedDirectMap{DirectMap: mem.DirectMap{VirtualBase: 0, Size: 1}}
	h := NewHost(dm, nil, &fakeIO{}, router, &fakeClock{}, 0, 0x30, 0x30)

	_, err := h.InstallInterruptHandler(1, func() {})
	require.Nil(t, err)

	_, err = h.InstallInterruptHandler(2, func() {})
	require.Equal(t, ErrVectorsExhausted, err)
}

func TestInstallInterruptHandlerPropagatesRoutingFailure(t *testing.T) {
	router := &fakeRouter{fail: true}
	h := newTestHost(&fakeIO{}, router, &fakeClock{})

	_, err := h.InstallInterruptHandler(1, func() {})
	require.NotNil(t, err)
}

func TestGetNanosecondsSinceBoot(t *testing.T) {
	h := newTestHost(&fakeIO{}, &fakeRouter{}, &fakeClock{ns: 12345})
	require.Equal(t, uint64(12345), h.GetNanosecondsSinceBoot())
}

func TestMutexAndSpinlockRoundTrip(t *testing.T) {
	installFakeArch(t)
	h := newTestHost(&fakeIO{}, &fakeRouter{}, &fakeClock{})

	m := h.CreateMutex()
	held := h.AcquireMutex(m)
	h.ReleaseMutex(held)

	l := h.CreateSpinlock()
	sheld := h.LockSpinlock(l)
	h.UnlockSpinlock(sheld)
}
