package boot

import (
	"testing"

	"github.com/CircuitOperatingSystem/circuit/kernel/mem"
	"github.com/stretchr/testify/require"
)

func TestMemoryTypeString(t *testing.T) {
	require.Equal(t, "free", MemoryFree.String())
	require.Equal(t, "in_use", MemoryInUse.String())
	require.Equal(t, "reclaimable", MemoryReclaimable.String())
	require.Equal(t, "reserved_or_unusable", MemoryReservedOrUnusable.String())
	require.Equal(t, "reserved_or_unusable", MemoryType(255).String())
}

func TestVisitMemoryMapStopsEarly(t *testing.T) {
	info := Info{MemoryMap: []MemoryMapEntry{
		{Range: mem.PhysicalRange{Address: 0, Size: mem.PageSize}, Type: MemoryReservedOrUnusable},
		{Range: mem.PhysicalRange{Address: mem.PhysicalAddress(mem.PageSize), Size: mem.PageSize}, Type: MemoryFree},
		{Range: mem.PhysicalRange{Address: mem.PhysicalAddress(2 * mem.PageSize), Size: mem.PageSize}, Type: MemoryFree},
	}}

	var visited []MemoryType
	info.VisitMemoryMap(func(e MemoryMapEntry) bool {
		visited = append(visited, e.Type)
		return e.Type != MemoryFree
	})

	require.Equal(t, []MemoryType{MemoryReservedOrUnusable, MemoryFree}, visited)
}

func TestCPUEntryBootInvokesBootFn(t *testing.T) {
	var gotEntry, gotUserData uintptr
	e := NewCPUEntry(1, 0xcafe, false, func(entry, userData uintptr) {
		gotEntry, gotUserData = entry, userData
	})

	e.Boot(0x1000, 0x2000)
	require.Equal(t, uintptr(0x1000), gotEntry)
	require.Equal(t, uintptr(0x2000), gotUserData)
	require.False(t, e.IsBootCPU)
	require.Equal(t, uint64(0xcafe), e.HardwareID)
}
