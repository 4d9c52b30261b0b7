package sync

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type slItem struct {
	val int
	sl  SLNode[slItem]
}

func (i *slItem) Link() *SLNode[slItem] { return &i.sl }

func TestSLListLIFO(t *testing.T) {
	var l SLList[slItem, *slItem]
	require.True(t, l.Empty())

	a, b, c := &slItem{val: 1}, &slItem{val: 2}, &slItem{val: 3}
	l.Push(a)
	l.Push(b)
	l.Push(c)

	require.Equal(t, c, l.Pop())
	require.Equal(t, b, l.Pop())
	require.Equal(t, a, l.Pop())
	require.True(t, l.Empty())
	require.Nil(t, l.Pop())
}

func TestSLStackConcurrentPushPop(t *testing.T) {
	var s SLStack[slItem, *slItem]
	const n = 1000

	items := make([]*slItem, n)
	for i := range items {
		items[i] = &slItem{val: i}
	}

	done := make(chan struct{})
	for _, it := range items {
		it := it
		go func() {
			s.Push(it)
			done <- struct{}{}
		}()
	}
	for range items {
		<-done
	}

	seen := make(map[int]bool)
	for i := 0; i < n; i++ {
		popped := s.Pop()
		require.NotNil(t, popped)
		require.False(t, seen[popped.val], "value popped twice")
		seen[popped.val] = true
	}
	require.Nil(t, s.Pop())
	require.Len(t, seen, n)
}

type dlItem struct {
	val  int
	all  DLNode[dlItem]
	kind DLNode[dlItem]
}

func TestDListOrderingAndRemoval(t *testing.T) {
	l := NewDList(func(i *dlItem) *DLNode[dlItem] { return &i.all })
	require.True(t, l.IsEmpty())

	a, b, c := &dlItem{val: 1}, &dlItem{val: 2}, &dlItem{val: 3}
	l.PushFront(a)
	l.PushFront(b)
	l.PushFront(c)

	require.Equal(t, c, l.First())
	require.Equal(t, b, l.Next(c))
	require.Equal(t, a, l.Next(b))
	require.Nil(t, l.Next(a))
	require.Nil(t, l.Prev(c))

	l.Remove(b)
	require.Equal(t, a, l.Next(c))
	require.Equal(t, c, l.Prev(a))

	require.Equal(t, c, l.PopFront())
	require.Equal(t, a, l.PopFront())
	require.True(t, l.IsEmpty())
}

func TestDListInsertBetween(t *testing.T) {
	l := NewDList(func(i *dlItem) *DLNode[dlItem] { return &i.all })

	a, b, c := &dlItem{val: 1}, &dlItem{val: 2}, &dlItem{val: 3}
	l.PushFront(a)
	l.PushFront(c)

	l.InsertBetween(b, c, a)

	require.Equal(t, c, l.First())
	require.Equal(t, b, l.Next(c))
	require.Equal(t, a, l.Next(b))
}

func TestDListTwoIndependentAxesOnSamePayload(t *testing.T) {
	all := NewDList(func(i *dlItem) *DLNode[dlItem] { return &i.all })
	kind := NewDList(func(i *dlItem) *DLNode[dlItem] { return &i.kind })

	a, b := &dlItem{val: 1}, &dlItem{val: 2}
	all.PushFront(a)
	all.PushFront(b)
	kind.PushFront(b)
	kind.PushFront(a)

	require.Equal(t, b, all.First())
	require.Equal(t, a, kind.First())
}
