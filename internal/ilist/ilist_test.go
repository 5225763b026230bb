package ilist

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type node struct {
	v    int
	a, b Link[node]
}

func newList() *List[node] {
	var l List[node]
	l.Init(func(n *node) *Link[node] { return &n.a })
	return &l
}

func values(l *List[node]) []int {
	var out []int
	for _, n := range l.Slice() {
		out = append(out, n.v)
	}
	return out
}

func TestListInsertRemove(t *testing.T) {
	l := newList()
	require.True(t, l.Empty())

	n1, n2, n3 := &node{v: 1}, &node{v: 2}, &node{v: 3}
	l.PushBack(n2)
	l.PushFront(n1)
	l.PushBack(n3)
	require.Equal(t, []int{1, 2, 3}, values(l))
	require.Equal(t, 3, l.Len())

	require.True(t, l.Remove(n2))
	require.False(t, l.Remove(n2))
	require.Equal(t, []int{1, 3}, values(l))
	require.False(t, n2.a.Linked())

	l.InsertBefore(n2, n3)
	require.Equal(t, []int{1, 2, 3}, values(l))
	require.Same(t, n1, l.Front())
	require.Same(t, n3, l.Back())
	require.Same(t, n2, l.Next(n1))
	require.Same(t, n1, l.Prev(n2))
}

func TestListInsertAfter(t *testing.T) {
	l := newList()
	n1, n2, n3 := &node{v: 1}, &node{v: 2}, &node{v: 3}
	l.InsertAfter(n1, nil)
	l.InsertAfter(n3, n1)
	l.InsertAfter(n2, n1)
	require.Equal(t, []int{1, 2, 3}, values(l))
	require.Same(t, n1, l.PopFront())
	require.Equal(t, []int{2, 3}, values(l))
}

func TestListTwoLinks(t *testing.T) {
	la := newList()
	var lb List[node]
	lb.Init(func(n *node) *Link[node] { return &n.b })

	n := &node{v: 7}
	la.PushBack(n)
	lb.PushBack(n)
	require.True(t, la.Contains(n))
	require.True(t, lb.Contains(n))

	la.Remove(n)
	require.False(t, la.Contains(n))
	require.True(t, lb.Contains(n))
}

func TestListDoubleInsertPanics(t *testing.T) {
	l := newList()
	n := &node{}
	l.PushBack(n)
	require.Panics(t, func() { l.PushBack(n) })
}
