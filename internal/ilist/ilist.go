// Package ilist implements an intrusive doubly linked list.
//
// Elements carry their own Link, so insertion and removal never allocate and an
// element can report which list it is on. A single element may sit on several
// lists at once through distinct Link fields.
//
// Lists are not safe for concurrent use; callers hold the kernel critical
// section while touching them.
package ilist

// Link is embedded in an element once per list the element can join.
type Link[T any] struct {
	next, prev *T
	owner      *List[T]
}

// Linked reports whether the link is currently on a list.
func (l *Link[T]) Linked() bool { return l.owner != nil }

// List is an intrusive doubly linked list of *T.
//
// The zero value is not usable; call Init with the accessor for the Link field
// this list threads through.
type List[T any] struct {
	head, tail *T
	n          int
	link       func(*T) *Link[T]
}

// Init resets the list and binds it to the Link returned by link.
func (l *List[T]) Init(link func(*T) *Link[T]) {
	l.head, l.tail, l.n = nil, nil, 0
	l.link = link
}

// Len returns the number of elements.
func (l *List[T]) Len() int { return l.n }

// Empty reports whether the list has no elements.
func (l *List[T]) Empty() bool {
	if l.head == nil {
		if l.tail != nil || l.n != 0 {
			panic("ilist: invariant violated checking Empty")
		}
		return true
	}
	return false
}

// Front returns the first element or nil.
func (l *List[T]) Front() *T { return l.head }

// Back returns the last element or nil.
func (l *List[T]) Back() *T { return l.tail }

// Next returns the element after e or nil.
func (l *List[T]) Next(e *T) *T { return l.link(e).next }

// Prev returns the element before e or nil.
func (l *List[T]) Prev(e *T) *T { return l.link(e).prev }

// Contains reports whether e is on this list.
func (l *List[T]) Contains(e *T) bool { return l.link(e).owner == l }

// PushBack appends e. It panics if e is already on a list through this link.
func (l *List[T]) PushBack(e *T) {
	l.InsertBefore(e, nil)
}

// PushFront prepends e.
func (l *List[T]) PushFront(e *T) {
	l.InsertBefore(e, l.head)
}

// InsertBefore links e in front of mark. A nil mark appends.
func (l *List[T]) InsertBefore(e, mark *T) {
	le := l.link(e)
	if le.owner != nil {
		panic("ilist: element already linked")
	}
	if mark == nil {
		le.prev = l.tail
		le.next = nil
		if l.tail != nil {
			l.link(l.tail).next = e
		} else {
			l.head = e
		}
		l.tail = e
	} else {
		lm := l.link(mark)
		if lm.owner != l {
			panic("ilist: mark not on this list")
		}
		le.next = mark
		le.prev = lm.prev
		if lm.prev != nil {
			l.link(lm.prev).next = e
		} else {
			l.head = e
		}
		lm.prev = e
	}
	le.owner = l
	l.n++
}

// InsertAfter links e behind mark. A nil mark prepends.
func (l *List[T]) InsertAfter(e, mark *T) {
	if mark == nil {
		l.InsertBefore(e, l.head)
		return
	}
	l.InsertBefore(e, l.link(mark).next)
}

// Remove unlinks e and reports whether it was on the list.
func (l *List[T]) Remove(e *T) bool {
	le := l.link(e)
	if le.owner != l {
		return false
	}
	if le.prev != nil {
		l.link(le.prev).next = le.next
	} else {
		l.head = le.next
	}
	if le.next != nil {
		l.link(le.next).prev = le.prev
	} else {
		l.tail = le.prev
	}
	le.next, le.prev, le.owner = nil, nil, nil
	l.n--
	return true
}

// PopFront unlinks and returns the first element, or nil.
func (l *List[T]) PopFront() *T {
	e := l.head
	if e != nil {
		l.Remove(e)
	}
	return e
}

// Slice copies the elements in list order.
func (l *List[T]) Slice() []*T {
	out := make([]*T, 0, l.n)
	for e := l.head; e != nil; e = l.link(e).next {
		out = append(out, e)
	}
	return out
}
