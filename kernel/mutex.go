package kernel

import (
	"math"

	"rtk/internal/ilist"
)

// Mutex is a recursive mutex. Waiters are served highest priority first.
// The owner's priority is not raised while others wait.
type Mutex struct {
	k       *Kernel
	owner   *Task
	level   uint16
	waiters waitQueue
	link    ilist.Link[Mutex] // owner's held list
}

func heldLink(m *Mutex) *ilist.Link[Mutex] { return &m.link }

func (m *Mutex) Init(k *Kernel) error {
	if k == nil {
		return ErrInvalid
	}
	m.k = k
	m.owner = nil
	m.level = 0
	m.waiters.init(WaitPriority)
	return nil
}

// Pend acquires the mutex, waiting up to timeout ticks. The owner may pend
// again; each Pend needs a matching Release.
func (m *Mutex) Pend(ctx *Context, timeout uint32) error {
	k := m.k
	if k == nil {
		return ErrInvalid
	}
	sr := k.irq.Disable()
	t, err := k.runningLocked(ctx)
	if err != nil {
		return k.refuse(sr, err)
	}
	switch {
	case m.level == 0:
		m.owner = t
		m.level = 1
		t.held.PushBack(m)
		k.irq.Restore(sr)
		return nil
	case m.owner == t:
		if m.level == math.MaxUint16 {
			k.irq.Restore(sr)
			return ErrInvalid
		}
		m.level++
		k.irq.Restore(sr)
		return nil
	case timeout == 0:
		k.irq.Restore(sr)
		return ErrTimeout
	}

	m.waiters.addLocked(t)
	t.flags |= flagMutexWait
	k.block(sr, t, timeout)

	sr = k.irq.Disable()
	t.flags &^= flagMutexWait
	granted := m.owner == t
	k.irq.Restore(sr)
	if !granted {
		return ErrTimeout
	}
	return nil
}

// Release drops one level of ownership. At level zero the mutex passes to
// the highest priority waiter.
func (m *Mutex) Release(ctx *Context) error {
	k := m.k
	if k == nil {
		return ErrInvalid
	}
	sr := k.irq.Disable()
	t, err := k.runningLocked(ctx)
	if err != nil {
		return k.refuse(sr, err)
	}
	if m.level == 0 {
		k.irq.Restore(sr)
		return ErrInvalid
	}
	if m.owner != t {
		k.irq.Restore(sr)
		return ErrPermission
	}
	m.level--
	if m.level > 0 {
		k.irq.Restore(sr)
		return nil
	}
	t.held.Remove(m)

	next := m.handOffLocked()
	if next == nil {
		k.irq.Restore(sr)
		return nil
	}
	switchNow := next.prio < t.prio
	k.irq.Restore(sr)

	if switchNow {
		k.reschedule(t)
	}
	return nil
}

// handOffLocked passes a fully released mutex to its highest priority
// waiter and makes that waiter ready. It returns the new owner, if any.
func (m *Mutex) handOffLocked() *Task {
	next := m.waiters.list.Front()
	if next == nil {
		m.owner = nil
		m.level = 0
		return nil
	}
	m.owner = next
	m.level = 1
	next.held.PushBack(m)
	m.k.wakeupLocked(next)
	return next
}

// Owner returns the owning task, or nil.
func (m *Mutex) Owner() *Task {
	sr := m.k.irq.Disable()
	defer m.k.irq.Restore(sr)
	return m.owner
}

// Level returns the recursion depth of the owner.
func (m *Mutex) Level() uint16 {
	sr := m.k.irq.Disable()
	defer m.k.irq.Restore(sr)
	return m.level
}

// Waiters returns the number of blocked tasks.
func (m *Mutex) Waiters() int {
	sr := m.k.irq.Disable()
	defer m.k.irq.Restore(sr)
	return m.waiters.list.Len()
}
