package kernel

import (
	"sync/atomic"

	"rtk/internal/ilist"
)

// Event is a callback queued on an EventQueue. The queue links the event;
// storage stays with the producer.
type Event struct {
	Func func(ev *Event)
	Arg  any

	queued atomic.Bool
	link   ilist.Link[Event]
}

// Queued reports whether the event sits on a queue.
func (ev *Event) Queued() bool { return ev.queued.Load() }

// Run calls the event's function.
func (ev *Event) Run() {
	if ev.Func != nil {
		ev.Func(ev)
	}
}

// EventQueue is a FIFO of events with at most one task waiting on it.
type EventQueue struct {
	k      *Kernel
	list   ilist.List[Event]
	waiter *Task
	owner  *Task
}

func (q *EventQueue) Init(k *Kernel) {
	q.k = k
	q.list.Init(func(ev *Event) *ilist.Link[Event] { return &ev.link })
	q.waiter = nil
	q.owner = nil
}

// Inited reports whether Init has run.
func (q *EventQueue) Inited() bool { return q.k != nil }

// DefaultEventQueue returns the kernel's general purpose queue.
func (k *Kernel) DefaultEventQueue() *EventQueue { return &k.evq }

func (q *EventQueue) mustInit() *Kernel {
	if q.k == nil {
		panic("kernel: event queue used before Init")
	}
	return q.k
}

// Put appends ev unless it is already queued and wakes the waiting task. It
// may be called from interrupt context and before Start.
func (q *EventQueue) Put(ev *Event) {
	k := q.mustInit()
	sr := k.irq.Disable()
	q.putLocked(ev)
	k.irq.Restore(sr)
}

func (q *EventQueue) putLocked(ev *Event) {
	if ev.queued.Load() {
		return
	}
	ev.queued.Store(true)
	q.list.PushBack(ev)

	if t := q.waiter; t != nil {
		if t.state == TaskSleep {
			q.k.wakeupLocked(t)
			q.k.requestSwitchLocked(t)
		}
		q.waiter = nil
	}
}

func (q *EventQueue) popLocked() *Event {
	ev := q.list.PopFront()
	if ev != nil {
		ev.queued.Store(false)
	}
	return ev
}

// GetNoWait pops the head event, or returns nil.
func (q *EventQueue) GetNoWait() *Event {
	k := q.mustInit()
	sr := k.irq.Disable()
	ev := q.popLocked()
	k.irq.Restore(sr)
	return ev
}

// Get pops the head event, waiting up to timeout ticks for one. The first
// task to Get from a queue owns it; a Get from any other task is fatal.
func (q *EventQueue) Get(ctx *Context, timeout uint32) *Event {
	k := q.mustInit()
	sr := k.irq.Disable()
	if ev := q.popLocked(); ev != nil || timeout == 0 {
		k.irq.Restore(sr)
		return ev
	}
	t, err := k.runningLocked(ctx)
	if err != nil {
		_ = k.refuse(sr, err)
		return nil
	}
	if q.owner == nil {
		q.owner = t
	} else if q.owner != t {
		k.irq.Restore(sr)
		k.Fatal("event queue read by a task that does not own it")
	}

	for {
		q.waiter = t
		t.flags |= flagEvqWait
		k.block(sr, t, timeout)

		sr = k.irq.Disable()
		q.waiter = nil
		t.flags &^= flagEvqWait
		ev := q.popLocked()
		if ev != nil || timeout != WaitForever {
			k.irq.Restore(sr)
			return ev
		}
	}
}

// Run waits for the next event and runs it.
func (q *EventQueue) Run(ctx *Context) {
	if ev := q.Get(ctx, WaitForever); ev != nil {
		ev.Run()
	}
}

// Remove unlinks ev if it is queued here.
func (q *EventQueue) Remove(ev *Event) {
	k := q.mustInit()
	sr := k.irq.Disable()
	if q.list.Remove(ev) {
		ev.queued.Store(false)
	}
	k.irq.Restore(sr)
}

// Waiter returns the task registered to be woken by the next Put.
func (q *EventQueue) Waiter() *Task {
	k := q.mustInit()
	sr := k.irq.Disable()
	defer k.irq.Restore(sr)
	return q.waiter
}

// Len returns the number of queued events.
func (q *EventQueue) Len() int {
	k := q.mustInit()
	sr := k.irq.Disable()
	defer k.irq.Restore(sr)
	return q.list.Len()
}

// Poll returns the first event found on queues, scanning in order. If none
// is queued it waits up to timeout ticks on all of them at once. A zero
// timeout never touches the scheduler and accepts a nil ctx, so it may be
// used before Start.
func Poll(ctx *Context, queues []*EventQueue, timeout uint32) *Event {
	if len(queues) == 0 {
		return nil
	}
	k := queues[0].mustInit()

	sr := k.irq.Disable()
	for _, q := range queues {
		if ev := q.popLocked(); ev != nil {
			k.irq.Restore(sr)
			return ev
		}
	}
	if timeout == 0 {
		k.irq.Restore(sr)
		return nil
	}

	t, err := k.runningLocked(ctx)
	if err != nil {
		_ = k.refuse(sr, err)
		return nil
	}
	for _, q := range queues {
		q.waiter = t
	}
	t.flags |= flagEvqWait
	k.block(sr, t, timeout)

	sr = k.irq.Disable()
	t.flags &^= flagEvqWait
	var ev *Event
	for _, q := range queues {
		q.waiter = nil
		if ev == nil {
			ev = q.popLocked()
		}
	}
	k.irq.Restore(sr)
	return ev
}
