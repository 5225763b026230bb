package kernel

import "rtk/internal/ilist"

// WaitOrder selects how a wait list orders blocked tasks.
type WaitOrder uint8

const (
	WaitFIFO WaitOrder = iota
	WaitPriority
)

// waitQueue is the list of tasks blocked on a semaphore or mutex.
type waitQueue struct {
	list  ilist.List[Task]
	order WaitOrder
}

func (w *waitQueue) init(order WaitOrder) {
	w.list.Init(objLink)
	w.order = order
}

func (w *waitQueue) addLocked(t *Task) {
	var mark *Task
	if w.order == WaitPriority {
		for e := w.list.Front(); e != nil; e = w.list.Next(e) {
			if t.prio < e.prio {
				mark = e
				break
			}
		}
	}
	w.list.InsertBefore(t, mark)
	t.waitq = w
}

// insertLocked links a ready task into the ready list behind every task of
// equal or higher priority.
func (k *Kernel) insertLocked(t *Task) {
	var mark *Task
	for e := k.ready.Front(); e != nil; e = k.ready.Next(e) {
		if t.prio < e.prio {
			mark = e
			break
		}
	}
	k.ready.InsertBefore(t, mark)
}

// Insert links a ready task that is on no scheduler list into the ready list.
func (k *Kernel) Insert(t *Task) error {
	sr := k.irq.Disable()
	defer k.irq.Restore(sr)
	if t == nil || t.k != k || t.state != TaskReady || t.schedLink.Linked() {
		return ErrInvalid
	}
	k.insertLocked(t)
	return nil
}

// NextTask wakes every sleeper whose deadline has passed and returns the
// task that should hold the CPU: the ready list head.
func (k *Kernel) NextTask() *Task {
	sr := k.irq.Disable()
	k.wakeExpiredLocked()
	t := k.ready.Front()
	k.irq.Restore(sr)
	return t
}

// sleepLocked moves a task to the sleep list, replacing any earlier deadline.
// WaitForever sleeps sort behind every timed sleep, in arrival order.
func (k *Kernel) sleepLocked(t *Task, ticks uint32) {
	k.ready.Remove(t)
	k.sleeping.Remove(t)
	t.state = TaskSleep
	if ticks == WaitForever {
		t.flags |= flagNoTimeout
		t.wake = 0
		k.sleeping.PushBack(t)
		return
	}

	t.wake = k.ticks + ticks
	var mark *Task
	for e := k.sleeping.Front(); e != nil; e = k.sleeping.Next(e) {
		if e.flags&flagNoTimeout != 0 || int32(e.wake-t.wake) > 0 {
			mark = e
			break
		}
	}
	k.sleeping.InsertBefore(t, mark)
}

// Sleep moves a ready task to the sleep list for ticks ticks, or until woken
// when ticks is WaitForever. Putting the running task to sleep requests a
// reschedule, taken at its next kernel entry.
func (k *Kernel) Sleep(t *Task, ticks uint32) error {
	sr := k.irq.Disable()
	defer k.irq.Restore(sr)
	if t == nil || t.k != k || t.state != TaskReady || t == k.idle {
		return ErrInvalid
	}
	k.sleepLocked(t, ticks)
	if k.started && t == k.current {
		k.pendSwitch = true
	}
	return nil
}

// wakeupLocked makes a sleeping task ready, detaching it from any wait list.
func (k *Kernel) wakeupLocked(t *Task) {
	if t.waitq != nil {
		t.waitq.list.Remove(t)
		t.waitq = nil
	}
	t.state = TaskReady
	t.wake = 0
	t.flags &^= flagNoTimeout
	k.sleeping.Remove(t)
	k.insertLocked(t)
}

// Wakeup makes a sleeping task ready. With scheduleNow it also requests a
// reschedule if t outranks the running task.
func (k *Kernel) Wakeup(t *Task, scheduleNow bool) error {
	sr := k.irq.Disable()
	defer k.irq.Restore(sr)
	if t == nil || t.k != k || t.state != TaskSleep {
		return ErrInvalid
	}
	k.wakeupLocked(t)
	if scheduleNow {
		k.requestSwitchLocked(t)
	}
	return nil
}

// wakeExpiredLocked wakes every timed sleeper whose deadline has passed.
func (k *Kernel) wakeExpiredLocked() {
	now := k.ticks
	for t := k.sleeping.Front(); t != nil; {
		if t.flags&flagNoTimeout != 0 || int32(now-t.wake) < 0 {
			break
		}
		next := k.sleeping.Next(t)
		k.wakeupLocked(t)
		k.requestSwitchLocked(t)
		t = next
	}
}

func (k *Kernel) resortLocked(t *Task) {
	if t.state == TaskReady && k.ready.Remove(t) {
		k.insertLocked(t)
	}
	if w := t.waitq; w != nil && w.order == WaitPriority {
		w.list.Remove(t)
		w.addLocked(t)
	}
}

// Resort repositions t after its priority changed.
func (k *Kernel) Resort(t *Task) error {
	sr := k.irq.Disable()
	defer k.irq.Restore(sr)
	if t == nil || t.k != k || t.state == TaskFree {
		return ErrInvalid
	}
	k.resortLocked(t)
	return nil
}

// ReadyList returns the ready list in scheduling order.
func (k *Kernel) ReadyList() []*Task {
	sr := k.irq.Disable()
	defer k.irq.Restore(sr)
	return k.ready.Slice()
}

// SleepList returns the sleep list in wake order.
func (k *Kernel) SleepList() []*Task {
	sr := k.irq.Disable()
	defer k.irq.Restore(sr)
	return k.sleeping.Slice()
}

// nextSleepDeadlineLocked returns the earliest timed wake tick.
func (k *Kernel) nextSleepDeadlineLocked() (uint32, bool) {
	t := k.sleeping.Front()
	if t == nil || t.flags&flagNoTimeout != 0 {
		return 0, false
	}
	return t.wake, true
}
