// Package hwtimer multiplexes software timers onto one hardware timer
// peripheral.
//
// A Queue keeps its timers sorted by expiry and keeps the peripheral's single
// compare channel armed for the earliest one. Peripherals narrower than 32
// bits are extended to a 32-bit logical counter by folding overflow events
// into the high bits.
package hwtimer

import (
	"errors"

	"rtk/hal"
	"rtk/internal/ilist"
)

var (
	ErrInvalidID      = errors.New("hwtimer: invalid timer id")
	ErrInvalidFreq    = errors.New("hwtimer: invalid frequency")
	ErrActive         = errors.New("hwtimer: timer already started")
	ErrNotInitialized = errors.New("hwtimer: timer not bound to a queue")
)

// Timer is one client request on a Queue. The zero value is unbound; bind it
// with Init or Bank.SetCallback. Storage belongs to the client.
type Timer struct {
	cb     func(arg any)
	arg    any
	expiry uint32
	q      *Queue
	link   ilist.Link[Timer]
}

// Queue is the sorted expiry queue of one peripheral.
type Queue struct {
	id  int
	p   hal.TimerPeripheral
	irq hal.Interrupts

	mask uint32 // low W bits
	step uint32 // 1<<W, zero for a 32-bit counter
	high uint32 // folded overflow count, already shifted

	freq   uint32
	timers ilist.List[Timer]
}

// NewQueue binds a queue to peripheral p. The caller routes the peripheral
// interrupt to Interrupt.
func NewQueue(id int, p hal.TimerPeripheral, irq hal.Interrupts) *Queue {
	w := p.Width()
	if w == 0 || w > 32 {
		panic("hwtimer: peripheral width out of range")
	}
	q := &Queue{
		id:   id,
		p:    p,
		irq:  irq,
		mask: uint32(uint64(1)<<w - 1),
		step: uint32(uint64(1) << w),
	}
	q.timers.Init(func(t *Timer) *ilist.Link[Timer] { return &t.link })
	return q
}

// ID returns the timer id the queue was created with.
func (q *Queue) ID() int { return q.id }

// Freq returns the last configured count frequency, or 0.
func (q *Queue) Freq() uint32 { return q.freq }

// SetFrequency configures the peripheral count rate.
func (q *Queue) SetFrequency(hz uint32) error {
	if hz == 0 {
		return ErrInvalidFreq
	}
	sr := q.irq.Disable()
	got, err := q.p.SetFrequency(hz)
	if err == nil {
		q.freq = got
	}
	q.irq.Restore(sr)
	if err != nil {
		return errors.Join(ErrInvalidFreq, err)
	}
	return nil
}

// Read returns the logical 32-bit counter.
func (q *Queue) Read() uint32 {
	sr := q.irq.Disable()
	v := q.readLocked()
	q.irq.Restore(sr)
	return v
}

// readLocked folds a latched overflow before combining, then re-reads the
// low word so it cannot pair a wrapped low word with a stale high word.
func (q *Queue) readLocked() uint32 {
	low := q.p.Counter()
	if q.p.OverflowPending() {
		q.p.ClearOverflow()
		q.high += q.step
		low = q.p.Counter()
	}
	return q.high | low&q.mask
}

// Len returns the number of started timers.
func (q *Queue) Len() int {
	sr := q.irq.Disable()
	n := q.timers.Len()
	q.irq.Restore(sr)
	return n
}

// Expiries returns the expiry of every started timer in queue order.
func (q *Queue) Expiries() []uint32 {
	sr := q.irq.Disable()
	defer q.irq.Restore(sr)
	out := make([]uint32, 0, q.timers.Len())
	for t := q.timers.Front(); t != nil; t = q.timers.Next(t) {
		out = append(out, t.expiry)
	}
	return out
}

// Init binds t to q. It fails if t is started.
func (t *Timer) Init(q *Queue, cb func(arg any), arg any) error {
	if q == nil {
		return ErrNotInitialized
	}
	if t.Active() {
		return ErrActive
	}
	t.q = q
	t.cb = cb
	t.arg = arg
	return nil
}

// Active reports whether t is waiting on its queue.
func (t *Timer) Active() bool {
	if t.q == nil {
		return false
	}
	sr := t.q.irq.Disable()
	ok := t.q.timers.Contains(t)
	t.q.irq.Restore(sr)
	return ok
}

// Expiry returns the logical tick t was last started for.
func (t *Timer) Expiry() uint32 { return t.expiry }

// Start fires t ticks from now.
func (t *Timer) Start(ticks uint32) error {
	if t.q == nil {
		return ErrNotInitialized
	}
	return t.StartAt(t.q.Read() + ticks)
}

// StartAt fires t when the logical counter reaches tick. A tick at or before
// now fires from the next interrupt.
func (t *Timer) StartAt(tick uint32) error {
	q := t.q
	if q == nil {
		return ErrNotInitialized
	}
	if t.cb == nil {
		panic("hwtimer: timer started without a callback")
	}

	sr := q.irq.Disable()
	if q.timers.Contains(t) {
		q.irq.Restore(sr)
		return ErrActive
	}
	t.expiry = tick

	var mark *Timer
	for e := q.timers.Front(); e != nil; e = q.timers.Next(e) {
		if int32(tick-e.expiry) < 0 {
			mark = e
			break
		}
	}
	q.timers.InsertBefore(t, mark)

	if q.timers.Front() == t {
		q.setCompareLocked(tick)
	}
	q.irq.Restore(sr)
	return nil
}

// Stop removes t from its queue. Stopping a timer that is not started, or has
// already fired, does nothing. Interrupt dequeues a due timer before calling
// it outside the critical section, so a Stop that lands in between returns
// and the callback still runs once.
func (t *Timer) Stop() error {
	q := t.q
	if q == nil {
		return ErrNotInitialized
	}

	sr := q.irq.Disable()
	wasHead := q.timers.Front() == t
	if q.timers.Remove(t) && wasHead {
		q.rearmLocked()
	}
	q.irq.Restore(sr)
	return nil
}

// Interrupt is the peripheral interrupt handler. It folds any overflow into
// the logical counter, fires every due timer in expiry order and re-arms the
// compare channel for the new head.
//
// Callbacks run outside the critical section and may start or stop timers.
// A callback is called even if its timer was stopped after being dequeued.
func (q *Queue) Interrupt() {
	sr := q.irq.Disable()
	q.p.ClearCompare()
	for {
		now := q.readLocked()
		t := q.timers.Front()
		if t == nil || int32(now-t.expiry) < 0 {
			break
		}
		q.timers.Remove(t)
		q.irq.Restore(sr)
		t.cb(t.arg)
		sr = q.irq.Disable()
	}
	q.rearmLocked()
	q.irq.Restore(sr)
}

func (q *Queue) rearmLocked() {
	if head := q.timers.Front(); head != nil {
		q.setCompareLocked(head.expiry)
		return
	}
	q.p.DisableCompare()
}

// setCompareLocked arms the compare channel for expiry.
//
// An expiry in the current high word is programmed directly. One whose high
// word is still ahead is left to the overflow interrupt, which re-arms. An
// expiry at or before now, including one the counter raced past while the
// register was written, is forced pending.
func (q *Queue) setCompareLocked(expiry uint32) {
	now := q.readLocked()
	if int32(expiry-now) <= 0 {
		q.p.ForceCompare()
		return
	}
	if expiry&^q.mask == now&^q.mask {
		q.p.SetCompare(expiry & q.mask)
		if int32(expiry-q.readLocked()) <= 0 {
			q.p.ForceCompare()
		}
		return
	}
	q.p.DisableCompare()
}
