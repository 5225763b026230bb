package hwtimer

import (
	"runtime"

	"rtk/hal"
)

// MaxTimers bounds the number of peripherals a Bank can drive.
const MaxTimers = 4

// Bank is the id-indexed view over one Queue per peripheral.
type Bank struct {
	queues [MaxTimers]*Queue
}

// Init binds timer id to peripheral p and installs the queue's interrupt
// handler on it.
func (b *Bank) Init(id int, p hal.TimerPeripheral, irq hal.Interrupts) error {
	if id < 0 || id >= MaxTimers || p == nil || irq == nil {
		return ErrInvalidID
	}
	q := NewQueue(id, p, irq)
	b.queues[id] = q
	p.SetHandler(q.Interrupt)
	return nil
}

// Queue returns the queue for id, or nil.
func (b *Bank) Queue(id int) *Queue {
	if id < 0 || id >= MaxTimers {
		return nil
	}
	return b.queues[id]
}

func (b *Bank) lookup(id int) (*Queue, error) {
	q := b.Queue(id)
	if q == nil {
		return nil, ErrInvalidID
	}
	return q, nil
}

// Config sets the count frequency of timer id.
func (b *Bank) Config(id int, hz uint32) error {
	q, err := b.lookup(id)
	if err != nil {
		return err
	}
	return q.SetFrequency(hz)
}

// Read returns the logical counter of timer id.
func (b *Bank) Read(id int) (uint32, error) {
	q, err := b.lookup(id)
	if err != nil {
		return 0, err
	}
	return q.Read(), nil
}

// SetCallback binds t to timer id.
func (b *Bank) SetCallback(id int, t *Timer, cb func(arg any), arg any) error {
	q, err := b.lookup(id)
	if err != nil {
		return err
	}
	return t.Init(q, cb, arg)
}

func (b *Bank) Start(t *Timer, ticks uint32) error  { return t.Start(ticks) }
func (b *Bank) StartAt(t *Timer, tick uint32) error { return t.StartAt(tick) }
func (b *Bank) Stop(t *Timer) error                 { return t.Stop() }

// Delay spins until ticks counts of timer id have elapsed.
func (b *Bank) Delay(id int, ticks uint32) error {
	q, err := b.lookup(id)
	if err != nil {
		return err
	}
	until := q.Read() + ticks
	for int32(q.Read()-until) < 0 {
		runtime.Gosched()
	}
	return nil
}
