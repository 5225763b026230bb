// Package ostick drives the kernel tick from a hardware timer queue.
//
// A Source converts peripheral counts into OS ticks. In periodic mode it
// fires once per tick. In tickless mode the idle task arms it for the next
// deadline and the Source reports every whole tick that elapsed meanwhile,
// carrying the sub-tick remainder into the next period.
package ostick

import (
	"math"
	"sync"

	"rtk/hwtimer"
)

// Advancer receives elapsed ticks. *kernel.Kernel implements it.
type Advancer interface {
	Advance(ticks uint32)
}

// Source is the kernel's tick timer.
type Source struct {
	mu sync.Mutex

	q   *hwtimer.Queue
	a   Advancer
	cpt uint32

	tickless bool
	running  bool
	timer    hwtimer.Timer

	// last is the counter value at the most recent whole tick.
	last     uint32
	maxTicks uint32
}

// New returns a stopped Source producing one tick every countsPerTick counts
// of q.
func New(q *hwtimer.Queue, a Advancer, countsPerTick uint32) *Source {
	if q == nil || a == nil || countsPerTick == 0 {
		panic("ostick: invalid source")
	}
	s := &Source{
		q:        q,
		a:        a,
		cpt:      countsPerTick,
		maxTicks: 1,
	}
	// Keep every armed deadline within half the counter range of last.
	if n := math.MaxInt32 / countsPerTick; n > 1 {
		s.maxTicks = n - 1
	}
	if err := s.timer.Init(q, s.expire, nil); err != nil {
		panic(err)
	}
	return s
}

// CountsPerTick returns the number of counts in one tick.
func (s *Source) CountsPerTick() uint32 { return s.cpt }

// MaxTicks is the longest interval Arm programs in one go.
func (s *Source) MaxTicks() uint32 { return s.maxTicks }

// SetTickless selects tickless operation.
func (s *Source) SetTickless(on bool) {
	s.mu.Lock()
	s.tickless = on
	s.mu.Unlock()
}

// Tickless reports whether Arm is honored.
func (s *Source) Tickless() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickless
}

// Start begins counting ticks from now.
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return hwtimer.ErrActive
	}
	s.running = true
	s.last = s.q.Read()
	return s.timer.StartAt(s.last + s.cpt)
}

// Stop halts the tick. Ticks already elapsed but not yet reported are lost.
func (s *Source) Stop() {
	s.mu.Lock()
	s.running = false
	_ = s.timer.Stop()
	s.mu.Unlock()
}

// Arm programs the next interrupt ticks ticks after the last whole tick. It
// only has an effect in tickless mode; periodic sources ignore it.
func (s *Source) Arm(ticks uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || !s.tickless {
		return
	}
	ticks = max(ticks, 1)
	ticks = min(ticks, s.maxTicks)
	_ = s.timer.Stop()
	_ = s.timer.StartAt(s.last + ticks*s.cpt)
}

func (s *Source) expire(any) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	now := s.q.Read()
	n := (now - s.last) / s.cpt
	s.last += n * s.cpt

	_ = s.timer.Stop()
	_ = s.timer.StartAt(s.last + s.cpt)
	s.mu.Unlock()

	if n > 0 {
		s.a.Advance(n)
	}
}
