package kernel

import "math"

// Semaphore is a counting semaphore. Storage belongs to the caller.
type Semaphore struct {
	k       *Kernel
	tokens  uint16
	waiters waitQueue
}

// Init sets the token count. Blocked tasks are served in arrival order.
func (s *Semaphore) Init(k *Kernel, tokens uint16) error {
	return s.InitOrdered(k, tokens, WaitFIFO)
}

// InitOrdered is Init with an explicit wait order.
func (s *Semaphore) InitOrdered(k *Kernel, tokens uint16, order WaitOrder) error {
	if k == nil {
		return ErrInvalid
	}
	s.k = k
	s.tokens = tokens
	s.waiters.init(order)
	return nil
}

// Pend takes a token, waiting up to timeout ticks for one. A zero timeout
// never blocks and accepts a nil ctx.
func (s *Semaphore) Pend(ctx *Context, timeout uint32) error {
	k := s.k
	if k == nil {
		return ErrInvalid
	}
	sr := k.irq.Disable()
	if s.tokens > 0 {
		s.tokens--
		k.irq.Restore(sr)
		return nil
	}
	if timeout == 0 {
		k.irq.Restore(sr)
		return ErrTimeout
	}
	t, err := k.runningLocked(ctx)
	if err != nil {
		return k.refuse(sr, err)
	}
	s.waiters.addLocked(t)
	t.flags |= flagSemWait
	k.block(sr, t, timeout)

	// Release clears the flag when it hands over a token.
	sr = k.irq.Disable()
	timedOut := t.flags&flagSemWait != 0
	t.flags &^= flagSemWait
	k.irq.Restore(sr)
	if timedOut {
		return ErrTimeout
	}
	return nil
}

// Release hands a token to the longest waiting task, or adds one to the
// count. It may be called from interrupt context.
func (s *Semaphore) Release() error {
	k := s.k
	if k == nil {
		return ErrInvalid
	}
	sr := k.irq.Disable()
	defer k.irq.Restore(sr)
	if t := s.waiters.list.Front(); t != nil {
		t.flags &^= flagSemWait
		k.wakeupLocked(t)
		k.requestSwitchLocked(t)
		return nil
	}
	if s.tokens == math.MaxUint16 {
		return ErrInvalid
	}
	s.tokens++
	return nil
}

// Count returns the available tokens.
func (s *Semaphore) Count() uint16 {
	sr := s.k.irq.Disable()
	defer s.k.irq.Restore(sr)
	return s.tokens
}

// Waiters returns the number of blocked tasks.
func (s *Semaphore) Waiters() int {
	sr := s.k.irq.Disable()
	defer s.k.irq.Restore(sr)
	return s.waiters.list.Len()
}

// WaitList returns the blocked tasks in service order.
func (s *Semaphore) WaitList() []*Task {
	sr := s.k.irq.Disable()
	defer s.k.irq.Restore(sr)
	return s.waiters.list.Slice()
}
