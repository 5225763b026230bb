package hal

import (
	"errors"
	"sync"
	"time"
)

var ErrTimerFrequency = errors.New("hal: invalid timer frequency")

// SoftTimer is a software model of a narrow counter peripheral, used by the
// host HAL and by tests. The counter only moves when Step or Elapse is called.
//
// Interrupts are delivered synchronously on the goroutine that advances the
// counter. A ForceCompare issued while the handler is not running stays
// pending until the next Step, Elapse or Service call, the same way an
// interrupt pended under a mask is taken once the mask lifts.
type SoftTimer struct {
	mu sync.Mutex

	width uint
	mask  uint32
	hz    uint32

	counter  uint32
	overflow bool
	cmp      uint32
	cmpOn    bool
	cmpEvent bool
	pending  bool
	inIRQ    bool
	handler  func()

	acc time.Duration
}

var _ TimerPeripheral = (*SoftTimer)(nil)

// NewSoftTimer returns a width-bit counter running at hz.
func NewSoftTimer(width uint, hz uint32) *SoftTimer {
	if width == 0 || width > 32 {
		panic("hal: soft timer width out of range")
	}
	return &SoftTimer{
		width: width,
		mask:  uint32(uint64(1)<<width - 1),
		hz:    hz,
	}
}

func (t *SoftTimer) Width() uint { return t.width }

func (t *SoftTimer) SetFrequency(hz uint32) (uint32, error) {
	if hz == 0 {
		return 0, ErrTimerFrequency
	}
	t.mu.Lock()
	t.hz = hz
	t.acc = 0
	t.mu.Unlock()
	return hz, nil
}

// Frequency returns the configured count rate.
func (t *SoftTimer) Frequency() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hz
}

func (t *SoftTimer) Counter() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counter
}

func (t *SoftTimer) OverflowPending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.overflow
}

func (t *SoftTimer) ClearOverflow() {
	t.mu.Lock()
	t.overflow = false
	t.mu.Unlock()
}

func (t *SoftTimer) SetCompare(v uint32) {
	t.mu.Lock()
	t.cmp = v & t.mask
	t.cmpOn = true
	t.cmpEvent = false
	t.mu.Unlock()
}

func (t *SoftTimer) DisableCompare() {
	t.mu.Lock()
	t.cmpOn = false
	t.mu.Unlock()
}

func (t *SoftTimer) ClearCompare() {
	t.mu.Lock()
	t.cmpEvent = false
	t.mu.Unlock()
}

func (t *SoftTimer) ForceCompare() {
	t.mu.Lock()
	t.pending = true
	t.mu.Unlock()
}

func (t *SoftTimer) SetHandler(fn func()) {
	t.mu.Lock()
	t.handler = fn
	t.mu.Unlock()
}

// CompareEnabled reports whether the compare interrupt is armed and, if so,
// the programmed value.
func (t *SoftTimer) CompareEnabled() (uint32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cmp, t.cmpOn
}

// Step advances the counter by n counts, taking interrupts as events occur.
func (t *SoftTimer) Step(n uint32) {
	t.mu.Lock()
	for i := uint32(0); i < n; i++ {
		t.counter = (t.counter + 1) & t.mask
		if t.counter == 0 {
			t.overflow = true
			t.pending = true
		}
		if t.cmpOn && t.counter == t.cmp {
			t.cmpEvent = true
			t.pending = true
		}
		if t.pending {
			t.dispatchLocked()
		}
	}
	t.dispatchLocked()
	t.mu.Unlock()
}

// Elapse advances the counter by the number of counts that fit in d at the
// configured frequency, carrying the remainder to the next call.
func (t *SoftTimer) Elapse(d time.Duration) {
	t.mu.Lock()
	t.acc += d
	hz := t.hz
	var n uint64
	if hz > 0 {
		n = uint64(t.acc) * uint64(hz) / uint64(time.Second)
		t.acc -= time.Duration(n * uint64(time.Second) / uint64(hz))
	}
	t.mu.Unlock()

	for n > 0 {
		chunk := n
		if chunk > 1<<20 {
			chunk = 1 << 20
		}
		t.Step(uint32(chunk))
		n -= chunk
	}
}

// Service delivers a pending interrupt without moving the counter.
func (t *SoftTimer) Service() {
	t.Step(0)
}

func (t *SoftTimer) dispatchLocked() {
	for t.pending && !t.inIRQ && t.handler != nil {
		t.pending = false
		t.inIRQ = true
		fn := t.handler
		t.mu.Unlock()
		fn()
		t.mu.Lock()
		t.inIRQ = false
	}
}
