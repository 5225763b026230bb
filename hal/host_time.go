//go:build !tinygo

package hal

import "time"

// hostTime clocks the soft timer peripherals from wall time. Each step
// advances them by the real time elapsed since the previous step.
type hostTime struct {
	ch  chan uint64
	seq uint64

	last time.Time
	acc  time.Duration

	timers []*SoftTimer
}

func newHostTime() *hostTime {
	return &hostTime{ch: make(chan uint64, 1024)}
}

func (t *hostTime) Ticks() <-chan uint64 { return t.ch }

func (t *hostTime) step() {
	now := time.Now()
	if t.last.IsZero() {
		t.last = now
		return
	}
	t.advance(now.Sub(t.last))
	t.last = now
}

// advance moves simulated time forward by d regardless of the wall clock.
func (t *hostTime) advance(d time.Duration) {
	for _, st := range t.timers {
		st.Elapse(d)
	}

	t.acc += d
	const tickDur = time.Millisecond
	ticks := uint64(t.acc / tickDur)
	t.acc = t.acc % tickDur
	for i := uint64(0); i < ticks; i++ {
		t.seq++
		select {
		case t.ch <- t.seq:
		default:
		}
	}
}
