//go:build !tinygo

package hal

import "sync"

// hostInterrupts stands in for the interrupt mask on the host, where
// "interrupts" are other goroutines (tick pump, input) racing the task that
// holds the CPU. Hold times are a few list operations, so contention only ever
// spins briefly.
type hostInterrupts struct {
	mu sync.Mutex
}

// NewInterrupts returns the platform interrupt controller.
func NewInterrupts() Interrupts {
	return &hostInterrupts{}
}

func (h *hostInterrupts) Disable() IRQState {
	h.mu.Lock()
	return 1
}

func (h *hostInterrupts) Restore(s IRQState) {
	if s == 0 {
		panic("hal: restore of a state that was never disabled")
	}
	h.mu.Unlock()
}
