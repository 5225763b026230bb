//go:build tinygo

package hal

import "runtime/interrupt"

type tinyGoInterrupts struct{}

// NewInterrupts returns the platform interrupt controller.
func NewInterrupts() Interrupts {
	return tinyGoInterrupts{}
}

func (tinyGoInterrupts) Disable() IRQState {
	return IRQState(interrupt.Disable())
}

func (tinyGoInterrupts) Restore(s IRQState) {
	interrupt.Restore(interrupt.State(s))
}
