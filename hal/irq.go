package hal

// IRQState is the interrupt mask saved by Interrupts.Disable.
type IRQState uintptr

// Interrupts masks and restores interrupts on the single core.
//
// Disable must never wait for anything but another critical section to end,
// and critical sections must never nest: code holding the mask does not call
// Disable again. Restore takes the token returned by the matching Disable.
type Interrupts interface {
	Disable() IRQState
	Restore(IRQState)
}
