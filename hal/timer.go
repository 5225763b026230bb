package hal

// TimerPeripheral is one physical timer: a free-running W-bit counter with an
// overflow event and a single output-compare channel sharing one interrupt.
//
// Methods other than SetHandler are called with interrupts masked.
type TimerPeripheral interface {
	// Width is the counter width in bits, 1..32.
	Width() uint

	// SetFrequency selects the count rate and returns the rate achieved.
	SetFrequency(hz uint32) (uint32, error)

	// Counter reads the raw W-bit counter.
	Counter() uint32

	OverflowPending() bool
	ClearOverflow()

	// SetCompare programs the compare register with the low W bits of v,
	// clears a stale compare event and enables the compare interrupt.
	SetCompare(v uint32)
	DisableCompare()
	ClearCompare()

	// ForceCompare sets the interrupt pending in software. Compare registers
	// cannot be made to match after the counter passed them.
	ForceCompare()

	// SetHandler installs the interrupt vector for this peripheral.
	SetHandler(fn func())
}
