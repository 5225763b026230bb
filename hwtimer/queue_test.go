package hwtimer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"rtk/hal"
)

// fakePeripheral is a hand-cranked timer that records what the queue
// programs into it.
type fakePeripheral struct {
	width    uint
	counter  uint32
	overflow bool
	autoInc  uint32

	// onSetCompare runs after a compare write, to model the counter moving
	// while the register is being programmed.
	onSetCompare func()

	compares []uint32
	disables int
	forces   int
	clears   int
	handler  func()
}

func newFake(width uint) *fakePeripheral { return &fakePeripheral{width: width} }

func (f *fakePeripheral) Width() uint { return f.width }
func (f *fakePeripheral) SetFrequency(hz uint32) (uint32, error) {
	return hz, nil
}
func (f *fakePeripheral) Counter() uint32 {
	v := f.counter
	f.counter += f.autoInc
	return v
}
func (f *fakePeripheral) OverflowPending() bool { return f.overflow }
func (f *fakePeripheral) ClearOverflow()        { f.overflow = false }
func (f *fakePeripheral) SetCompare(v uint32) {
	f.compares = append(f.compares, v)
	if f.onSetCompare != nil {
		f.onSetCompare()
	}
}
func (f *fakePeripheral) DisableCompare()      { f.disables++ }
func (f *fakePeripheral) ClearCompare()        { f.clears++ }
func (f *fakePeripheral) ForceCompare()        { f.forces++ }
func (f *fakePeripheral) SetHandler(fn func()) { f.handler = fn }

func (f *fakePeripheral) reset() {
	f.compares = nil
	f.disables = 0
	f.forces = 0
}

func newTestQueue(width uint) (*Queue, *fakePeripheral) {
	f := newFake(width)
	return NewQueue(0, f, hal.NewInterrupts()), f
}

func recordInto(fired *[]string, name string) func(any) {
	return func(any) { *fired = append(*fired, name) }
}

func TestStopHeadReprogramsNextOnce(t *testing.T) {
	q, f := newTestQueue(32)
	var fired []string
	var t1, t2, t3 Timer
	require.NoError(t, t1.Init(q, recordInto(&fired, "t1"), nil))
	require.NoError(t, t2.Init(q, recordInto(&fired, "t2"), nil))
	require.NoError(t, t3.Init(q, recordInto(&fired, "t3"), nil))

	require.NoError(t, t3.StartAt(300))
	require.NoError(t, t1.StartAt(100))
	require.NoError(t, t2.StartAt(200))
	if diff := cmp.Diff([]uint32{100, 200, 300}, q.Expiries()); diff != "" {
		t.Fatalf("queue order (-want +got):\n%s", diff)
	}

	f.reset()
	require.NoError(t, t1.Stop())
	require.Equal(t, []uint32{200}, f.compares)
	require.Equal(t, 0, f.forces)
	require.Equal(t, []uint32{200, 300}, q.Expiries())
}

func TestStopNonHeadLeavesCompare(t *testing.T) {
	q, f := newTestQueue(32)
	cb := func(any) {}
	var a, b Timer
	require.NoError(t, a.Init(q, cb, nil))
	require.NoError(t, b.Init(q, cb, nil))
	require.NoError(t, a.StartAt(10))
	require.NoError(t, b.StartAt(20))

	f.reset()
	require.NoError(t, b.Stop())
	require.Empty(t, f.compares)
	require.Zero(t, f.disables)
}

func TestStopLastDisablesCompare(t *testing.T) {
	q, f := newTestQueue(32)
	var a Timer
	require.NoError(t, a.Init(q, func(any) {}, nil))
	require.NoError(t, a.StartAt(10))

	f.reset()
	require.NoError(t, a.Stop())
	require.Equal(t, 1, f.disables)
	require.False(t, a.Active())

	// Idempotent.
	require.NoError(t, a.Stop())
	require.Equal(t, 0, q.Len())
}

func TestEqualExpiriesKeepInsertionOrder(t *testing.T) {
	q, f := newTestQueue(32)
	var fired []string
	var a, b, c Timer
	require.NoError(t, a.Init(q, recordInto(&fired, "a"), nil))
	require.NoError(t, b.Init(q, recordInto(&fired, "b"), nil))
	require.NoError(t, c.Init(q, recordInto(&fired, "c"), nil))
	require.NoError(t, a.StartAt(50))
	require.NoError(t, b.StartAt(50))
	require.NoError(t, c.StartAt(40))

	f.counter = 50
	q.Interrupt()
	require.Equal(t, []string{"c", "a", "b"}, fired)
	require.Equal(t, 1, f.disables)
}

func TestPastExpiryForcesInterrupt(t *testing.T) {
	q, f := newTestQueue(32)
	f.counter = 500
	var a Timer
	require.NoError(t, a.Init(q, func(any) {}, nil))

	require.NoError(t, a.StartAt(400))
	require.Empty(t, f.compares)
	require.Equal(t, 1, f.forces)

	f.reset()
	var b Timer
	require.NoError(t, b.Init(q, func(any) {}, nil))
	require.NoError(t, b.StartAt(500))
	require.Empty(t, f.compares, "not the head")
}

func TestCounterPassingCompareWhileArmingForces(t *testing.T) {
	q, f := newTestQueue(32)
	f.counter = 98
	f.onSetCompare = func() { f.counter = 101 }

	var a Timer
	require.NoError(t, a.Init(q, func(any) {}, nil))
	require.NoError(t, a.StartAt(100))
	require.Equal(t, []uint32{100}, f.compares)
	require.Equal(t, 1, f.forces)
}

func TestInterruptFiresDueAndRearms(t *testing.T) {
	q, f := newTestQueue(32)
	var fired []string
	var a, b, c Timer
	require.NoError(t, a.Init(q, recordInto(&fired, "a"), nil))
	require.NoError(t, b.Init(q, recordInto(&fired, "b"), nil))
	require.NoError(t, c.Init(q, recordInto(&fired, "c"), nil))
	require.NoError(t, a.StartAt(100))
	require.NoError(t, b.StartAt(200))
	require.NoError(t, c.StartAt(300))

	f.reset()
	f.counter = 250
	q.Interrupt()
	require.Equal(t, []string{"a", "b"}, fired)
	require.Equal(t, []uint32{300}, f.compares)
	require.Equal(t, 1, f.clears)
	require.True(t, c.Active())
	require.False(t, a.Active())
}

func TestCallbackMayRestartItself(t *testing.T) {
	q, f := newTestQueue(32)
	var a Timer
	n := 0
	require.NoError(t, a.Init(q, func(any) {
		n++
		require.NoError(t, a.Start(50))
	}, nil))
	require.NoError(t, a.StartAt(100))

	f.reset()
	f.counter = 100
	q.Interrupt()
	require.Equal(t, 1, n)
	require.Equal(t, uint32(150), a.Expiry())
	require.NotEmpty(t, f.compares)
	require.Equal(t, uint32(150), f.compares[len(f.compares)-1])
	require.Zero(t, f.forces)
}

func TestCallbackStopsLaterDueTimer(t *testing.T) {
	q, f := newTestQueue(32)
	var fired []string
	var a, b Timer
	require.NoError(t, b.Init(q, recordInto(&fired, "b"), nil))
	require.NoError(t, a.Init(q, func(any) {
		fired = append(fired, "a")
		require.NoError(t, b.Stop())
	}, nil))
	require.NoError(t, a.StartAt(100))
	require.NoError(t, b.StartAt(100))

	f.reset()
	f.counter = 100
	q.Interrupt()
	require.Equal(t, []string{"a"}, fired)
	require.False(t, b.Active())
	require.Empty(t, f.compares)
}

func TestCallbackArgument(t *testing.T) {
	q, f := newTestQueue(32)
	var got any
	var a Timer
	require.NoError(t, a.Init(q, func(arg any) { got = arg }, "payload"))
	require.NoError(t, a.StartAt(1))
	f.counter = 1
	q.Interrupt()
	require.Equal(t, "payload", got)
}

func TestNarrowCounterFoldsOverflow(t *testing.T) {
	q, f := newTestQueue(16)
	f.counter = 0xfff0
	require.Equal(t, uint32(0xfff0), q.Read())

	f.counter = 0x0005
	f.overflow = true
	require.Equal(t, uint32(0x1_0005), q.Read())
	require.False(t, f.overflow)

	f.counter = 0x0007
	require.Equal(t, uint32(0x1_0007), q.Read())
}

func TestFarExpiryWaitsForOverflow(t *testing.T) {
	q, f := newTestQueue(16)
	f.counter = 0x0010
	fired := 0
	var a Timer
	require.NoError(t, a.Init(q, func(any) { fired++ }, nil))

	require.NoError(t, a.StartAt(0x2_0100))
	require.Empty(t, f.compares)
	require.Equal(t, 1, f.disables)

	// First wrap: still one high word short.
	f.reset()
	f.counter = 0
	f.overflow = true
	q.Interrupt()
	require.Zero(t, fired)
	require.Empty(t, f.compares)
	require.Equal(t, 1, f.disables)

	// Second wrap: the expiry is now in range of the compare register.
	f.reset()
	f.counter = 2
	f.overflow = true
	q.Interrupt()
	require.Zero(t, fired)
	require.Equal(t, []uint32{0x0100}, f.compares)

	f.counter = 0x0100
	q.Interrupt()
	require.Equal(t, 1, fired)
}

func TestStartTwiceIsRejected(t *testing.T) {
	q, _ := newTestQueue(32)
	var a Timer
	require.NoError(t, a.Init(q, func(any) {}, nil))
	require.NoError(t, a.StartAt(10))
	require.ErrorIs(t, a.StartAt(20), ErrActive)
	require.ErrorIs(t, a.Init(q, func(any) {}, nil), ErrActive)
	require.Equal(t, uint32(10), a.Expiry())
	require.Equal(t, 1, q.Len())
}

func TestStartWithoutCallbackPanics(t *testing.T) {
	q, _ := newTestQueue(32)
	var a Timer
	require.NoError(t, a.Init(q, nil, nil))
	require.Panics(t, func() { _ = a.StartAt(10) })
	require.Equal(t, 0, q.Len())
}

func TestUnboundTimer(t *testing.T) {
	var a Timer
	require.ErrorIs(t, a.Start(1), ErrNotInitialized)
	require.ErrorIs(t, a.Stop(), ErrNotInitialized)
	require.False(t, a.Active())
}

func TestWrappedExpiryOrdersAfterNow(t *testing.T) {
	q, f := newTestQueue(32)
	f.counter = 0xffff_fff0
	var fired []string
	var a, b Timer
	require.NoError(t, a.Init(q, recordInto(&fired, "a"), nil))
	require.NoError(t, b.Init(q, recordInto(&fired, "b"), nil))

	require.NoError(t, a.Start(0x20)) // 0x10 after the wrap
	require.NoError(t, b.Start(0x08)) // before the wrap
	require.Equal(t, []uint32{0xffff_fff8, 0x0000_0010}, q.Expiries())

	f.counter = 0x10
	q.Interrupt()
	require.Equal(t, []string{"b", "a"}, fired)
}
