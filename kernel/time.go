package kernel

import (
	"math"
	"time"

	"rtk/internal/ilist"
)

// Timezone is the offset reported alongside wall time.
type Timezone struct {
	MinutesWest int16
	DST         int16
}

// TimeChange describes a wall clock update.
type TimeChange struct {
	PrevWall time.Time
	CurWall  time.Time
	PrevTZ   Timezone
	CurTZ    Timezone

	// NewlySynced is set on the first update after boot.
	NewlySynced bool
}

// TimeChangeListener is notified after SetWallTime sets the wall clock.
// Storage belongs to the caller.
type TimeChangeListener struct {
	Func func(change *TimeChange, arg any)
	Arg  any

	link ilist.Link[TimeChangeListener]
}

// timeBase pins uptime and wall time to a tick value. It is re-pinned each
// time the tick counter's top bit flips, so the tick delta from the pin never
// exceeds half the counter range.
type timeBase struct {
	ostime  uint32
	uptime  time.Duration
	wall    time.Time
	tz      Timezone
	wallSet bool
}

func (b *timeBase) reset() {
	*b = timeBase{wall: time.Unix(0, 0).UTC()}
}

// maxAdvanceStep keeps each step below half the counter range so no top-bit
// flip goes unseen.
const maxAdvanceStep = 1 << 30

// Ticks returns the tick counter. It wraps.
func (k *Kernel) Ticks() uint32 {
	sr := k.irq.Disable()
	t := k.ticks
	k.irq.Restore(sr)
	return t
}

// Advance moves time forward by ticks, then fires due callouts, wakes due
// sleepers and requests a reschedule if one of them outranks the running
// task. It is the tick interrupt's entry into the kernel.
func (k *Kernel) Advance(ticks uint32) {
	sr := k.irq.Disable()
	for ticks > 0 {
		step := ticks
		if step > maxAdvanceStep {
			step = maxAdvanceStep
		}
		k.tickLocked(step)
		ticks -= step
	}
	k.irq.Restore(sr)

	k.runCallouts()

	sr = k.irq.Disable()
	k.wakeExpiredLocked()
	if k.idle != nil && k.current == k.idle {
		// Idle re-arms the wake timer for the new earliest deadline.
		k.kickIdleLocked()
	}
	k.irq.Restore(sr)
}

func (k *Kernel) tickLocked(step uint32) {
	prev := k.ticks
	k.ticks += step
	if int32(prev^k.ticks) < 0 {
		d := k.ticksToDuration(k.ticks - k.base.ostime)
		k.base.uptime += d
		k.base.wall = k.base.wall.Add(d)
		k.base.ostime = k.ticks
	}
}

func (k *Kernel) ticksToDuration(t uint32) time.Duration {
	return time.Duration(uint64(t) * uint64(time.Second) / uint64(k.tps))
}

// MsToTicks converts milliseconds to ticks, rounding to the nearest tick.
func (k *Kernel) MsToTicks(ms uint32) (uint32, error) {
	v := (uint64(ms)*uint64(k.tps) + 500) / 1000
	if v > math.MaxUint32 {
		return 0, ErrInvalid
	}
	return uint32(v), nil
}

// TicksToMs converts ticks to milliseconds, rounding to the nearest
// millisecond.
func (k *Kernel) TicksToMs(ticks uint32) (uint32, error) {
	v := (uint64(ticks)*1000 + uint64(k.tps)/2) / uint64(k.tps)
	if v > math.MaxUint32 {
		return 0, ErrInvalid
	}
	return uint32(v), nil
}

// Uptime returns the time elapsed since boot at tick resolution.
func (k *Kernel) Uptime() time.Duration {
	sr := k.irq.Disable()
	defer k.irq.Restore(sr)
	return k.base.uptime + k.ticksToDuration(k.ticks-k.base.ostime)
}

func (k *Kernel) wallLocked() time.Time {
	return k.base.wall.Add(k.ticksToDuration(k.ticks - k.base.ostime))
}

// WallTime returns the wall clock and timezone. Before the first
// SetWallTime the clock counts from the Unix epoch.
func (k *Kernel) WallTime() (time.Time, Timezone) {
	sr := k.irq.Disable()
	defer k.irq.Restore(sr)
	return k.wallLocked(), k.base.tz
}

// WallTimeSet reports whether SetWallTime has set the clock.
func (k *Kernel) WallTimeSet() bool {
	sr := k.irq.Disable()
	defer k.irq.Restore(sr)
	return k.base.wallSet
}

// SetWallTime sets the wall clock, the timezone, or both. Listeners are
// notified when the clock is set.
func (k *Kernel) SetWallTime(wall *time.Time, tz *Timezone) error {
	sr := k.irq.Disable()
	change := TimeChange{
		PrevWall: k.wallLocked(),
		PrevTZ:   k.base.tz,
	}
	if tz != nil {
		k.base.tz = *tz
	}
	var notify []*TimeChangeListener
	if wall != nil {
		k.base.uptime += k.ticksToDuration(k.ticks - k.base.ostime)
		k.base.ostime = k.ticks
		k.base.wall = *wall
		change.NewlySynced = !k.base.wallSet
		k.base.wallSet = true
		notify = k.listeners.Slice()
	}
	change.CurWall = k.wallLocked()
	change.CurTZ = k.base.tz
	k.irq.Restore(sr)

	if wall == nil {
		return nil
	}
	k.log.Warn().
		Time("prev", change.PrevWall).
		Time("cur", change.CurWall).
		Bool("synced", change.NewlySynced).
		Msg("wall clock changed")
	for _, l := range notify {
		l.Func(&change, l.Arg)
	}
	return nil
}

// AddTimeChangeListener registers l.
func (k *Kernel) AddTimeChangeListener(l *TimeChangeListener) error {
	if l == nil || l.Func == nil {
		return ErrInvalid
	}
	sr := k.irq.Disable()
	defer k.irq.Restore(sr)
	if l.link.Linked() {
		return ErrInvalid
	}
	k.listeners.PushBack(l)
	return nil
}

// RemoveTimeChangeListener unregisters l.
func (k *Kernel) RemoveTimeChangeListener(l *TimeChangeListener) error {
	if l == nil {
		return ErrInvalid
	}
	sr := k.irq.Disable()
	defer k.irq.Restore(sr)
	if !k.listeners.Remove(l) {
		return ErrInvalid
	}
	return nil
}

// WakeupTicks returns the number of ticks until the next timed sleeper or
// callout is due, zero if one is overdue, or WaitForever if there is none.
func (k *Kernel) WakeupTicks() uint32 {
	sr := k.irq.Disable()
	defer k.irq.Restore(sr)

	now := k.ticks
	best := WaitForever
	if c := k.callouts.Front(); c != nil {
		best = min(best, ticksUntil(c.expiry, now))
	}
	if wake, ok := k.nextSleepDeadlineLocked(); ok {
		best = min(best, ticksUntil(wake, now))
	}
	return best
}

func ticksUntil(deadline, now uint32) uint32 {
	if int32(deadline-now) <= 0 {
		return 0
	}
	return deadline - now
}
