package kernel

import (
	"math"

	"rtk/internal/ilist"
)

// Callout posts its event to a queue when its timer expires. With a nil
// queue the event function runs straight from the tick.
type Callout struct {
	ev     Event
	evq    *EventQueue
	k      *Kernel
	expiry uint32
	link   ilist.Link[Callout]
}

// Init binds the callout. It must not be queued.
func (c *Callout) Init(k *Kernel, evq *EventQueue, fn func(ev *Event), arg any) {
	*c = Callout{k: k, evq: evq}
	c.ev.Func = fn
	c.ev.Arg = arg
}

// Event returns the callout's event.
func (c *Callout) Event() *Event { return &c.ev }

// Reset (re)arms the callout to fire ticks from now. Zero ticks fires on the
// next tick.
func (c *Callout) Reset(ticks uint32) error {
	k := c.k
	if k == nil || ticks > math.MaxInt32 {
		return ErrInvalid
	}
	if ticks == 0 {
		ticks = 1
	}
	sr := k.irq.Disable()
	c.stopLocked()
	c.expiry = k.ticks + ticks
	var mark *Callout
	for e := k.callouts.Front(); e != nil; e = k.callouts.Next(e) {
		if int32(c.expiry-e.expiry) < 0 {
			mark = e
			break
		}
	}
	k.callouts.InsertBefore(c, mark)
	if k.callouts.Front() == c && k.idle != nil && k.current == k.idle {
		k.kickIdleLocked()
	}
	k.irq.Restore(sr)
	return nil
}

// Stop disarms the callout and withdraws its event if already posted.
// Stopping an idle callout does nothing. A direct callback that the tick has
// already started is not interrupted.
func (c *Callout) Stop() {
	k := c.k
	if k == nil {
		return
	}
	sr := k.irq.Disable()
	c.stopLocked()
	k.irq.Restore(sr)
}

func (c *Callout) stopLocked() {
	c.k.callouts.Remove(c)
	if c.evq != nil && c.evq.list.Remove(&c.ev) {
		c.ev.queued.Store(false)
	}
}

// Queued reports whether the callout is armed.
func (c *Callout) Queued() bool {
	if c.k == nil {
		return false
	}
	sr := c.k.irq.Disable()
	defer c.k.irq.Restore(sr)
	return c.link.Linked()
}

// Expiry returns the tick the callout was last armed for.
func (c *Callout) Expiry() uint32 {
	sr := c.k.irq.Disable()
	defer c.k.irq.Restore(sr)
	return c.expiry
}

// RemainingTicks returns the ticks from now until expiry, or zero if due.
func (c *Callout) RemainingTicks(now uint32) uint32 {
	sr := c.k.irq.Disable()
	defer c.k.irq.Restore(sr)
	return ticksUntil(c.expiry, now)
}

// runCallouts fires due callouts in expiry order. Events are posted without
// leaving the critical section, so a Stop never races a post; direct
// callbacks run outside it.
func (k *Kernel) runCallouts() {
	for {
		sr := k.irq.Disable()
		c := k.callouts.Front()
		if c == nil || int32(k.ticks-c.expiry) < 0 {
			k.irq.Restore(sr)
			return
		}
		k.callouts.Remove(c)
		if c.evq != nil {
			c.evq.putLocked(&c.ev)
			k.irq.Restore(sr)
			continue
		}
		k.irq.Restore(sr)
		c.ev.Run()
	}
}

// Callouts returns the expiry of every armed callout in firing order.
func (k *Kernel) Callouts() []uint32 {
	sr := k.irq.Disable()
	defer k.irq.Restore(sr)
	out := make([]uint32, 0, k.callouts.Len())
	for c := k.callouts.Front(); c != nil; c = k.callouts.Next(c) {
		out = append(out, c.expiry)
	}
	return out
}
