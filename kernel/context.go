package kernel

// Context provides task-local access to kernel operations.
//
// Every Context method is a kernel entry: a reschedule requested from
// interrupt context takes effect here.
type Context struct {
	k *Kernel
	t *Task
}

// Task returns the calling task.
func (c *Context) Task() *Task { return c.t }

// TaskID returns the calling task's ID.
func (c *Context) TaskID() TaskID { return c.t.id }

// Kernel returns the kernel the task runs on.
func (c *Context) Kernel() *Kernel { return c.k }

// Now returns the current tick.
func (c *Context) Now() uint32 {
	c.k.preempt(c.t)
	return c.k.Ticks()
}

// Delay sleeps the calling task for ticks ticks. A zero delay only gives
// way to a pending reschedule.
func (c *Context) Delay(ticks uint32) error {
	if ticks == 0 {
		c.k.preempt(c.t)
		return nil
	}
	k := c.k
	sr := k.irq.Disable()
	t, err := k.runningLocked(c)
	if err != nil {
		return k.refuse(sr, err)
	}
	k.block(sr, t, ticks)
	return nil
}

// Yield runs every other ready task of equal or higher priority before
// returning.
func (c *Context) Yield() {
	k := c.k
	sr := k.irq.Disable()
	if c.t.state == TaskReady && k.ready.Remove(c.t) {
		k.insertLocked(c.t)
	}
	k.irq.Restore(sr)
	k.reschedule(c.t)
}

// SanityCheckin records that the task is alive.
func (c *Context) SanityCheckin() {
	k := c.k
	sr := k.irq.Disable()
	c.t.sanityLast = k.ticks
	k.irq.Restore(sr)
	k.preempt(c.t)
}
