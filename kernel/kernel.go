// Package kernel is a small preemptive, priority-based real-time kernel core:
// a static task table, ready and sleep lists, a wrapping tick time base,
// semaphores, mutexes, event queues and callouts.
//
// All kernel state is guarded by the platform critical section
// (hal.Interrupts). Operations that never block may be called from interrupt
// context; blocking operations take the calling task's Context.
//
// On the host each task runs on its own goroutine and exactly one of them
// holds the CPU at a time. A reschedule requested from interrupt context
// takes effect when the running task next enters the kernel, or immediately
// when the idle task holds the CPU.
package kernel

import (
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"rtk/hal"
	"rtk/internal/ilist"
)

const (
	// MaxTasks is the size of the static task table, idle task included.
	MaxTasks = 32

	// IdlePriority is reserved for the idle task.
	IdlePriority = 255

	// WaitForever is the timeout of a wait that only ends when satisfied.
	WaitForever = ^uint32(0)

	DefaultTicksPerSecond = 1000
)

// WakeTimer is the timer that produces kernel ticks. The idle task arms it
// with the number of ticks until the next deadline before it waits, so a
// tickless source can suppress ticks nobody is waiting for.
type WakeTimer interface {
	Arm(ticks uint32)
}

// Config configures a Kernel.
type Config struct {
	// TicksPerSecond is the tick rate used for time conversions.
	// Zero selects DefaultTicksPerSecond.
	TicksPerSecond uint32

	// Interrupts provides the critical section. Nil selects
	// hal.NewInterrupts().
	Interrupts hal.Interrupts

	// WakeTimer, if set, is armed by the idle task.
	WakeTimer WakeTimer

	Logger zerolog.Logger
}

// Kernel is one kernel instance.
type Kernel struct {
	irq       hal.Interrupts
	log       zerolog.Logger
	tps       uint32
	wakeTimer WakeTimer

	tasks [MaxTasks]Task

	ready    ilist.List[Task]
	sleeping ilist.List[Task]

	current    *Task
	idle       *Task
	started    bool
	pendSwitch bool

	ticks     uint32
	base      timeBase
	listeners ilist.List[TimeChangeListener]

	callouts ilist.List[Callout]
	evq      EventQueue

	kick      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New returns an initialized, not yet started kernel.
func New(cfg Config) *Kernel {
	if cfg.TicksPerSecond == 0 {
		cfg.TicksPerSecond = DefaultTicksPerSecond
	}
	if cfg.Interrupts == nil {
		cfg.Interrupts = hal.NewInterrupts()
	}
	k := &Kernel{
		irq:       cfg.Interrupts,
		log:       cfg.Logger,
		tps:       cfg.TicksPerSecond,
		wakeTimer: cfg.WakeTimer,
		kick:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	k.ready.Init(schedLink)
	k.sleeping.Init(schedLink)
	k.listeners.Init(func(l *TimeChangeListener) *ilist.Link[TimeChangeListener] { return &l.link })
	k.callouts.Init(func(c *Callout) *ilist.Link[Callout] { return &c.link })
	k.evq.Init(k)
	k.base.reset()
	return k
}

// SetWakeTimer installs the tick source armed by the idle task. It must be
// called before Start.
func (k *Kernel) SetWakeTimer(w WakeTimer) {
	sr := k.irq.Disable()
	k.wakeTimer = w
	k.irq.Restore(sr)
}

// TicksPerSecond returns the configured tick rate.
func (k *Kernel) TicksPerSecond() uint32 { return k.tps }

// Logger returns the kernel logger.
func (k *Kernel) Logger() *zerolog.Logger { return &k.log }

// Start creates the idle task and hands the CPU to the highest priority
// ready task. It returns immediately; tasks run on their own goroutines.
func (k *Kernel) Start() error {
	sr := k.irq.Disable()
	if k.started {
		k.irq.Restore(sr)
		return ErrInvalid
	}
	idle, err := k.createLocked(TaskConfig{
		Name:     "idle",
		Func:     k.idleLoop,
		Priority: IdlePriority,
	})
	if err != nil {
		k.irq.Restore(sr)
		return err
	}
	k.idle = idle
	k.started = true
	next := k.ready.Front()
	k.current = next
	next.switches++
	rs := next.run
	k.irq.Restore(sr)

	k.log.Info().Int("tasks", k.countTasks()).Uint32("hz", k.tps).Msg("kernel started")
	rs.resume <- struct{}{}
	return nil
}

// Started reports whether Start has run.
func (k *Kernel) Started() bool {
	sr := k.irq.Disable()
	ok := k.started
	k.irq.Restore(sr)
	return ok
}

// Close stops every task goroutine. A task that holds the CPU exits at its
// next kernel call. Time and event operations keep working.
func (k *Kernel) Close() {
	k.closeOnce.Do(func() { close(k.done) })
}

// Done is closed by Close.
func (k *Kernel) Done() <-chan struct{} { return k.done }

// Current returns the task holding the CPU, or nil before Start.
func (k *Kernel) Current() *Task {
	sr := k.irq.Disable()
	t := k.current
	k.irq.Restore(sr)
	return t
}

// requestSwitchLocked asks for a reschedule after t became ready. The
// running task switches at its next kernel entry; idle switches at once.
func (k *Kernel) requestSwitchLocked(t *Task) {
	if !k.started || k.current == nil {
		return
	}
	if k.current == k.idle || t.prio < k.current.prio {
		k.pendSwitch = true
		k.kickIdleLocked()
	}
}

func (k *Kernel) kickIdleLocked() {
	select {
	case k.kick <- struct{}{}:
	default:
	}
}

// reschedule wakes expired sleepers and hands the CPU to the ready list
// head. cur must be the task calling it; it returns once cur holds the CPU
// again.
func (k *Kernel) reschedule(cur *Task) {
	select {
	case <-k.done:
		runtime.Goexit()
	default:
	}

	sr := k.irq.Disable()
	k.wakeExpiredLocked()
	k.pendSwitch = false
	next := k.ready.Front()
	if next == nil || next == cur {
		k.irq.Restore(sr)
		return
	}
	k.current = next
	next.switches++
	from, to := cur.name, next.name
	mine, theirs := cur.run, next.run
	k.irq.Restore(sr)

	k.log.Trace().Str("from", from).Str("to", to).Msg("switch")
	theirs.resume <- struct{}{}
	k.park(mine)
}

// preempt honors a reschedule requested from interrupt context.
func (k *Kernel) preempt(cur *Task) {
	select {
	case <-k.done:
		runtime.Goexit()
	default:
	}
	sr := k.irq.Disable()
	pend := k.pendSwitch
	k.irq.Restore(sr)
	if pend {
		k.reschedule(cur)
	}
}

// park blocks the calling goroutine until its task is handed the CPU.
func (k *Kernel) park(rs *runState) {
	select {
	case <-rs.resume:
	case <-rs.exit:
		runtime.Goexit()
	case <-k.done:
		runtime.Goexit()
	}
}

// idleLoop runs when no other task is ready.
func (k *Kernel) idleLoop(ctx *Context, _ any) {
	for {
		k.reschedule(ctx.t)
		if k.wakeTimer != nil {
			k.wakeTimer.Arm(k.WakeupTicks())
		}
		select {
		case <-k.kick:
		case <-k.done:
			runtime.Goexit()
		}
	}
}

// runningLocked returns the task behind ctx if it may block now.
func (k *Kernel) runningLocked(ctx *Context) (*Task, error) {
	if !k.started {
		return nil, ErrNotStarted
	}
	if ctx == nil || ctx.k != k || ctx.t != k.current {
		return nil, errNotRunning
	}
	return ctx.t, nil
}

// refuse leaves the critical section and reports err, escalating a call
// from a task that does not hold the CPU.
func (k *Kernel) refuse(sr hal.IRQState, err error) error {
	k.irq.Restore(sr)
	if err == errNotRunning {
		k.Fatal(err)
	}
	return err
}

// block sleeps t for timeout ticks and runs other tasks until t is woken.
// It is entered with the critical section held and leaves it released.
func (k *Kernel) block(sr hal.IRQState, t *Task, timeout uint32) {
	k.sleepLocked(t, timeout)
	k.irq.Restore(sr)
	k.reschedule(t)
}
