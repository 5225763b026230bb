package kernel

import (
	"rtk/internal/ilist"
)

// TaskID is the task's slot in the task table.
type TaskID uint8

// TaskFunc is a task body. Returning from it ends the task.
type TaskFunc func(ctx *Context, arg any)

// TaskState is the scheduling state of a task.
type TaskState uint8

const (
	TaskFree TaskState = iota
	TaskReady
	TaskSleep
)

func (s TaskState) String() string {
	switch s {
	case TaskFree:
		return "free"
	case TaskReady:
		return "ready"
	case TaskSleep:
		return "sleep"
	default:
		return "unknown"
	}
}

type taskFlags uint8

const (
	flagNoTimeout taskFlags = 1 << iota
	flagSemWait
	flagMutexWait
	flagEvqWait

	flagObjWait = flagSemWait | flagMutexWait | flagEvqWait
)

// TaskConfig describes a task to create.
type TaskConfig struct {
	Name     string
	Func     TaskFunc
	Arg      any
	Priority uint8

	// SanityInterval, if non-zero, is the longest a task may go without
	// calling Context.SanityCheckin.
	SanityInterval uint32

	// Stack is the task's stack on targets that switch stacks by hand. The
	// host runs tasks on goroutine stacks and only reports its size.
	Stack []byte
}

// TaskInfo is a snapshot of one task.
type TaskInfo struct {
	ID             TaskID
	Name           string
	Priority       uint8
	State          TaskState
	Switches       uint32
	NextWakeup     uint32
	Forever        bool
	StackSize      int
	SanityInterval uint32
	SanityLast     uint32
}

// runState is the goroutine side of a task slot. It outlives the slot so a
// removed task can still observe its exit signal after the slot is reused.
type runState struct {
	resume chan struct{}
	exit   chan struct{}
}

// Task is a slot in the kernel's task table.
type Task struct {
	k     *Kernel
	id    TaskID
	name  string
	prio  uint8
	state TaskState
	flags taskFlags

	fn    TaskFunc
	arg   any
	stack []byte

	wake     uint32
	switches uint32

	sanityInterval uint32
	sanityLast     uint32

	waitq *waitQueue
	held  ilist.List[Mutex]

	schedLink ilist.Link[Task] // ready or sleep list
	objLink   ilist.Link[Task] // wait list of a semaphore or mutex

	run *runState
}

func schedLink(t *Task) *ilist.Link[Task] { return &t.schedLink }
func objLink(t *Task) *ilist.Link[Task]   { return &t.objLink }

func (t *Task) ID() TaskID { return t.id }

func (t *Task) Name() string {
	sr := t.k.irq.Disable()
	defer t.k.irq.Restore(sr)
	return t.name
}

func (t *Task) Priority() uint8 {
	sr := t.k.irq.Disable()
	defer t.k.irq.Restore(sr)
	return t.prio
}

func (t *Task) State() TaskState {
	sr := t.k.irq.Disable()
	defer t.k.irq.Restore(sr)
	return t.state
}

func (t *Task) infoLocked() TaskInfo {
	return TaskInfo{
		ID:             t.id,
		Name:           t.name,
		Priority:       t.prio,
		State:          t.state,
		Switches:       t.switches,
		NextWakeup:     t.wake,
		Forever:        t.flags&flagNoTimeout != 0,
		StackSize:      len(t.stack),
		SanityInterval: t.sanityInterval,
		SanityLast:     t.sanityLast,
	}
}

// CreateTask adds a task and makes it ready. Priority 0 is the highest;
// IdlePriority is reserved.
func (k *Kernel) CreateTask(cfg TaskConfig) (*Task, error) {
	if cfg.Priority == IdlePriority {
		return nil, ErrInvalid
	}
	sr := k.irq.Disable()
	t, err := k.createLocked(cfg)
	if err != nil {
		k.irq.Restore(sr)
		return nil, err
	}
	k.requestSwitchLocked(t)
	k.irq.Restore(sr)

	k.log.Debug().Str("task", cfg.Name).Uint8("id", uint8(t.id)).Uint8("prio", cfg.Priority).Msg("task created")
	return t, nil
}

func (k *Kernel) createLocked(cfg TaskConfig) (*Task, error) {
	if cfg.Func == nil {
		return nil, ErrInvalid
	}
	var t *Task
	for i := range k.tasks {
		if k.tasks[i].state == TaskFree {
			t = &k.tasks[i]
			*t = Task{id: TaskID(i)}
			break
		}
	}
	if t == nil {
		return nil, ErrTableFull
	}

	t.k = k
	t.held.Init(heldLink)
	t.name = cfg.Name
	t.prio = cfg.Priority
	t.fn = cfg.Func
	t.arg = cfg.Arg
	t.stack = cfg.Stack
	t.sanityInterval = cfg.SanityInterval
	t.sanityLast = k.ticks
	t.state = TaskReady
	t.run = &runState{
		resume: make(chan struct{}, 1),
		exit:   make(chan struct{}),
	}
	k.insertLocked(t)

	go k.runTask(t, t.run)
	return t, nil
}

func (k *Kernel) runTask(t *Task, rs *runState) {
	select {
	case <-rs.resume:
	case <-rs.exit:
		return
	case <-k.done:
		return
	}

	defer func() {
		if r := recover(); r != nil {
			k.taskPanicked(t, r)
			panic(r)
		}
	}()
	t.fn(&Context{k: k, t: t}, t.arg)
	k.exitTask(t)
}

// exitTask frees the slot of a task whose body returned and passes the CPU
// on without parking. Mutexes the task still holds go to their waiters.
func (k *Kernel) exitTask(t *Task) {
	sr := k.irq.Disable()
	abandoned := t.held.Len()
	for m := t.held.PopFront(); m != nil; m = t.held.PopFront() {
		m.handOffLocked()
	}
	k.ready.Remove(t)
	k.sleeping.Remove(t)
	t.state = TaskFree
	name := t.name
	next := k.ready.Front()
	k.current = next
	var rs *runState
	if next != nil {
		next.switches++
		rs = next.run
	}
	k.irq.Restore(sr)

	if abandoned > 0 {
		k.log.Warn().Str("task", name).Int("mutexes", abandoned).Msg("task exited holding mutexes")
	}
	k.log.Debug().Str("task", name).Msg("task exited")
	if rs != nil {
		rs.resume <- struct{}{}
	}
}

// RemoveTask deletes a task that is neither running nor waiting on a kernel
// object nor holding a mutex. Its slot may be reused by a later CreateTask.
func (k *Kernel) RemoveTask(t *Task) error {
	sr := k.irq.Disable()
	switch {
	case t == nil || t.k != k || t.state == TaskFree:
		k.irq.Restore(sr)
		return ErrInvalid
	case t == k.current || t == k.idle:
		k.irq.Restore(sr)
		return ErrInvalid
	case t.flags&flagObjWait != 0 || t.held.Len() != 0:
		k.irq.Restore(sr)
		return ErrBusy
	}
	k.ready.Remove(t)
	k.sleeping.Remove(t)
	t.state = TaskFree
	t.flags = 0
	name := t.name
	close(t.run.exit)
	k.irq.Restore(sr)

	k.log.Debug().Str("task", name).Msg("task removed")
	return nil
}

// SetPriority changes a task's priority and repositions it in the ready list
// and in any priority ordered wait list it is on.
func (k *Kernel) SetPriority(t *Task, prio uint8) error {
	if prio == IdlePriority {
		return ErrInvalid
	}
	sr := k.irq.Disable()
	if t == nil || t.k != k || t.state == TaskFree || t == k.idle {
		k.irq.Restore(sr)
		return ErrInvalid
	}
	t.prio = prio
	k.resortLocked(t)
	if k.started {
		k.pendSwitch = true
		k.kickIdleLocked()
	}
	k.irq.Restore(sr)
	return nil
}

// Tasks returns a snapshot of every live task in table order.
func (k *Kernel) Tasks() []TaskInfo {
	sr := k.irq.Disable()
	defer k.irq.Restore(sr)
	var out []TaskInfo
	for i := range k.tasks {
		if k.tasks[i].state != TaskFree {
			out = append(out, k.tasks[i].infoLocked())
		}
	}
	return out
}

func (k *Kernel) countTasks() int {
	sr := k.irq.Disable()
	defer k.irq.Restore(sr)
	n := 0
	for i := range k.tasks {
		if k.tasks[i].state != TaskFree {
			n++
		}
	}
	return n
}
