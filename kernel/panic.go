package kernel

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// PanicInfo contains details about a kernel panic.
type PanicInfo struct {
	TaskID TaskID
	Task   string
	Value  any
	Stack  []byte
}

var (
	panicActive atomic.Bool
	panicOnce   sync.Once

	panicHandler atomic.Value // func(PanicInfo)
)

// InPanicMode reports whether a kernel panic has been raised.
func InPanicMode() bool {
	return panicActive.Load()
}

// SetPanicHandler installs a process-wide panic handler.
//
// The handler is invoked at most once (on the first panic). It must not panic.
func SetPanicHandler(fn func(PanicInfo)) {
	panicHandler.Store(fn)
}

func triggerPanic(info PanicInfo) {
	panicOnce.Do(func() {
		panicActive.Store(true)
		info.Stack = captureStack()
		if v := panicHandler.Load(); v != nil {
			if fn, ok := v.(func(PanicInfo)); ok && fn != nil {
				fn(info)
			}
		}
	})
}

// Fatal reports a broken kernel contract and panics. It must be called
// outside the critical section.
func (k *Kernel) Fatal(v any) {
	info := PanicInfo{Value: v}
	if t := k.Current(); t != nil {
		info.TaskID = t.id
		info.Task = t.name
	}
	k.log.Error().Str("task", info.Task).Msgf("fatal: %v", v)
	triggerPanic(info)
	panic(fmt.Sprintf("kernel: %v", v))
}

func (k *Kernel) taskPanicked(t *Task, v any) {
	k.log.Error().Str("task", t.name).Msgf("task panic: %v", v)
	triggerPanic(PanicInfo{TaskID: t.id, Task: t.name, Value: v})
}
