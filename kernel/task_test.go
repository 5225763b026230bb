package kernel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStartTwiceFails(t *testing.T) {
	k := newTestKernel(t)
	require.False(t, k.Started())
	require.NoError(t, k.Start())
	require.True(t, k.Started())
	require.ErrorIs(t, k.Start(), ErrInvalid)

	tasks := k.Tasks()
	require.Len(t, tasks, 1)
	require.Equal(t, "idle", tasks[0].Name)
	require.Equal(t, uint8(IdlePriority), tasks[0].Priority)
}

func TestDelayWakesOnTick(t *testing.T) {
	k := newTestKernel(t)
	out := make(chan uint32, 1)
	mustTask(t, k, "sleeper", 5, func(ctx *Context, _ any) {
		_ = ctx.Delay(10)
		out <- ctx.Now()
	})
	require.NoError(t, k.Start())
	require.Eventually(t, func() bool { return len(k.SleepList()) == 1 }, waitTimeout, tick)

	k.Advance(9)
	requireQuiet(t, out)
	k.Advance(1)
	require.Equal(t, uint32(10), recv(t, out))
}

func TestHighestPriorityRunsFirst(t *testing.T) {
	k := newTestKernel(t)
	got := make(chan string, 3)
	for _, tc := range []struct {
		name string
		prio uint8
	}{{"c", 9}, {"a", 1}, {"b", 5}} {
		name := tc.name
		mustTask(t, k, name, tc.prio, func(*Context, any) { got <- name })
	}
	require.NoError(t, k.Start())
	require.Equal(t, "a", recv(t, got))
	require.Equal(t, "b", recv(t, got))
	require.Equal(t, "c", recv(t, got))
}

func TestYieldRoundRobinsEqualPriority(t *testing.T) {
	k := newTestKernel(t)
	got := make(chan string, 6)
	body := func(ctx *Context, arg any) {
		for i := 0; i < 3; i++ {
			got <- arg.(string)
			ctx.Yield()
		}
	}
	for _, name := range []string{"a", "b"} {
		_, err := k.CreateTask(TaskConfig{Name: name, Priority: 5, Func: body, Arg: name})
		require.NoError(t, err)
	}
	require.NoError(t, k.Start())

	var order []string
	for i := 0; i < 6; i++ {
		order = append(order, recv(t, got))
	}
	require.Equal(t, []string{"a", "b", "a", "b", "a", "b"}, order)
}

func TestTickWakeupPreemptsAtKernelEntry(t *testing.T) {
	k := newTestKernel(t)
	var stop atomic.Bool
	got := make(chan string, 2)

	mustTask(t, k, "hi", 1, func(ctx *Context, _ any) {
		_ = ctx.Delay(5)
		got <- "hi"
	})
	mustTask(t, k, "spinner", 9, func(ctx *Context, _ any) {
		got <- "spinning"
		for !stop.Load() {
			ctx.Now()
		}
	})
	require.NoError(t, k.Start())
	require.Equal(t, "spinning", recv(t, got))

	k.Advance(5)
	require.Equal(t, "hi", recv(t, got))
	stop.Store(true)
}

func TestTaskExitFreesSlot(t *testing.T) {
	k := newTestKernel(t)
	done := make(chan struct{})
	mustTask(t, k, "oneshot", 3, func(*Context, any) { close(done) })
	require.NoError(t, k.Start())
	recv(t, done)

	require.Eventually(t, func() bool { return len(k.Tasks()) == 1 }, waitTimeout, tick)
	require.Equal(t, "idle", k.Current().Name())
}

func TestRemoveSleepingTaskFromAnotherTask(t *testing.T) {
	k := newTestKernel(t)
	victim := mustTask(t, k, "victim", 2, func(ctx *Context, _ any) {
		_ = ctx.Delay(WaitForever)
	})
	res := make(chan error, 2)
	mustTask(t, k, "killer", 4, func(ctx *Context, _ any) {
		res <- ctx.Kernel().RemoveTask(victim)
		res <- ctx.Kernel().RemoveTask(ctx.Task())
	})
	require.NoError(t, k.Start())

	require.NoError(t, recv(t, res))
	require.ErrorIs(t, recv(t, res), ErrInvalid, "a task cannot remove itself")
	require.Equal(t, TaskFree, victim.State())
}

func TestCreateTaskFromRunningTaskPreempts(t *testing.T) {
	k := newTestKernel(t)
	got := make(chan string, 3)
	mustTask(t, k, "parent", 8, func(ctx *Context, _ any) {
		_, _ = ctx.Kernel().CreateTask(TaskConfig{Name: "child", Priority: 2, Func: func(*Context, any) {
			got <- "child"
		}})
		got <- "parent before"
		ctx.Yield()
		got <- "parent after"
	})
	require.NoError(t, k.Start())
	require.Equal(t, "parent before", recv(t, got))
	require.Equal(t, "child", recv(t, got))
	require.Equal(t, "parent after", recv(t, got))
}

func TestSanityCheck(t *testing.T) {
	k := newTestKernel(t)
	_, err := k.CreateTask(TaskConfig{Name: "watched", Priority: 3, Func: nop, SanityInterval: 10})
	require.NoError(t, err)
	mustTask(t, k, "unwatched", 4, nil)

	k.Advance(10)
	require.Empty(t, k.SanityCheck())
	k.Advance(1)
	late := k.SanityCheck()
	require.Len(t, late, 1)
	require.Equal(t, "watched", late[0].Name)
}

func TestSanityCheckinResetsDeadline(t *testing.T) {
	k := newTestKernel(t)
	checked := make(chan struct{})
	_, err := k.CreateTask(TaskConfig{Name: "worker", Priority: 3, SanityInterval: 10, Func: func(ctx *Context, _ any) {
		_ = ctx.Delay(8)
		ctx.SanityCheckin()
		close(checked)
		_ = ctx.Delay(WaitForever)
	}})
	require.NoError(t, err)
	require.NoError(t, k.Start())
	require.Eventually(t, func() bool { return len(k.SleepList()) == 1 }, waitTimeout, tick)

	k.Advance(8)
	recv(t, checked)
	k.Advance(10)
	require.Empty(t, k.SanityCheck())
	k.Advance(1)
	require.Len(t, k.SanityCheck(), 1)
}

type armRecorder struct{ armed chan uint32 }

func (a armRecorder) Arm(ticks uint32) {
	select {
	case a.armed <- ticks:
	default:
	}
}

func TestIdleArmsWakeTimer(t *testing.T) {
	rec := armRecorder{armed: make(chan uint32, 16)}
	k := New(Config{WakeTimer: rec})
	t.Cleanup(k.Close)

	mustTask(t, k, "sleeper", 3, func(ctx *Context, _ any) {
		_ = ctx.Delay(25)
	})
	require.NoError(t, k.Start())
	require.Equal(t, uint32(25), recv(t, rec.armed))
}
