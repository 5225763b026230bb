package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMutexRecursion(t *testing.T) {
	k := newTestKernel(t)
	var m Mutex
	require.NoError(t, m.Init(k))

	res := make(chan []error, 1)
	mustTask(t, k, "owner", 3, func(ctx *Context, _ any) {
		var errs []error
		errs = append(errs, m.Pend(ctx, 0), m.Pend(ctx, 0))
		if m.Level() != 2 || m.Owner() != ctx.Task() {
			errs = append(errs, ErrInvalid)
		}
		errs = append(errs, m.Release(ctx), m.Release(ctx), m.Release(ctx))
		res <- errs
	})
	require.NoError(t, k.Start())

	errs := recv(t, res)
	require.Len(t, errs, 5)
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.NoError(t, errs[2])
	require.NoError(t, errs[3])
	require.ErrorIs(t, errs[4], ErrInvalid, "release of an unowned mutex")
	require.Nil(t, m.Owner())
}

func TestMutexPendNeedsStart(t *testing.T) {
	k := newTestKernel(t)
	var m Mutex
	require.NoError(t, m.Init(k))
	require.ErrorIs(t, m.Pend(nil, 0), ErrNotStarted)
}

func TestMutexHandoffByPriorityWithoutInheritance(t *testing.T) {
	k := newTestKernel(t)
	var m Mutex
	require.NoError(t, m.Init(k))

	got := make(chan string, 4)
	lo := mustTask(t, k, "lo", 20, func(ctx *Context, _ any) {
		if m.Pend(ctx, WaitForever) != nil {
			return
		}
		_ = ctx.Delay(10)
		_ = m.Release(ctx)
		got <- "lo"
	})
	waiter := func(delay uint32, name string) TaskFunc {
		return func(ctx *Context, _ any) {
			_ = ctx.Delay(delay)
			if m.Pend(ctx, WaitForever) != nil {
				return
			}
			got <- name
			_ = m.Release(ctx)
		}
	}
	mustTask(t, k, "mid", 10, waiter(1, "mid"))
	mustTask(t, k, "hi", 5, waiter(2, "hi"))
	require.NoError(t, k.Start())

	require.Eventually(t, func() bool { return m.Owner() == lo }, waitTimeout, tick)
	k.Advance(1)
	require.Eventually(t, func() bool { return m.Waiters() == 1 }, waitTimeout, tick)
	k.Advance(1)
	require.Eventually(t, func() bool { return m.Waiters() == 2 }, waitTimeout, tick)

	// The owner keeps its own priority while higher priority tasks wait.
	require.Equal(t, uint8(20), lo.Priority())

	k.Advance(8)
	require.Equal(t, "hi", recv(t, got))
	require.Equal(t, "mid", recv(t, got))
	require.Equal(t, "lo", recv(t, got))
	require.Nil(t, m.Owner())
}

func TestMutexPendTimesOutAndReleaseChecksOwner(t *testing.T) {
	k := newTestKernel(t)
	var m Mutex
	require.NoError(t, m.Init(k))

	res := make(chan error, 2)
	mustTask(t, k, "owner", 3, func(ctx *Context, _ any) {
		_ = m.Pend(ctx, 0)
		var s Semaphore
		_ = s.Init(ctx.Kernel(), 0)
		_ = s.Pend(ctx, WaitForever)
	})
	mustTask(t, k, "other", 5, func(ctx *Context, _ any) {
		res <- m.Release(ctx)
		res <- m.Pend(ctx, 3)
	})
	require.NoError(t, k.Start())

	require.ErrorIs(t, recv(t, res), ErrPermission)
	require.Eventually(t, func() bool { return m.Waiters() == 1 }, waitTimeout, tick)
	k.Advance(3)
	require.ErrorIs(t, recv(t, res), ErrTimeout)
	require.Zero(t, m.Waiters())
	require.Equal(t, uint16(1), m.Level())
}

func TestRemoveTaskRefusesLockHolderAndWaiter(t *testing.T) {
	k := newTestKernel(t)
	var m Mutex
	require.NoError(t, m.Init(k))
	var s Semaphore
	require.NoError(t, s.Init(k, 0))

	holder := mustTask(t, k, "holder", 3, func(ctx *Context, _ any) {
		_ = m.Pend(ctx, 0)
		_ = ctx.Delay(WaitForever)
	})
	waiter := mustTask(t, k, "waiter", 4, func(ctx *Context, _ any) {
		_ = s.Pend(ctx, WaitForever)
	})
	require.NoError(t, k.Start())
	require.Eventually(t, func() bool { return s.Waiters() == 1 && m.Owner() == holder }, waitTimeout, tick)

	require.ErrorIs(t, k.RemoveTask(holder), ErrBusy)
	require.ErrorIs(t, k.RemoveTask(waiter), ErrBusy)
}

func TestMutexPassesOnWhenOwnerExits(t *testing.T) {
	k := newTestKernel(t)
	var m Mutex
	require.NoError(t, m.Init(k))

	holder := mustTask(t, k, "holder", 5, func(ctx *Context, _ any) {
		if m.Pend(ctx, WaitForever) != nil {
			return
		}
		_ = ctx.Delay(5)
	})
	got := make(chan bool, 1)
	mustTask(t, k, "waiter", 3, func(ctx *Context, _ any) {
		_ = ctx.Delay(1)
		if m.Pend(ctx, WaitForever) != nil {
			got <- false
			return
		}
		got <- m.Owner() == ctx.Task()
		_ = m.Release(ctx)
	})
	require.NoError(t, k.Start())

	require.Eventually(t, func() bool { return m.Owner() == holder }, waitTimeout, tick)
	k.Advance(1)
	require.Eventually(t, func() bool { return m.Waiters() == 1 }, waitTimeout, tick)

	k.Advance(5)
	require.True(t, recv(t, got))
	require.Eventually(t, func() bool { return m.Owner() == nil }, waitTimeout, tick)
	require.Equal(t, uint16(0), m.Level())

	// The freed slot does not carry ownership into its next task.
	reused := mustTask(t, k, "reused", 7, func(ctx *Context, _ any) {
		got <- m.Pend(ctx, 0) == nil
		_ = m.Release(ctx)
	})
	require.Equal(t, holder.ID(), reused.ID())
	require.True(t, recv(t, got))
}

func TestMutexFreedWhenOwnerExitsUncontended(t *testing.T) {
	k := newTestKernel(t)
	var m Mutex
	require.NoError(t, m.Init(k))

	mustTask(t, k, "holder", 3, func(ctx *Context, _ any) {
		_ = m.Pend(ctx, 0)
		_ = m.Pend(ctx, 0)
	})
	require.NoError(t, k.Start())

	require.Eventually(t, func() bool {
		return m.Owner() == nil && k.Current() == k.idle
	}, waitTimeout, tick)
	require.Equal(t, uint16(0), m.Level())
}
