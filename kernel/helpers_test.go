package kernel

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const (
	waitTimeout = 2 * time.Second
	tick        = time.Millisecond
)

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	k := New(Config{})
	t.Cleanup(k.Close)
	return k
}

func nop(*Context, any) {}

func mustTask(t *testing.T, k *Kernel, name string, prio uint8, fn TaskFunc) *Task {
	t.Helper()
	if fn == nil {
		fn = nop
	}
	task, err := k.CreateTask(TaskConfig{Name: name, Priority: prio, Func: fn})
	if err != nil {
		t.Fatalf("CreateTask(%q) error = %v", name, err)
	}
	return task
}

func taskNames(ts []*Task) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.Name())
	}
	return out
}

func requireOrder(t *testing.T, want []string, got []*Task) {
	t.Helper()
	if diff := cmp.Diff(want, taskNames(got)); diff != "" {
		t.Fatalf("task order (-want +got):\n%s", diff)
	}
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for task")
	}
	var zero T
	return zero
}

func requireQuiet[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected value %v", v)
	case <-time.After(20 * time.Millisecond):
	}
}
