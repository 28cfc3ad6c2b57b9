package schedule

import (
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAfterRuns(t *testing.T) {
	var ran atomic.Bool
	task := After(5*time.Millisecond, func() { ran.Store(true) })
	waitFor(t, ran.Load)
	if !task.Done() {
		t.Error("task should be done after running")
	}
	if task.Cancel() {
		t.Error("Cancel after run should report false")
	}
}

func TestCancelPreventsRun(t *testing.T) {
	var ran atomic.Bool
	task := After(20*time.Millisecond, func() { ran.Store(true) })
	if !task.Cancel() {
		t.Fatal("Cancel should report true for a waiting task")
	}
	time.Sleep(50 * time.Millisecond)
	if ran.Load() {
		t.Error("cancelled task ran")
	}
}

func TestGroupDispose(t *testing.T) {
	g := NewGroup()
	var runs atomic.Int32
	for range 3 {
		g.After(30*time.Millisecond, func() { runs.Add(1) })
	}
	if g.Len() != 3 {
		t.Fatalf("Len = %d, want 3", g.Len())
	}

	g.Dispose()
	if g.Len() != 0 {
		t.Errorf("Len after Dispose = %d", g.Len())
	}

	late := g.After(time.Millisecond, func() { runs.Add(1) })
	if !late.Done() {
		t.Error("task scheduled on a disposed group should be done")
	}

	time.Sleep(60 * time.Millisecond)
	if n := runs.Load(); n != 0 {
		t.Errorf("runs = %d, want 0", n)
	}
}

func TestGroupForgetsFinishedTasks(t *testing.T) {
	g := NewGroup()
	var ran atomic.Bool
	g.After(time.Millisecond, func() { ran.Store(true) })
	waitFor(t, ran.Load)
	waitFor(t, func() bool { return g.Len() == 0 })
}

func TestDebouncerRunsLastCall(t *testing.T) {
	d := NewDebouncer(nil, 30*time.Millisecond)
	var last atomic.Int32
	var runs atomic.Int32

	for i := int32(1); i <= 5; i++ {
		d.Call(func() {
			runs.Add(1)
			last.Store(i)
		})
		time.Sleep(5 * time.Millisecond)
	}

	waitFor(t, func() bool { return runs.Load() == 1 })
	time.Sleep(50 * time.Millisecond)
	if runs.Load() != 1 || last.Load() != 5 {
		t.Errorf("runs=%d last=%d, want 1 and 5", runs.Load(), last.Load())
	}
}

func TestDebouncerFlushAndCancel(t *testing.T) {
	d := NewDebouncer(NewGroup(), time.Hour)
	var runs atomic.Int32

	d.Call(func() { runs.Add(1) })
	d.Flush()
	if runs.Load() != 1 {
		t.Fatalf("Flush should run the waiting call, runs = %d", runs.Load())
	}
	d.Flush()
	if runs.Load() != 1 {
		t.Errorf("second Flush ran again")
	}

	d.Call(func() { runs.Add(1) })
	d.Cancel()
	d.Flush()
	if runs.Load() != 1 {
		t.Errorf("cancelled call ran, runs = %d", runs.Load())
	}
}

func TestDebouncerStopsWithGroup(t *testing.T) {
	g := NewGroup()
	d := NewDebouncer(g, 20*time.Millisecond)
	var ran atomic.Bool
	d.Call(func() { ran.Store(true) })
	g.Dispose()
	time.Sleep(50 * time.Millisecond)
	if ran.Load() {
		t.Error("debounced call ran after the group was disposed")
	}
}
