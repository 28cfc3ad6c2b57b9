// Package schedule runs deferred callbacks that can be cancelled explicitly.
package schedule

import (
	"sync"
	"time"
)

// Task is a handle to one scheduled callback.
type Task struct {
	mu       sync.Mutex
	timer    *time.Timer
	done     bool
	onFinish func(*Task)
}

// Cancel stops the task. It reports whether the callback was prevented from running.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	if t.timer != nil {
		t.timer.Stop()
	}
	if t.onFinish != nil {
		t.onFinish(t)
	}
	return true
}

// Done reports whether the task has run or been cancelled.
func (t *Task) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

func (t *Task) fire(fn func()) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	finish := t.onFinish
	t.mu.Unlock()

	if finish != nil {
		finish(t)
	}
	fn()
}

// After runs fn on its own goroutine once d has elapsed.
func After(d time.Duration, fn func()) *Task {
	t := &Task{}
	t.mu.Lock()
	t.timer = time.AfterFunc(d, func() { t.fire(fn) })
	t.mu.Unlock()
	return t
}

// ============================================
// Group
// ============================================

// Group tracks tasks so they can be cancelled together.
type Group struct {
	mu       sync.Mutex
	tasks    map[*Task]struct{}
	disposed bool
}

// NewGroup returns an empty group.
func NewGroup() *Group {
	return &Group{tasks: make(map[*Task]struct{})}
}

// After schedules fn like After. On a disposed group the returned task is
// already cancelled and fn never runs.
func (g *Group) After(d time.Duration, fn func()) *Task {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := &Task{onFinish: g.forget}
	if g.disposed {
		t.done = true
		return t
	}
	g.tasks[t] = struct{}{}
	t.mu.Lock()
	t.timer = time.AfterFunc(d, func() { t.fire(fn) })
	t.mu.Unlock()
	return t
}

// Len returns the number of outstanding tasks.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tasks)
}

// Dispose cancels every outstanding task and rejects new ones.
func (g *Group) Dispose() {
	g.mu.Lock()
	g.disposed = true
	tasks := make([]*Task, 0, len(g.tasks))
	for t := range g.tasks {
		tasks = append(tasks, t)
	}
	g.mu.Unlock()

	for _, t := range tasks {
		t.Cancel()
	}
}

func (g *Group) forget(t *Task) {
	g.mu.Lock()
	delete(g.tasks, t)
	g.mu.Unlock()
}

// ============================================
// Debouncer
// ============================================

// Debouncer runs only the last of a burst of calls, once the burst has been
// quiet for the configured delay.
type Debouncer struct {
	mu      sync.Mutex
	group   *Group
	delay   time.Duration
	pending *Task
	fn      func()
}

// NewDebouncer creates a debouncer whose tasks belong to g.
func NewDebouncer(g *Group, delay time.Duration) *Debouncer {
	if g == nil {
		g = NewGroup()
	}
	return &Debouncer{group: g, delay: delay}
}

// Call schedules fn, replacing any call still waiting.
func (d *Debouncer) Call(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != nil {
		d.pending.Cancel()
	}
	d.fn = fn
	d.pending = d.group.After(d.delay, fn)
}

// Flush runs the waiting call now, if any.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	t, fn := d.pending, d.fn
	d.pending, d.fn = nil, nil
	d.mu.Unlock()

	if t != nil && t.Cancel() {
		fn()
	}
}

// Cancel drops the waiting call, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != nil {
		d.pending.Cancel()
		d.pending, d.fn = nil, nil
	}
}
