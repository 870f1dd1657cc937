package cotask

import (
	"runtime"
	"sync/atomic"
)

// taskYield is sent on Task.yield exactly once per scheduler quantum: when
// the task suspends normally, or when its goroutine panics.
type taskYield struct {
	fatal bool
	err   error
}

// Task is a long-lived cooperative activity. Unlike the kernel this
// package is modeled on, a Task owns a real goroutine rather than a
// resume-address into a shared stack — see doc.go and SPEC_FULL.md §3 for
// why that is a faithful, licensed relaxation of the original design.
type Task struct { //nolint:govet
	name string
	fn   func(*Task)
	k    *Kernel

	state State
	wait  waitCtx

	parent *Task
	child  *Task

	ringPrev, ringNext *Task
	listPrev, listNext *Task

	ownedMutexes *Mutex // head of the singly linked owned-mutex list
	ownedTimers  *Timer // head of the singly linked owned-timer list
	destructor   func()

	turn  chan struct{} // receiving grants this task the baton
	yield chan taskYield

	killed atomic.Bool
	id     uint64
}

// Name returns the task's human-readable name, set at Setup.
func (t *Task) Name() string { return t.name }

// State returns the task's current scheduling state.
func (t *Task) State() State {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	return t.state
}

// Setup initializes a new task record in the Stopped state. entry is the
// task body; it is invoked with the Task itself so the body can call
// suspension-point methods on it. destructor, if non-nil, is invoked once
// when the task is permanently erased via Delete (including kills by
// another task) or by its entry function returning.
func (k *Kernel) Setup(name string, entry func(*Task), destructor func()) *Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	t := &Task{
		name:       name,
		fn:         entry,
		k:          k,
		state:      Stopped,
		destructor: destructor,
		id:         k.nextTaskID(),
	}
	return t
}

// Spawn is Setup followed immediately by Start; the common case.
func (k *Kernel) Spawn(name string, entry func(*Task)) *Task {
	t := k.Setup(name, entry, nil)
	t.Start()
	return t
}

// Start transitions a Stopped, SleepInfinite, or SleepTimed task back to
// Ready and links it into the runnable ring. Starting a Stopped task
// whose goroutine has already exited launches a fresh one running entry
// from the top, matching the original kernel resetting resume to entry on
// erase. Starting an already Ready/Running/Join/WaitSem/WaitIrq task is a
// no-op.
func (t *Task) Start() {
	k := t.k
	k.mu.Lock()
	ok, needsGoroutine := k.unfreeze(t)
	if !ok {
		k.mu.Unlock()
		return
	}
	if k.logger.IsEnabled(LevelInfo) {
		k.logger.Log(LogEntry{Level: LevelInfo, Category: "task", Task: t, Message: "started"})
	}
	k.mu.Unlock()

	if needsGoroutine {
		go t.run()
	}
}

// unfreeze transitions t out of Stopped, SleepInfinite, or SleepTimed into
// Ready and links it into the runnable ring, mirroring the original
// kernel's task_unfreeze. A Stopped task's goroutine has already exited
// via Goexit, so unfreezing it also prepares fresh turn/yield channels;
// needsGoroutine reports whether the caller must launch a fresh
// `go t.run()` once it has released k.mu. ok is false (with
// needsGoroutine also false) if t was in none of those three states, in
// which case unfreeze does nothing. Callers must hold k.mu.
func (k *Kernel) unfreeze(t *Task) (ok, needsGoroutine bool) {
	switch t.state {
	case SleepTimed:
		k.sleeping.remove(t)
	case Stopped, SleepInfinite:
		// already unattached to any list
	default:
		return false, false
	}
	needsGoroutine = t.state == Stopped
	t.wait = waitCtx{}
	t.state = Ready
	if needsGoroutine {
		t.turn = make(chan struct{})
		t.yield = make(chan taskYield)
		t.killed.Store(false)
	}
	k.ring.insert(t)
	return true, needsGoroutine
}

// run is the goroutine body shared by every task. It parks on turn until
// granted the baton, then executes the task's entry function exactly
// once (an entry function that wants to run "forever" simply never
// returns, looping over its own suspension-point calls — the idiomatic
// cooperative-kernel task shape).
func (t *Task) run() {
	defer func() {
		if r := recover(); r != nil {
			t.k.taskPanicked(t, r)
		}
	}()
	<-t.turn
	if t.killed.Load() {
		return
	}
	t.fn(t)
	t.k.taskReturned(t)
}

// suspend hands control back to the scheduler (by signaling yield) and
// blocks until the task is granted the baton again. Callers must have
// already mutated kernel state to reflect the new wait condition and
// released Kernel.mu before calling suspend.
func (k *Kernel) suspend(t *Task) {
	t.yield <- taskYield{}
	<-t.turn
	if t.killed.Load() {
		runtime.Goexit()
	}
}

// taskPanicked is invoked, via recover, on the panicking task's own
// goroutine. It reports the condition as fatal scheduler-wide: with no
// stack isolation between cooperative tasks, an unrecovered panic is
// treated the same way the original kernel treats shared-stack sentinel
// corruption — see SPEC_FULL.md §7.
func (k *Kernel) taskPanicked(t *Task, r any) {
	err, ok := r.(error)
	if !ok {
		err = &panicValue{v: r}
	}
	select {
	case t.yield <- taskYield{fatal: true, err: err}:
	default:
		// Scheduler is not (yet) waiting on this task's yield channel —
		// e.g. the panic happened before the task was ever granted the
		// baton. Block until it is, same as a normal suspend would.
		t.yield <- taskYield{fatal: true, err: err}
	}
}

type panicValue struct{ v any }

func (p *panicValue) Error() string { return "task panic: " + formatAny(p.v) }

func formatAny(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "non-error panic value"
}

// taskReturned handles a task's entry function returning normally: it is
// treated as an implicit permanent erase (Delete), then the goroutine
// exits.
func (k *Kernel) taskReturned(t *Task) {
	k.mu.Lock()
	k.erase(t, true)
	k.mu.Unlock()
	t.yield <- taskYield{}
}

// Current returns the task at the runnable ring's current position. From
// within a task's own entry function that is the task holding the baton;
// called between Step calls it is the task the next Step will run (the
// idle task, if nothing else is runnable). It returns nil only when the
// ring is empty.
func (k *Kernel) Current() *Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ring.current
}

func (k *Kernel) nextTaskID() uint64 {
	k.taskIDSeq++
	return k.taskIDSeq
}
