package cotask

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// activeSpan is the subset of tracez's in-flight span type that Step
// needs; keeping it as a small local interface avoids threading the
// concrete span type through a variable that is nil on the no-tracer
// path.
type activeSpan interface {
	SetTag(tracez.Tag, string)
	Finish()
}

// Kernel is the cooperative scheduler: task lifecycle, the runnable ring,
// the sleeping and IRQ-wait lists, and the shared tick/IRQ ingestion from
// a Port. There is exactly one Kernel per running system.
type Kernel struct {
	mu sync.Mutex

	port       Port
	ring       runnableRing
	sleeping   taskList
	irqWaiting taskList
	timers     []*Timer
	ticksTable *msToTicksTable

	heap      *Heap
	idle      *Task
	taskIDSeq uint64

	// lastIRQBits caches the most recent ReportedIRQs() snapshot taken by
	// wakeIRQWaiters, so the idle task can consult it without itself
	// calling Port.ReportedIRQs() (which clears the bitset on read and
	// would steal bits out from under wakeIRQWaiters).
	lastIRQBits uint32

	tickAccum atomic.Uint32

	logger    Logger
	metrics   *metricz.Registry
	tracer    *tracez.Tracer
	hooks     *hookz.Hooks[KernelEvent]
	errorFunc func(sign int, code uint32)
	fatalFunc func(err error, task *Task)
	haltCh    chan struct{}
	halted    atomic.Bool

	opts *kernelOptions
}

// New constructs a Kernel bound to port, applies opts, creates the fixed
// block heap, and spawns the idle task. The kernel does not start
// scheduling until Run is called.
func New(port Port, opts ...Option) (*Kernel, error) {
	if port == nil {
		return nil, fmt.Errorf("cotask: New requires a non-nil Port")
	}
	cfg := resolveOptions(opts)

	k := &Kernel{
		port:       port,
		ticksTable: newMsToTicksTable(1000), // 1 tick == 1ms by default
		logger:     cfg.logger,
		metrics:    cfg.metrics,
		tracer:     cfg.tracer,
		hooks:      hookz.New[KernelEvent](),
		errorFunc:  cfg.errorFunc,
		fatalFunc:  cfg.fatalFunc,
		haltCh:     make(chan struct{}),
		opts:       cfg,
	}
	if k.metrics != nil {
		registerMetrics(k.metrics)
	}
	if wc, ok := port.(WatchdogConfigurer); ok {
		wc.SetWatchdogPeriod(cfg.watchdogPeriod)
	}

	k.heap = k.NewHeap(cfg.heapBlocks, cfg.heapBlockSize, cfg.heapWakeMode)
	k.idle = k.Setup("idle", k.idleLoop, nil)
	k.idle.Start()

	return k, nil
}

// Heap returns the kernel's fixed-block heap.
func (k *Kernel) Heap() *Heap { return k.heap }

// Metrics returns the metricz.Registry configured via WithMetrics, or nil
// if metrics were not enabled.
func (k *Kernel) Metrics() *metricz.Registry { return k.metrics }

// Tracer returns the tracez.Tracer configured via WithTracer, or nil.
func (k *Kernel) Tracer() *tracez.Tracer { return k.tracer }

// Close releases observability resources. It does not stop a running
// Kernel — cancel the context passed to Run for that.
func (k *Kernel) Close() error {
	if k.hooks != nil {
		k.hooks.Close()
	}
	if k.tracer != nil {
		k.tracer.Close()
	}
	return nil
}

// Run ingests ticks and IRQs from the Port and drives the scheduler loop
// until ctx is done or the kernel halts on a fatal condition. If
// WithStartupDelay was set, Run waits that long before the first Step,
// matching the original board configuration's boot-time settle delay
// between application init and the watchdog/interrupts going live.
func (k *Kernel) Run(ctx context.Context) {
	if k.opts.startupDelay > 0 {
		select {
		case <-time.After(k.opts.startupDelay):
		case <-ctx.Done():
			return
		}
	}

	ticks := k.port.Ticks(ctx)
	go func() {
		for range ticks {
			k.tickAccum.Add(1)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		k.Step()
	}
}

// Step runs exactly one scheduler pass: grant the baton to the current
// task, wait for it to suspend (or panic), process elapsed ticks and
// reported IRQs, and kick the watchdog. See SPEC_FULL.md §4.5.
func (k *Kernel) Step() {
	k.mu.Lock()
	cur := k.ring.current
	if cur == nil {
		k.mu.Unlock()
		return
	}
	cur.state = Running
	k.mu.Unlock()

	var span activeSpan
	if k.tracer != nil {
		_, s := k.tracer.StartSpan(context.Background(), SpanSchedulerStep)
		s.SetTag(TagTaskName, cur.name)
		span = s
	}

	cur.turn <- struct{}{}
	y := <-cur.yield

	if y.fatal {
		if span != nil {
			span.Finish()
		}
		k.fatal(y.err, cur)
		return
	}

	k.mu.Lock()
	elapsed := k.tickAccum.Swap(0)
	if elapsed > 0 {
		k.advanceTimers(elapsed)
		k.advanceSleepers(elapsed)
	}
	k.wakeIRQWaiters()
	if k.metrics != nil {
		k.metrics.Counter(MetricSchedulerPasses).Inc()
		k.metrics.Gauge(MetricRunnableCount).Set(float64(k.ring.count))
		k.metrics.Gauge(MetricSleepingCount).Set(float64(k.sleeping.len))
	}
	runnable := k.ring.count
	k.mu.Unlock()

	if span != nil {
		span.SetTag(TagTickDelta, strconv.FormatUint(uint64(elapsed), 10))
		span.SetTag(TagRunnable, strconv.Itoa(runnable))
		span.Finish()
	}

	k.port.KickWatchdog()
}

// advanceTimers decrements every armed timer by elapsed ticks, firing (and
// rearming periodic) timers that reach zero. Callers must hold k.mu; fired
// callbacks run with k.mu released, since callbacks commonly call back
// into non-blocking kernel operations such as Semaphore.Signal.
func (k *Kernel) advanceTimers(elapsed uint32) {
	var fired []*Timer
	for _, tm := range k.timers {
		if !tm.armed {
			continue
		}
		if tm.remaining <= elapsed {
			fired = append(fired, tm)
			if tm.disp == TimerPeriodic {
				tm.remaining = tm.period
			} else {
				tm.armed = false
			}
		} else {
			tm.remaining -= elapsed
		}
	}
	if len(fired) == 0 {
		return
	}
	live := k.timers[:0]
	for _, tm := range k.timers {
		if tm.armed {
			live = append(live, tm)
		}
	}
	k.timers = live

	if k.metrics != nil {
		k.metrics.Gauge(MetricTimersArmed).Set(float64(len(k.timers)))
		k.metrics.Counter(MetricTimersFired).Add(float64(len(fired)))
	}

	k.mu.Unlock()
	for _, tm := range fired {
		switch tm.notify {
		case notifyTask:
			if tm.owner == nil {
				continue
			}
			k.mu.Lock()
			switch tm.owner.state {
			case Stopped, SleepInfinite, SleepTimed:
				k.unfreezeAndRun(tm.owner)
			}
			k.mu.Unlock()
		case notifyFunc:
			if tm.callback != nil {
				tm.callback(tm)
			}
		}
	}
	k.mu.Lock()
}

// unfreezeAndRun unfreezes t (see Task.unfreeze) and, if that requires a
// fresh goroutine, launches it once k.mu is released. Callers must hold
// k.mu on entry; k.mu is released and re-acquired around the goroutine
// launch when needed.
func (k *Kernel) unfreezeAndRun(t *Task) {
	ok, needsGoroutine := k.unfreeze(t)
	if !ok {
		return
	}
	if !needsGoroutine {
		return
	}
	k.mu.Unlock()
	go t.run()
	k.mu.Lock()
}

// advanceSleepers decrements every SleepTimed task's remaining ticks,
// waking those that reach zero. Callers must hold k.mu.
func (k *Kernel) advanceSleepers(elapsed uint32) {
	var woken []*Task
	k.sleeping.forEach(func(t *Task) {
		if uint32(t.wait.ticks) <= elapsed {
			t.wait.ticks = 0
			woken = append(woken, t)
		} else {
			t.wait.ticks -= uint16(elapsed)
		}
	})
	for _, t := range woken {
		k.sleeping.remove(t)
		k.wake(t)
	}
}

// wakeIRQWaiters tests the Port's reported IRQ bitset against every
// WaitIrq task, waking those whose awaited interrupt fired. Callers must
// hold k.mu.
func (k *Kernel) wakeIRQWaiters() {
	bits := k.port.ReportedIRQs()
	k.lastIRQBits = bits
	if bits == 0 {
		return
	}
	var woken []*Task
	k.irqWaiting.forEach(func(t *Task) {
		if bits&(1<<t.wait.irq) != 0 {
			woken = append(woken, t)
		}
	})
	for _, t := range woken {
		k.irqWaiting.remove(t)
		k.wake(t)
	}
}

// wake transitions a parked task back to Ready and links it into the
// runnable ring. Callers must hold k.mu and must already have removed t
// from whatever pending FIFO it was queued on (semaphore/mutex/heap wakes
// pop the FIFO themselves so they can inspect the new head).
func (k *Kernel) wake(t *Task) {
	switch t.state {
	case SleepTimed:
		k.sleeping.remove(t)
	case WaitIrq:
		k.irqWaiting.remove(t)
	case SleepInfinite, Join, WaitSem:
	default:
		return
	}
	t.wait = waitCtx{}
	t.state = Ready
	k.ring.insert(t)
	if k.metrics != nil {
		k.metrics.Counter(MetricTasksWoken).Inc()
	}
}

// erase detaches t from the scheduler entirely: releasing owned mutexes
// and timers, waking a joined parent, and clearing family links. The loop
// over t.child erases a child recorded on t, but Join records only the
// child's parent link and never sets t.child, so no child is erased along
// with t. When permanent is true (Delete, or a task's
// entry function returning) the destructor runs and t.state remains
// Stopped with no path back except Start spawning a fresh goroutine; when
// false (Stop) the record is equally reset to Stopped, just without the
// destructor. Callers must hold k.mu and leave it held on return.
func (k *Kernel) erase(t *Task, permanent bool) {
	switch t.state {
	case Ready, Running:
		k.ring.removeTask(t)
	case SleepTimed:
		k.sleeping.remove(t)
	case WaitIrq:
		k.irqWaiting.remove(t)
	case WaitSem:
		if t.wait.pending != nil {
			t.wait.pending.removeWaiter(t)
		}
	case SleepInfinite, Join, Stopped:
	}

	for t.child != nil {
		k.erase(t.child, true)
	}

	for m := t.ownedMutexes; m != nil; {
		next := m.ownedNext
		m.unlockForErase(t)
		m = next
	}

	for tm := t.ownedTimers; tm != nil; {
		next := tm.ownedNext
		tm.stopForErase()
		tm = next
	}

	if t.parent != nil && t.parent.state == Join {
		k.wake(t.parent)
	}
	if t.parent != nil {
		if t.parent.child == t {
			t.parent.child = nil
		}
		t.parent = nil
	}

	t.wait = waitCtx{}
	t.state = Stopped

	if permanent && t.destructor != nil {
		t.destructor()
	}

	if k.logger.IsEnabled(LevelInfo) {
		k.logger.Log(LogEntry{Level: LevelInfo, Category: "task", Task: t, Message: "erased"})
	}
}

// killGoroutine marks t's goroutine for teardown and, if it is currently
// parked waiting for the baton, grants it one final turn so it can
// observe the kill flag and exit via runtime.Goexit. Callers must not
// hold k.mu (the wake-up send can momentarily run the target goroutine's
// deferred cleanup concurrently with the caller).
func killGoroutine(t *Task) {
	if t.turn == nil {
		return // never started
	}
	t.killed.Store(true)
	t.turn <- struct{}{}
}
