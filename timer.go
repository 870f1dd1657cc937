package cotask

// timerDisposition controls whether a Timer rearms itself after firing.
type timerDisposition int

const (
	// TimerOneShot fires once, then becomes idle until re-Started.
	TimerOneShot timerDisposition = iota
	// TimerPeriodic rearms itself to the same period immediately on fire.
	TimerPeriodic
)

// timerNotifyKind selects what a Timer does when it fires, matching the
// original kernel's three dispositions — timer_start (no notification),
// timer_start_notify_task, and timer_start_notify_function (SPEC_FULL.md
// §4.4).
type timerNotifyKind int

const (
	// notifyNone does nothing beyond disarming (or rearming) the timer.
	notifyNone timerNotifyKind = iota
	// notifyTask wakes owner on fire, mirroring timer_start_notify_task.
	// Only takes effect if owner is Stopped, SleepInfinite, or SleepTimed
	// at the moment the timer fires, per the original's state guard.
	notifyTask
	// notifyFunc invokes callback on fire, mirroring
	// timer_start_notify_function.
	notifyFunc
)

// maxTimerTicks is the largest tick count a Timer can carry, matching the
// original kernel's 31-bit remaining-ticks field (the spec's top-bit
// "absolute deadline" encoding is not implemented — see SPEC_FULL.md §4.4
// and DESIGN.md: cotask always treats a timer's duration as relative).
const maxTimerTicks = 1<<31 - 1

// Timer is a software timer driven by the kernel's tick source. Callback
// runs with the kernel's internal lock released but with no other task
// runnable concurrently (the scheduler goroutine calls it synchronously
// between ticks), so it may safely call non-blocking kernel operations
// such as Semaphore.Signal, but must never call a suspension-point method
// — there is no task context to suspend.
type Timer struct {
	k         *Kernel
	owner     *Task // erase-cascade target, and notifyTask wake target
	remaining uint32
	period    uint32
	disp      timerDisposition
	notify    timerNotifyKind
	armed     bool
	callback  func(*Timer)

	ownedNext *Timer
}

// NewTimer creates a timer that performs no notification when it fires,
// mirroring the original kernel's plain timer_start. owner, if non-nil,
// ties the timer's lifetime to that task: Delete/Stop on owner stops the
// timer too.
func (k *Kernel) NewTimer(owner *Task, disp timerDisposition) *Timer {
	return k.newTimer(owner, disp, notifyNone, nil)
}

// NewTaskTimer creates a timer that wakes owner when it fires, mirroring
// the original kernel's timer_start_notify_task. owner must be non-nil.
func (k *Kernel) NewTaskTimer(owner *Task, disp timerDisposition) *Timer {
	return k.newTimer(owner, disp, notifyTask, nil)
}

// NewFuncTimer creates a timer that invokes callback when it fires,
// mirroring the original kernel's timer_start_notify_function. owner, if
// non-nil, only ties the timer's lifetime to that task's erase cascade —
// it is not woken.
func (k *Kernel) NewFuncTimer(owner *Task, disp timerDisposition, callback func(*Timer)) *Timer {
	return k.newTimer(owner, disp, notifyFunc, callback)
}

func (k *Kernel) newTimer(owner *Task, disp timerDisposition, notify timerNotifyKind, callback func(*Timer)) *Timer {
	k.mu.Lock()
	defer k.mu.Unlock()
	tm := &Timer{k: k, owner: owner, disp: disp, notify: notify, callback: callback}
	if owner != nil {
		tm.ownedNext = owner.ownedTimers
		owner.ownedTimers = tm
	}
	return tm
}

// Start (re)arms the timer for ms milliseconds, converted to ticks via the kernel's
// tick table. A duration under one tick period is clamped up to one
// tick; a duration exceeding maxTimerTicks ticks is clamped down.
func (tm *Timer) Start(ms uint32) {
	k := tm.k
	k.mu.Lock()
	defer k.mu.Unlock()
	ticks := k.ticksTable.ticks(ms)
	if ticks == 0 {
		ticks = 1
	}
	if ticks > maxTimerTicks {
		ticks = maxTimerTicks
	}
	wasArmed := tm.armed
	tm.remaining = ticks
	tm.period = ticks
	tm.armed = true
	if !wasArmed {
		k.timers = append(k.timers, tm)
	}
	if k.metrics != nil {
		k.metrics.Gauge(MetricTimersArmed).Set(float64(len(k.timers)))
	}
}

// Stop disarms the timer. A disarmed timer does not fire and is dropped
// from the kernel's active timer list.
func (tm *Timer) Stop() {
	k := tm.k
	k.mu.Lock()
	defer k.mu.Unlock()
	tm.disarm()
}

func (tm *Timer) disarm() {
	if !tm.armed {
		return
	}
	tm.armed = false
	k := tm.k
	for i, other := range k.timers {
		if other == tm {
			k.timers = append(k.timers[:i], k.timers[i+1:]...)
			break
		}
	}
	if k.metrics != nil {
		k.metrics.Gauge(MetricTimersArmed).Set(float64(len(k.timers)))
	}
}

// stopForErase disarms the timer as part of its owning task's erasure.
// Callers must hold k.mu.
func (tm *Timer) stopForErase() {
	tm.disarm()
}

// Armed reports whether the timer is currently counting down.
func (tm *Timer) Armed() bool {
	tm.k.mu.Lock()
	defer tm.k.mu.Unlock()
	return tm.armed
}
