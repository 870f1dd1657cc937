package cotask

import (
	"runtime"
	"time"
)

// Stop erases target, returning it to the Stopped state without running
// its destructor. If target is the task currently holding the baton
// (i.e. Stop is called from within its own body), the call does not
// return: the goroutine unwinds via runtime.Goexit after handing control
// back to the scheduler. Otherwise target's parked goroutine, if any, is
// torn down asynchronously and Stop returns immediately.
func (k *Kernel) Stop(target *Task) { k.stopOrDelete(target, false) }

// Delete erases target permanently: like Stop, but runs target's
// destructor (if any). It does not erase a task that target joined:
// Join records only the child's parent link, never target's child field,
// so erase has no child to cascade to. See Stop for the self/external
// control-flow distinction.
func (k *Kernel) Delete(target *Task) { k.stopOrDelete(target, true) }

// Stop is a convenience for t.k.Stop(t).
func (t *Task) Stop() { t.k.Stop(t) }

// Delete is a convenience for t.k.Delete(t).
func (t *Task) Delete() { t.k.Delete(t) }

func (k *Kernel) stopOrDelete(target *Task, permanent bool) {
	k.mu.Lock()
	self := target.state == Running
	hadGoroutine := target.state != Stopped
	k.erase(target, permanent)
	k.mu.Unlock()

	if self {
		target.yield <- taskYield{}
		runtime.Goexit()
		return
	}
	if hadGoroutine {
		killGoroutine(target)
	}
}

// Delay suspends the calling task for at least d, rounded up to whole
// ticks via the kernel's tick table. A duration of zero is equivalent to
// InfiniteSleep(false). The countdown is carried in a 16-bit field (a
// narrower width than Timer's 31-bit countdown — the two are distinct
// fields in the original kernel's data model, not a shared mechanism),
// so a single Delay call is capped at 65535 ticks; longer delays should
// be built from a software Timer instead.
func (t *Task) Delay(d time.Duration) {
	k := t.k
	ms := uint32((d + time.Millisecond - 1) / time.Millisecond)
	ticks := k.ticksTable.ticks(ms)
	if ticks == 0 {
		t.InfiniteSleep(false)
		return
	}
	if ticks > 0xFFFF {
		ticks = 0xFFFF
	}

	k.mu.Lock()
	t.state = SleepTimed
	t.wait = waitCtx{kind: waitTicks, ticks: uint16(ticks)}
	k.ring.removeTask(t)
	k.sleeping.pushBack(t)
	k.traceSuspend(t, Running, SleepTimed)
	k.mu.Unlock()

	k.suspend(t)
}

// InfiniteSleep suspends the calling task with no timed wake condition;
// only an unfreeze brings it back to Ready: Start, a Join that claims it
// as a child, or a task-notify Timer it owns firing. If
// wakeParent is true and a parent is currently in Join waiting on this
// task, the parent is woken as part of entering sleep — the "sleeps with
// wakeParent set" transition in the task state diagram.
func (t *Task) InfiniteSleep(wakeParent bool) {
	k := t.k
	k.mu.Lock()
	t.state = SleepInfinite
	t.wait = waitCtx{}
	k.ring.removeTask(t)
	if wakeParent && t.parent != nil && t.parent.state == Join {
		k.wake(t.parent)
	}
	k.traceSuspend(t, Running, SleepInfinite)
	k.mu.Unlock()

	k.suspend(t)
}

// Yield cedes the remainder of the current quantum to the next Ready task
// in the runnable ring without changing the caller's own schedulability:
// unlike every other suspension point, the caller remains Ready and simply
// moves to the back of the round-robin order. This is how the kernel's
// built-in idle task stays perpetually runnable (see idle.go) rather than
// leaving the ring empty; application tasks may also call it directly to
// cooperatively share the CPU within a single tick.
func (t *Task) Yield() {
	k := t.k
	k.mu.Lock()
	t.state = Ready
	k.ring.advance()
	k.traceSuspend(t, Running, Ready)
	k.mu.Unlock()

	k.suspend(t)
}

// WaitIRQ suspends the calling task until the Port reports interrupt id.
func (t *Task) WaitIRQ(id uint8) {
	k := t.k
	k.mu.Lock()
	t.state = WaitIrq
	t.wait = waitCtx{kind: waitIRQ, irq: id}
	k.ring.removeTask(t)
	k.irqWaiting.pushBack(t)
	k.traceSuspend(t, Running, WaitIrq)
	k.mu.Unlock()

	k.suspend(t)
}

// joinPollPeriod is how often Join re-checks a contested child when
// wait is true and the child currently belongs to a different parent.
const joinPollPeriod = time.Millisecond

// Join suspends the calling task until child exits (or sleeps with
// wakeParent set). If child already belongs to a different parent, Join
// returns ErrAlreadyHasParent immediately when wait is false, or polls
// every joinPollPeriod until the child becomes available when wait is
// true. If child is Stopped, SleepInfinite, or SleepTimed when Join
// claims it, it is unfrozen (woken) before the caller parks — joining a
// dormant child brings it back to life rather than deadlocking forever.
func (t *Task) Join(child *Task, wait bool) error {
	k := t.k
	for {
		k.mu.Lock()
		if child.parent != nil && child.parent != t {
			k.mu.Unlock()
			if !wait {
				return k.reportError(ErrAlreadyHasParent, t)
			}
			t.Delay(joinPollPeriod)
			continue
		}

		child.parent = t
		_, needsGoroutine := k.unfreeze(child)

		t.state = Join
		k.ring.removeTask(t)
		k.traceSuspend(t, Running, Join)
		k.mu.Unlock()

		if needsGoroutine {
			go child.run()
		}

		k.suspend(t)

		k.mu.Lock()
		done := child.state == Stopped || child.state == SleepInfinite || child.parent != t
		k.mu.Unlock()
		if done {
			return nil
		}
		// Woken while the child is neither finished nor asleep — re-poll.
		t.Delay(joinPollPeriod)
	}
}
