package cotask

// Action is a broadcast event group, per SPEC_FULL.md §4.6: any number of
// tasks can Wait on it, and a single NotifyAll wakes every one of them,
// unlike Semaphore.Signal which wakes at most one waiter. It is grounded
// on the same suspend/wake plumbing as Semaphore but intentionally kept
// as a distinct type rather than a "signal max count" semaphore, since
// the wake-everybody behavior has no equivalent on Semaphore.
type Action struct {
	k       *Kernel
	pending taskList
}

// NewAction creates an Action with no pending waiters.
func (k *Kernel) NewAction() *Action {
	return &Action{k: k}
}

// Wait suspends the calling task until the next NotifyAll.
func (a *Action) Wait(t *Task) {
	k := a.k
	k.mu.Lock()
	t.state = WaitSem
	t.wait = waitCtx{kind: waitPending, pending: a}
	k.ring.removeTask(t)
	a.pending.pushBack(t)
	k.traceSuspend(t, Running, WaitSem)
	k.mu.Unlock()

	k.suspend(t)
}

// NotifyAll wakes every task currently waiting on the action.
func (a *Action) NotifyAll() {
	k := a.k
	k.mu.Lock()
	var woken []*Task
	a.pending.forEach(func(t *Task) { woken = append(woken, t) })
	for _, t := range woken {
		a.pending.remove(t)
		k.wake(t)
	}
	k.mu.Unlock()
}

// Waiting reports the number of tasks currently parked in Wait.
func (a *Action) Waiting() int {
	a.k.mu.Lock()
	defer a.k.mu.Unlock()
	return a.pending.len
}

// removeWaiter implements pendingQueue.
func (a *Action) removeWaiter(t *Task) {
	a.pending.remove(t)
}
