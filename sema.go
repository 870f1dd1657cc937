package cotask

// Semaphore is a counting semaphore with a FIFO pending queue, per
// SPEC_FULL.md §4.3. Actions (broadcast event groups) are a separate type
// with their own pending list — see action.go.
type Semaphore struct {
	k       *Kernel
	count   int
	max     int
	pending taskList
}

// NewSemaphore creates a semaphore with the given initial count and
// maximum count. A Mutex (mutex.go) is a distinct type rather than a
// max-count-1 semaphore, per the §9 design note against union reuse —
// ownership tracking needs a field a plain semaphore has no use for.
func (k *Kernel) NewSemaphore(count, max int) *Semaphore {
	return &Semaphore{k: k, count: count, max: max}
}

// Count returns the current token count.
func (s *Semaphore) Count() int {
	s.k.mu.Lock()
	defer s.k.mu.Unlock()
	return s.count
}

// Wait blocks the calling task until a token is available, then consumes
// one. It is a suspension point only on the blocking path: if a token is
// already available it is consumed and Wait returns without yielding the
// baton. t must be the task calling Wait (conventionally Kernel.Current()).
func (s *Semaphore) Wait(t *Task) {
	k := s.k
	k.mu.Lock()
	if s.count > 0 {
		s.count--
		k.mu.Unlock()
		if k.metrics != nil {
			k.metrics.Counter(MetricSemaphoreWaits).Inc()
		}
		return
	}

	t.state = WaitSem
	t.wait = waitCtx{kind: waitPending, pending: s}
	k.ring.removeTask(t)
	s.pending.pushBack(t)
	k.traceSuspend(t, Running, WaitSem)
	k.mu.Unlock()

	k.suspend(t)

	if k.metrics != nil {
		k.metrics.Counter(MetricSemaphoreWaits).Inc()
	}
}

// TryWait consumes a token without blocking. It reports whether a token
// was available.
func (s *Semaphore) TryWait() bool {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	if s.count == 0 {
		return false
	}
	s.count--
	return true
}

// Signal releases one token, or hands it directly to the task at the
// head of the pending FIFO if one is waiting. Returns
// ErrSemaphoreOverRelease if the semaphore is already at max with nobody
// waiting.
func (s *Semaphore) Signal() error {
	k := s.k
	k.mu.Lock()
	if waiter := s.pending.popFront(); waiter != nil {
		k.wake(waiter)
		k.mu.Unlock()
		if k.metrics != nil {
			k.metrics.Counter(MetricSemaphoreSignals).Inc()
		}
		return nil
	}
	if s.count >= s.max {
		k.mu.Unlock()
		return k.reportError(ErrSemaphoreOverRelease, k.ring.current)
	}
	s.count++
	k.mu.Unlock()
	if k.metrics != nil {
		k.metrics.Counter(MetricSemaphoreSignals).Inc()
	}
	return nil
}

// removeWaiter implements pendingQueue: it unlinks t from the pending
// FIFO, used when a waiting task is stopped/deleted by another task.
func (s *Semaphore) removeWaiter(t *Task) {
	s.pending.remove(t)
}
