package cotask

// Mutex is a FIFO mutual-exclusion lock with ownership tracking, per
// SPEC_FULL.md §4.3. Owned mutexes are linked off their owner (Task.
// ownedMutexes) so erase can release every mutex a deleted task is still
// holding, in a single pass, without scanning every mutex in the system.
type Mutex struct {
	k       *Kernel
	owner   *Task
	pending taskList

	ownedNext *Mutex // next mutex in owner.ownedMutexes, or nil
}

// NewMutex creates an unlocked mutex.
func (k *Kernel) NewMutex() *Mutex {
	return &Mutex{k: k}
}

// Owner returns the task currently holding the lock, or nil.
func (m *Mutex) Owner() *Task {
	m.k.mu.Lock()
	defer m.k.mu.Unlock()
	return m.owner
}

// Lock blocks the calling task until it acquires the mutex. It is a
// suspension point only on the contended path.
func (m *Mutex) Lock(t *Task) {
	k := m.k
	k.mu.Lock()
	if m.owner == nil {
		m.acquire(t)
		k.mu.Unlock()
		if k.metrics != nil {
			k.metrics.Counter(MetricMutexLocks).Inc()
		}
		return
	}

	if k.metrics != nil {
		k.metrics.Counter(MetricMutexContentions).Inc()
	}
	t.state = WaitSem
	t.wait = waitCtx{kind: waitPending, pending: m}
	k.ring.removeTask(t)
	m.pending.pushBack(t)
	k.traceSuspend(t, Running, WaitSem)
	k.mu.Unlock()

	k.suspend(t)

	if k.metrics != nil {
		k.metrics.Counter(MetricMutexLocks).Inc()
	}
}

// TryLock acquires the mutex without blocking. It reports whether the
// lock was acquired.
func (m *Mutex) TryLock(t *Task) bool {
	k := m.k
	k.mu.Lock()
	defer k.mu.Unlock()
	if m.owner != nil {
		return false
	}
	m.acquire(t)
	return true
}

// Unlock releases the mutex. It is an error for a task other than the
// current owner to call Unlock. If another task is waiting, ownership is
// handed directly to the head of the FIFO (no window where the lock
// looks unowned); otherwise the mutex goes idle.
func (m *Mutex) Unlock(t *Task) error {
	k := m.k
	k.mu.Lock()
	if m.owner != t {
		k.mu.Unlock()
		return k.reportError(ErrMutexOwnershipViolation, t)
	}
	m.release(t)

	if waiter := m.pending.popFront(); waiter != nil {
		m.acquire(waiter)
		k.wake(waiter)
	}
	k.mu.Unlock()
	return nil
}

// acquire assigns ownership to t and links m into t's owned-mutex list.
// Callers must hold k.mu.
func (m *Mutex) acquire(t *Task) {
	m.owner = t
	m.ownedNext = t.ownedMutexes
	t.ownedMutexes = m
}

// release clears ownership and unlinks m from t's owned-mutex list.
// Callers must hold k.mu.
func (m *Mutex) release(t *Task) {
	m.owner = nil
	prev := (*Mutex)(nil)
	for cur := t.ownedMutexes; cur != nil; cur = cur.ownedNext {
		if cur == m {
			if prev == nil {
				t.ownedMutexes = cur.ownedNext
			} else {
				prev.ownedNext = cur.ownedNext
			}
			cur.ownedNext = nil
			return
		}
		prev = cur
	}
}

// removeWaiter implements pendingQueue.
func (m *Mutex) removeWaiter(t *Task) {
	m.pending.remove(t)
}

// unlockForErase force-releases m on behalf of t during task erasure,
// handing off to the next waiter exactly like a normal Unlock. Callers
// must hold k.mu.
func (m *Mutex) unlockForErase(t *Task) {
	m.release(t)
	if waiter := m.pending.popFront(); waiter != nil {
		m.acquire(waiter)
		m.k.wake(waiter)
	}
}
