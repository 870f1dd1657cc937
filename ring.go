package cotask

// runnableRing is the circular doubly linked list of Ready/Running tasks.
// There is no distinguished head; "currently running" is simply a pointer
// into the ring, matching the original kernel's design (§9 "Cyclic list
// with sentinel head").
//
// Invariant: for every task t in the ring, t.next.prev == t and
// t.prev.next == t. The ring is never empty while the kernel is running —
// the idle task is always present.
type runnableRing struct {
	current *Task
	count   int
}

// insert links t into the ring immediately before r.current (i.e. at the
// "end" of the round-robin order, so it will be visited after every task
// already present). If the ring is empty, t becomes current.
func (r *runnableRing) insert(t *Task) {
	if r.current == nil {
		t.ringPrev, t.ringNext = t, t
		r.current = t
		r.count = 1
		return
	}
	tail := r.current.ringPrev
	t.ringPrev = tail
	t.ringNext = r.current
	tail.ringNext = t
	r.current.ringPrev = t
	r.count++
}

// removeTask unlinks t from the ring. If t is the current task, current
// advances to t's successor (or becomes nil if t was the last task).
func (r *runnableRing) removeTask(t *Task) {
	if t.ringNext == t {
		// sole member
		r.current = nil
		t.ringPrev, t.ringNext = nil, nil
		r.count = 0
		return
	}
	t.ringPrev.ringNext = t.ringNext
	t.ringNext.ringPrev = t.ringPrev
	if r.current == t {
		r.current = t.ringNext
	}
	t.ringPrev, t.ringNext = nil, nil
	r.count--
}

// advance moves current to its successor. No-op on an empty ring.
func (r *runnableRing) advance() {
	if r.current != nil {
		r.current = r.current.ringNext
	}
}

// empty reports whether the ring has no members.
func (r *runnableRing) empty() bool { return r.current == nil }
