package cotask

// heapWakeMode selects how blocked Malloc callers are woken when blocks
// are freed. See WithThresholdWake and SPEC_FULL.md §4.2 for the
// wake-storm open question this resolves.
type heapWakeMode int

const (
	// heapWakePerBlock wakes the heap's waiter semaphore once for every
	// freed block, matching the original kernel exactly: with many
	// waiters and a popular block size this can cause a "wake storm"
	// where every waiter is scheduled just to find the blocks it needed
	// already taken by an earlier waiter.
	heapWakePerBlock heapWakeMode = iota
	// heapWakeThreshold only signals once the run of contiguous freed
	// blocks can satisfy the size waited for by the head of the FIFO,
	// avoiding spurious wake-ups of waiters whose request still cannot
	// be met.
	heapWakeThreshold
)

// Heap is the fixed-block allocator described in SPEC_FULL.md §4.2: a
// fixed number of fixed-size blocks, with a blocking allocation mode
// built on a semaphore-like FIFO of waiting tasks.
type Heap struct {
	k *Kernel

	blockSize int
	free      []bool // true == free
	wakeMode  heapWakeMode

	pending taskList // tasks blocked on a blocking Malloc, FIFO
	waitLen map[*Task]int
}

// NewHeap creates a heap of the given geometry. blocks must be > 0.
func (k *Kernel) NewHeap(blocks, blockSize int, wakeMode heapWakeMode) *Heap {
	h := &Heap{
		k:         k,
		blockSize: blockSize,
		free:      make([]bool, blocks),
		wakeMode:  wakeMode,
		waitLen:   make(map[*Task]int),
	}
	for i := range h.free {
		h.free[i] = true
	}
	return h
}

// BlockSize returns the fixed allocation unit in bytes.
func (h *Heap) BlockSize() int { return h.blockSize }

// FreeBlocks returns the number of currently unallocated blocks.
func (h *Heap) FreeBlocks() int {
	h.k.mu.Lock()
	defer h.k.mu.Unlock()
	return h.countFree()
}

func (h *Heap) countFree() int {
	n := 0
	for _, f := range h.free {
		if f {
			n++
		}
	}
	return n
}

// blocksNeeded rounds size up to a whole number of blocks.
func (h *Heap) blocksNeeded(size int) int {
	if size <= 0 {
		return 0
	}
	n := size / h.blockSize
	if size%h.blockSize != 0 {
		n++
	}
	return n
}

// TryMalloc attempts a non-blocking allocation of size bytes, returning
// the allocated block indices (a handle) and a nil error on success, or
// ErrDynamicMemoryExhaustion on failure.
func (h *Heap) TryMalloc(size int) ([]int, error) {
	h.k.mu.Lock()
	defer h.k.mu.Unlock()
	return h.allocLocked(size)
}

// allocLocked scans the free-block marker array left-to-right for a run
// of need consecutive free blocks, mirroring the original heap_malloc's
// free_block_cnt reset on every non-free block: blocks are only usable
// together if they are contiguous, never just free in aggregate.
func (h *Heap) allocLocked(size int) ([]int, error) {
	need := h.blocksNeeded(size)
	if need == 0 {
		return nil, nil
	}
	start := h.findRun(need)
	if start < 0 {
		return nil, h.k.reportError(ErrDynamicMemoryExhaustion, h.k.ring.current)
	}
	got := make([]int, need)
	for i := 0; i < need; i++ {
		h.free[start+i] = false
		got[i] = start + i
	}
	if h.k.metrics != nil {
		h.k.metrics.Counter(MetricHeapAllocations).Inc()
		h.k.metrics.Gauge(MetricHeapFreeBlocks).Set(float64(h.countFree()))
	}
	return got, nil
}

// findRun returns the starting index of the first run of need consecutive
// free blocks, or -1 if no such run exists.
func (h *Heap) findRun(need int) int {
	run := 0
	for i, free := range h.free {
		if free {
			run++
			if run == need {
				return i - need + 1
			}
		} else {
			run = 0
		}
	}
	return -1
}

// hasRun reports whether a run of need consecutive free blocks currently
// exists, without allocating it.
func (h *Heap) hasRun(need int) bool {
	return h.findRun(need) >= 0
}

// Malloc blocks the calling task until size bytes can be satisfied. It is
// a suspension point only on the blocking path.
func (h *Heap) Malloc(t *Task, size int) []int {
	k := h.k
	k.mu.Lock()
	if blocks, err := h.allocLocked(size); err == nil {
		k.mu.Unlock()
		return blocks
	}

	t.state = WaitSem
	t.wait = waitCtx{kind: waitPending, pending: h}
	k.ring.removeTask(t)
	h.pending.pushBack(t)
	h.waitLen[t] = h.blocksNeeded(size)
	if k.metrics != nil {
		k.metrics.Gauge(MetricHeapWaiters).Set(float64(h.pending.len))
	}
	k.traceSuspend(t, Running, WaitSem)
	k.mu.Unlock()

	for {
		k.suspend(t)
		k.mu.Lock()
		blocks, err := h.allocLocked(size)
		if err == nil {
			delete(h.waitLen, t)
			k.mu.Unlock()
			return blocks
		}
		// Spurious wake (another waiter raced us under heapWakePerBlock):
		// re-enqueue and wait again.
		t.state = WaitSem
		t.wait = waitCtx{kind: waitPending, pending: h}
		k.ring.removeTask(t)
		h.pending.pushBack(t)
		k.mu.Unlock()
	}
}

// Free releases the blocks referenced by handle and wakes waiters
// according to the heap's wake mode. Callers must hold a handle
// previously returned by TryMalloc or Malloc.
func (h *Heap) Free(handle []int) {
	k := h.k
	k.mu.Lock()
	for _, idx := range handle {
		h.free[idx] = true
	}
	if k.metrics != nil {
		k.metrics.Gauge(MetricHeapFreeBlocks).Set(float64(h.countFree()))
	}

	switch h.wakeMode {
	case heapWakeThreshold:
		if head := h.pending.head; head != nil {
			if h.hasRun(h.waitLen[head]) {
				h.pending.remove(head)
				k.wake(head)
			}
		}
	default: // heapWakePerBlock
		for range handle {
			if waiter := h.pending.popFront(); waiter != nil {
				k.wake(waiter)
			} else {
				break
			}
		}
	}
	k.mu.Unlock()
}

// removeWaiter implements pendingQueue.
func (h *Heap) removeWaiter(t *Task) {
	h.pending.remove(t)
	delete(h.waitLen, t)
}
