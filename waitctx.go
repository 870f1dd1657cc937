package cotask

// waitKind discriminates the payload carried by waitCtx, per the §9 design
// note recommending tagged variants over the original's union reuse.
type waitKind int

const (
	waitNone waitKind = iota
	waitTicks
	waitPending
	waitIRQ
)

// pendingQueue is satisfied by *Semaphore, *Mutex, *Heap and *Action:
// anything that owns a FIFO of blocked tasks that a task's wait context can
// point back into, so Kernel.erase can remove the task from wherever it is
// actually queued.
type pendingQueue interface {
	removeWaiter(t *Task)
}

// waitCtx is the tagged union described in SPEC_FULL.md §3: exactly one of
// its fields is meaningful, selected by kind.
type waitCtx struct {
	kind    waitKind
	ticks   uint16       // waitTicks: remaining ticks
	pending pendingQueue // waitPending: semaphore, mutex, heap or action blocked on
	irq     uint8        // waitIRQ: irq id waited for
}
