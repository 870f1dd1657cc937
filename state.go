package cotask

// State is the scheduling state of a Task.
//
// State machine:
//
//	Stopped --Start--> Ready --(scheduler selects)--> Running
//	Running --Yield--> Ready (same quantum's scheduler pass, moved to ring tail)
//	Running --Delay(d>0)--> SleepTimed --tick>=d--> Ready
//	Running --Delay(0)/InfiniteSleep--> SleepInfinite --unfreeze--> Ready
//	Running --Semaphore.Wait (no token)--> WaitSem --Signal--> Ready
//	Running --WaitIRQ--> WaitIrq --irq reported--> Ready
//	Running --Join(child)--> Join --child exits or sleeps w/ wakeParent--> Ready
//	Any --Stop/Delete--> Stopped (destructor may fire on Delete)
type State int

const (
	// Stopped is the terminal state: the task record exists but is not
	// scheduled. Setup() and Delete() leave a task here (until re-Start).
	Stopped State = iota
	// Ready means the task is linked into the runnable ring awaiting its turn.
	Ready
	// Running means the task currently holds the baton.
	Running
	// SleepInfinite means the task is parked with no wake condition other
	// than an explicit Start/unfreeze.
	SleepInfinite
	// SleepTimed means the task is parked with a tick countdown.
	SleepTimed
	// Join means the task is blocked waiting for a child to exit or sleep
	// with wakeParent set.
	Join
	// WaitSem means the task is enqueued on a semaphore or mutex pending FIFO.
	WaitSem
	// WaitIrq means the task is waiting for a specific interrupt id.
	WaitIrq
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case SleepInfinite:
		return "SleepInfinite"
	case SleepTimed:
		return "SleepTimed"
	case Join:
		return "Join"
	case WaitSem:
		return "WaitSem"
	case WaitIrq:
		return "WaitIrq"
	default:
		return "Unknown"
	}
}

// unattached reports whether the state implies the task is not a member of
// any scheduler-owned list (runnable ring, sleeping list, irq list, or a
// semaphore/mutex pending queue).
func (s State) unattached() bool {
	return s == Stopped || s == SleepInfinite
}
