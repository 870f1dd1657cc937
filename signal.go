package cotask

import (
	"sync/atomic"
	"time"
)

// WaitSignal suspends the calling task, re-checking cond every period,
// until cond reports true. It is the generalization of SPEC_FULL.md
// §4.7's "signal-condition wait": a plain polling loop built from Delay,
// rather than a true suspension point — the original kernel's equivalent
// has no way to be woken early either, since it predates an event
// primitive rich enough to express arbitrary conditions. A period of zero
// means no delay between checks: the task still yields once per failed
// check (so other tasks get a turn) instead of parking in Delay(0), which
// would fall through to an infinite sleep nothing ever wakes.
func (t *Task) WaitSignal(cond func() bool, period time.Duration) {
	for !cond() {
		if period == 0 {
			t.Yield()
			continue
		}
		t.Delay(period)
	}
}

// WaitSignalMask polls a *uint32 flag register, suspending until every bit
// set in mask is also set in atomic.LoadUint32(flags) — i.e.
// (flags & mask) == mask, not merely non-zero. It mirrors the original
// kernel's raw pointer-and-mask signal condition, built atop WaitSignal.
func (t *Task) WaitSignalMask(flags *uint32, mask uint32, period time.Duration) {
	t.WaitSignal(func() bool {
		return atomic.LoadUint32(flags)&mask == mask
	}, period)
}
