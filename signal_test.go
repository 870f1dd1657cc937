package cotask

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWaitSignalUnblocksWhenConditionBecomesTrue(t *testing.T) {
	k, _ := newTestKernel(t)
	var ready atomic.Bool
	done := false
	task := k.Spawn("poller", func(t *Task) {
		t.WaitSignal(func() bool { return ready.Load() }, time.Millisecond)
		done = true
	})

	stepUntil(t, k, 8, func() bool { return task.State() == SleepTimed })
	assert.False(t, done)

	ready.Store(true)
	// Each poll is a Delay(period); advance ticks far enough that it
	// re-checks cond and observes it true.
	for i := 0; i < 16 && !done; i++ {
		tick(k, 1)
	}
	assert.True(t, done)
}

func TestWaitSignalMaskUnblocksOnBit(t *testing.T) {
	k, _ := newTestKernel(t)
	var flags uint32
	done := false
	task := k.Spawn("maskwaiter", func(t *Task) {
		t.WaitSignalMask(&flags, 0x02, time.Millisecond)
		done = true
	})

	stepUntil(t, k, 8, func() bool { return task.State() == SleepTimed })
	atomic.StoreUint32(&flags, 0x02)
	for i := 0; i < 16 && !done; i++ {
		tick(k, 1)
	}
	assert.True(t, done)
}

func TestWaitSignalMaskRequiresAllBits(t *testing.T) {
	k, _ := newTestKernel(t)
	var flags uint32
	done := false
	task := k.Spawn("maskwaiter", func(t *Task) {
		t.WaitSignalMask(&flags, 0x03, time.Millisecond)
		done = true
	})

	stepUntil(t, k, 8, func() bool { return task.State() == SleepTimed })

	atomic.StoreUint32(&flags, 0x02) // only one of the two required bits
	for i := 0; i < 16; i++ {
		tick(k, 1)
	}
	assert.False(t, done, "mask requires every bit set, not just one")

	atomic.StoreUint32(&flags, 0x03)
	for i := 0; i < 16 && !done; i++ {
		tick(k, 1)
	}
	assert.True(t, done)
}

func TestWaitSignalZeroPeriodYieldsInsteadOfSleeping(t *testing.T) {
	k, _ := newTestKernel(t)
	var ready atomic.Bool
	done := false
	task := k.Spawn("busypoller", func(t *Task) {
		t.WaitSignal(func() bool { return ready.Load() }, 0)
		done = true
	})

	for i := 0; i < 4; i++ {
		k.Step() // let the poller run its failed check at least once
	}
	stepUntil(t, k, 8, func() bool { return task.State() == Ready })
	assert.False(t, done)
	assert.NotEqual(t, SleepInfinite, task.State(), "period==0 must yield, not sleep forever")

	ready.Store(true)
	stepUntil(t, k, 8, func() bool { return done })
}
