package cotask

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tick advances the kernel's internal tick accumulator directly (whitebox:
// this file is in package cotask) and runs one scheduler pass so Step
// observes it, the same path Kernel.Run's tick-ingestion goroutine takes.
func tick(k *Kernel, n uint32) {
	k.tickAccum.Add(n)
	k.Step()
}

func TestTimerOneShotFiresOnce(t *testing.T) {
	k, _ := newTestKernel(t)
	fired := 0
	owner := k.Setup("owner", func(*Task) {}, nil)
	tm := k.NewFuncTimer(owner, TimerOneShot, func(*Timer) { fired++ })
	tm.Start(5) // 5ms == 5 ticks at the default 1ms tick period

	for i := 0; i < 4; i++ {
		tick(k, 1)
	}
	assert.Equal(t, 0, fired)
	tick(k, 1)
	assert.Equal(t, 1, fired)
	assert.False(t, tm.Armed())

	tick(k, 10)
	assert.Equal(t, 1, fired, "one-shot must not refire")
}

func TestTimerPeriodicRearms(t *testing.T) {
	k, _ := newTestKernel(t)
	fired := 0
	owner := k.Setup("owner", func(*Task) {}, nil)
	tm := k.NewFuncTimer(owner, TimerPeriodic, func(*Timer) { fired++ })
	tm.Start(3)

	tick(k, 3)
	assert.Equal(t, 1, fired)
	assert.True(t, tm.Armed())
	tick(k, 3)
	assert.Equal(t, 2, fired)
}

func TestTimerStopPreventsFire(t *testing.T) {
	k, _ := newTestKernel(t)
	fired := 0
	owner := k.Setup("owner", func(*Task) {}, nil)
	tm := k.NewFuncTimer(owner, TimerOneShot, func(*Timer) { fired++ })
	tm.Start(5)
	tm.Stop()
	assert.False(t, tm.Armed())

	tick(k, 10)
	assert.Equal(t, 0, fired)
}

func TestTimerStopForEraseOnOwnerDelete(t *testing.T) {
	k, _ := newTestKernel(t)
	fired := 0
	owner := k.Spawn("owner", func(t *Task) { t.InfiniteSleep(false) })
	stepUntil(t, k, 8, func() bool { return owner.State() == SleepInfinite })

	tm := k.NewFuncTimer(owner, TimerOneShot, func(*Timer) { fired++ })
	tm.Start(5)
	require.True(t, tm.Armed())

	k.Delete(owner)
	assert.False(t, tm.Armed(), "deleting the owner must stop its timers")

	tick(k, 10)
	assert.Equal(t, 0, fired)
}

func TestTaskTimerWakesSleepingOwner(t *testing.T) {
	k, _ := newTestKernel(t)
	resumed := false
	owner := k.Spawn("sleeper", func(t *Task) {
		t.InfiniteSleep(false) // nothing but the timer will ever wake this
		resumed = true
	})
	stepUntil(t, k, 8, func() bool { return owner.State() == SleepInfinite })

	tm := k.NewTaskTimer(owner, TimerOneShot)
	tm.Start(5)

	for i := 0; i < 4; i++ {
		tick(k, 1)
	}
	assert.False(t, resumed)
	tick(k, 1)
	stepUntil(t, k, 8, func() bool { return resumed })
}

func TestTaskTimerWakesStoppedOwner(t *testing.T) {
	k, _ := newTestKernel(t)
	ran := 0
	owner := k.Setup("stopped-owner", func(t *Task) { ran++ }, nil)
	require.Equal(t, Stopped, owner.State())

	tm := k.NewTaskTimer(owner, TimerOneShot)
	tm.Start(5)
	tick(k, 5)

	stepUntil(t, k, 8, func() bool { return ran == 1 })
}

func TestTaskTimerIgnoresRunnableOwner(t *testing.T) {
	k, _ := newTestKernel(t)
	owner := k.Spawn("busy", func(t *Task) {
		for {
			t.Yield()
		}
	})
	stepUntil(t, k, 8, func() bool { return owner.State() == Ready })

	tm := k.NewTaskTimer(owner, TimerOneShot)
	tm.Start(5)
	tick(k, 5)

	assert.NotEqual(t, Stopped, owner.State())
}

func TestTicksTableMatchesMillisecondsAtDefaultRate(t *testing.T) {
	k, _ := newTestKernel(t)
	assert.Equal(t, uint32(1), k.ticksTable.ticks(1))
	assert.Equal(t, uint32(100), k.ticksTable.ticks(100))
	assert.Equal(t, uint32(0), k.ticksTable.ticks(0))
}
