package cotask

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestIdleSleepModeTable exercises the peripherals/runnable/irq-pending
// decision table the idle task implements (SPEC_FULL.md §6): an IRQ
// already pending, or an application task other than idle being runnable,
// always wins (SleepNone); otherwise a live non-tick peripheral keeps the
// tick source alive (SleepLight); with nothing live at all, the deepest
// mode is safe (SleepDeep).
func TestIdleSleepModeTable(t *testing.T) {
	k, port := newTestKernel(t)

	k.Step() // idle alone, nothing enabled, nothing pending
	assert.Equal(t, SleepDeep, port.LastSleepMode())

	require.NoError(t, port.Enable(1))
	k.Step()
	assert.Equal(t, SleepLight, port.LastSleepMode())

	require.NoError(t, port.Disable(1))
	k.Step()
	assert.Equal(t, SleepDeep, port.LastSleepMode())

	busy := k.Spawn("busy", func(t *Task) {
		for {
			t.Yield()
		}
	})
	stepUntil(t, k, 8, func() bool { return busy.State() == Ready })
	k.Step()
	assert.Equal(t, SleepNone, port.LastSleepMode(), "a runnable task beyond idle must force run mode")

	k.Delete(busy)
	k.Step()
	assert.Equal(t, SleepDeep, port.LastSleepMode())

	port.ReportIRQ(7) // no waiter — just makes the bit visible for one pass
	k.Step()          // this pass's wakeIRQWaiters caches the bit
	k.Step()          // idle now observes last pass's cached bit
	assert.Equal(t, SleepNone, port.LastSleepMode(), "a pending irq must force run mode even with no waiter")
}
