package fakeport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cotaskio/cotask"
)

func TestTickDeliversExactCount(t *testing.T) {
	p := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := p.Ticks(ctx)

	p.Tick(5)
	got := 0
	for got < 5 {
		select {
		case <-out:
			got++
		case <-time.After(time.Second):
			t.Fatalf("only received %d of 5 ticks", got)
		}
	}
}

func TestTicksChannelClosesOnContextDone(t *testing.T) {
	p := New()
	ctx, cancel := context.WithCancel(context.Background())
	out := p.Ticks(ctx)
	cancel()

	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel did not close after context cancellation")
	}
}

func TestPeripheralEnableDisableState(t *testing.T) {
	p := New()
	const per cotask.Peripheral = 1
	assert.False(t, p.State(per))
	require.NoError(t, p.Enable(per))
	assert.True(t, p.State(per))
	require.NoError(t, p.Disable(per))
	assert.False(t, p.State(per))
}

func TestReportIRQAccumulatesThenClearsOnRead(t *testing.T) {
	p := New()
	p.ReportIRQ(1)
	p.ReportIRQ(3)
	bits := p.ReportedIRQs()
	assert.Equal(t, uint32(1<<1|1<<3), bits)
	assert.Equal(t, uint32(0), p.ReportedIRQs())
}

func TestSelectSleepRecordsLastMode(t *testing.T) {
	p := New()
	assert.Equal(t, cotask.SleepNone, p.LastSleepMode())
	p.SelectSleep(cotask.SleepDeep)
	assert.Equal(t, cotask.SleepDeep, p.LastSleepMode())
}

func TestKickWatchdogObservedOnce(t *testing.T) {
	p := New()
	assert.False(t, p.WatchdogKicked())
	p.KickWatchdog()
	assert.True(t, p.WatchdogKicked())
	assert.False(t, p.WatchdogKicked())
}

func TestAdvanceMovesFakeClockForward(t *testing.T) {
	p := New()
	before := p.clock.Now()
	p.Advance(time.Second)
	assert.True(t, p.clock.Now().After(before))
}
