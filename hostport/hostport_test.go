package hostport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"

	"github.com/cotaskio/cotask"
)

func TestNewCreatesAndClosesEventfd(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	assert.NotEqual(t, 0, p.WakeFD())
	require.NoError(t, p.Close())
}

func TestPeripheralEnableDisableState(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	const per cotask.Peripheral = 2
	assert.False(t, p.State(per))
	require.NoError(t, p.Enable(per))
	assert.True(t, p.State(per))
	require.NoError(t, p.Disable(per))
	assert.False(t, p.State(per))
}

func TestReportIRQAccumulatesThenClearsOnRead(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	p.ReportIRQ(0)
	p.ReportIRQ(2)
	assert.Equal(t, uint32(1<<0|1<<2), p.ReportedIRQs())
	assert.Equal(t, uint32(0), p.ReportedIRQs())
}

func TestTicksDeliveredAtConfiguredPeriod(t *testing.T) {
	clock := clockz.NewFakeClock()
	p, err := New(WithClock(clock), WithTickPeriod(10*time.Millisecond))
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := p.Ticks(ctx)

	clock.Advance(10 * time.Millisecond)
	clock.BlockUntilReady()

	select {
	case <-out:
	case <-time.After(time.Second):
		t.Fatal("no tick delivered after advancing the fake clock by one period")
	}
}

func TestWatchdogExpiresWithoutKick(t *testing.T) {
	clock := clockz.NewFakeClock()
	p, err := New(WithClock(clock))
	require.NoError(t, err)
	defer p.Close()

	p.KickWatchdog()
	assert.False(t, p.WatchdogExpired())

	clock.Advance(2 * time.Second)
	clock.BlockUntilReady()
	assert.True(t, p.WatchdogExpired())
}

func TestWatchdogHandlerInvokedExternally(t *testing.T) {
	called := false
	fn := func() { called = true }
	p, err := New(WithWatchdogHandler(fn))
	require.NoError(t, err)
	defer p.Close()

	p.onWatchdog()
	assert.True(t, called)
}
