package cotask

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cotaskio/cotask/fakeport"
	"github.com/cotaskio/cotask/hostport"
)

func TestNewRejectsNilPort(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestNewDefaultsSpawnIdleTask(t *testing.T) {
	k, _ := newTestKernel(t)
	assert.NotNil(t, k.Current()) // idle is the sole ring member before anything else runs
	assert.Nil(t, k.Metrics())
	assert.Nil(t, k.Tracer())
}

func TestStepKicksWatchdogEveryPass(t *testing.T) {
	k, port := newTestKernel(t)
	assert.False(t, port.WatchdogKicked())
	k.Step()
	assert.True(t, port.WatchdogKicked())
	assert.False(t, port.WatchdogKicked(), "WatchdogKicked resets on read")
	k.Step()
	assert.True(t, port.WatchdogKicked())
}

func TestStepNoopOnIdleSelectionOfSleepMode(t *testing.T) {
	k, port := newTestKernel(t)
	k.Step() // idle runs alone, nothing enabled, nothing pending: SleepDeep
	assert.Equal(t, SleepDeep, port.LastSleepMode())

	k.Spawn("sleeper", func(t *Task) { t.Delay(5 * time.Millisecond) })
	stepUntil(t, k, 8, func() bool { return k.sleeping.len == 1 })
	k.Step()
	assert.Equal(t, SleepDeep, port.LastSleepMode(), "a timed sleeper alone does not keep the port out of deep sleep")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	k, _ := newTestKernel(t)
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		k.Run(ctx)
		close(finished)
	}()
	cancel()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestPanickingTaskHaltsTheKernel(t *testing.T) {
	k, _ := newTestKernel(t)
	k.Spawn("crasher", func(t *Task) {
		panic("boom")
	})

	go func() {
		for i := 0; i < 8; i++ {
			k.Step() // the Step handling the panic blocks forever inside k.fatal
		}
	}()

	assert.Eventually(t, k.Halted, time.Second, time.Millisecond)
}

func TestOnErrorHookFiresForNonFatalConditions(t *testing.T) {
	k, _ := newTestKernel(t)
	var mu sync.Mutex
	var got *KernelEvent
	_, err := k.hooks.Hook(EventError, func(_ context.Context, ev KernelEvent) error {
		mu.Lock()
		defer mu.Unlock()
		e := ev
		got = &e
		return nil
	})
	require.NoError(t, err)

	sem := k.NewSemaphore(1, 1)
	require.Error(t, sem.Signal()) // already at max, nobody waiting: over-release

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, ErrorOnset, got.Sign)
	assert.ErrorIs(t, got.Err, ErrSemaphoreOverRelease)
}

func TestOnFatalHookFiresBeforeHalt(t *testing.T) {
	k, _ := newTestKernel(t)
	var mu sync.Mutex
	var fired bool
	_, err := k.hooks.Hook(EventFatal, func(_ context.Context, ev KernelEvent) error {
		mu.Lock()
		fired = true
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	k.Spawn("crasher", func(t *Task) { panic("boom") })
	go func() {
		for i := 0; i < 8; i++ {
			k.Step()
		}
	}()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fired
	}, time.Second, time.Millisecond)
}

func TestHeapAccessor(t *testing.T) {
	k, _ := newTestKernel(t, WithHeap(4, 8))
	require.NotNil(t, k.Heap())
	assert.Equal(t, 8, k.Heap().BlockSize())
	assert.Equal(t, 4, k.Heap().FreeBlocks())
}

func TestStartupDelayDefersFirstStep(t *testing.T) {
	port := fakeport.New()
	k, err := New(port, WithHeap(8, 16), WithStartupDelay(40*time.Millisecond))
	require.NoError(t, err)
	defer k.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go k.Run(ctx)

	time.Sleep(10 * time.Millisecond)
	assert.False(t, port.WatchdogKicked(), "Run must not Step before the startup delay elapses")

	assert.Eventually(t, port.WatchdogKicked, time.Second, time.Millisecond)
}

func TestStartupDelayHonorsContextCancelBeforeElapsing(t *testing.T) {
	port := fakeport.New()
	k, err := New(port, WithHeap(8, 16), WithStartupDelay(time.Hour))
	require.NoError(t, err)
	defer k.Close()

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		k.Run(ctx)
		close(finished)
	}()
	cancel()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Run did not return during a long startup delay once ctx was canceled")
	}
}

func TestWatchdogPeriodWiredIntoConfigurablePort(t *testing.T) {
	port, err := hostport.New()
	require.NoError(t, err)
	defer port.Close()

	k, err := New(port, WithHeap(8, 16), WithWatchdogPeriod(10*time.Millisecond))
	require.NoError(t, err)
	defer k.Close()

	port.KickWatchdog()
	assert.False(t, port.WatchdogExpired())
	time.Sleep(20 * time.Millisecond)
	assert.True(t, port.WatchdogExpired())
}

func TestFakePortDeliversInjectedTicks(t *testing.T) {
	port := fakeport.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ticks := port.Ticks(ctx)

	port.Tick(3)
	count := 0
loop:
	for {
		select {
		case <-ticks:
			count++
			if count == 3 {
				break loop
			}
		case <-time.After(100 * time.Millisecond):
			break loop
		}
	}
	assert.Equal(t, 3, count)
}
