package cotask

import (
	"time"

	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// kernelOptions holds configuration assembled from Option values passed to New.
type kernelOptions struct {
	heapBlocks        int
	heapBlockSize     int
	watchdogPeriod    time.Duration
	startupDelay      time.Duration
	sharedStackSize   int // accepted, not used — see WithSharedStackSize
	localFrameReserve int // accepted, not used — see WithSharedStackSize
	logger            Logger
	metrics           *metricz.Registry
	tracer            *tracez.Tracer
	errorFunc         func(sign int, code uint32)
	fatalFunc         func(err error, task *Task)
	heapWakeMode      heapWakeMode
}

// Option configures a Kernel at construction time.
type Option interface {
	apply(*kernelOptions)
}

type optionFunc func(*kernelOptions)

func (f optionFunc) apply(o *kernelOptions) { f(o) }

// WithHeap sets the fixed-block heap geometry: blocks blocks of blockSize
// bytes each. Defaults to 64 blocks of 32 bytes, matching a small MCU
// board's typical budget.
func WithHeap(blocks, blockSize int) Option {
	return optionFunc(func(o *kernelOptions) {
		o.heapBlocks = blocks
		o.heapBlockSize = blockSize
	})
}

// WithThresholdWake switches the heap's blocking-allocation wake policy
// from "signal once per freed block" (the original kernel's behavior,
// and cotask's default) to "signal only once the freed run can satisfy
// the head waiter's request", addressing the wake-storm open question in
// SPEC_FULL.md §4.2.
func WithThresholdWake() Option {
	return optionFunc(func(o *kernelOptions) { o.heapWakeMode = heapWakeThreshold })
}

// WithWatchdogPeriod sets the duration the port's watchdog is configured
// with at boot. Defaults to 1s.
func WithWatchdogPeriod(d time.Duration) Option {
	return optionFunc(func(o *kernelOptions) { o.watchdogPeriod = d })
}

// WithStartupDelay sets a delay that Run waits out before its first Step,
// i.e. after the application's Setup/Spawn calls made before Run,
// matching the original board configuration's startup delay knob.
func WithStartupDelay(d time.Duration) Option {
	return optionFunc(func(o *kernelOptions) { o.startupDelay = d })
}

// WithSharedStackSize is accepted for source fidelity with the original
// board configuration (shared stack size in bytes) but has no effect:
// cotask gives every task its own goroutine stack.
func WithSharedStackSize(bytes int) Option {
	return optionFunc(func(o *kernelOptions) { o.sharedStackSize = bytes })
}

// WithLocalFrameReserve mirrors the original per-task local-frame reserve
// knob. Accepted, not used; see WithSharedStackSize.
func WithLocalFrameReserve(bytes int) Option {
	return optionFunc(func(o *kernelOptions) { o.localFrameReserve = bytes })
}

// WithLogger installs a structured Logger. Defaults to NoOpLogger.
func WithLogger(l Logger) Option {
	return optionFunc(func(o *kernelOptions) { o.logger = l })
}

// WithMetrics installs a metricz.Registry; Kernel.Metrics() exposes it.
// When unset, metrics collection is skipped entirely (nil registry).
func WithMetrics(m *metricz.Registry) Option {
	return optionFunc(func(o *kernelOptions) { o.metrics = m })
}

// WithTracer installs a tracez.Tracer used to emit spans around scheduler
// passes and suspension points.
func WithTracer(t *tracez.Tracer) Option {
	return optionFunc(func(o *kernelOptions) { o.tracer = t })
}

// WithErrorHook installs the spec-compatible (sign, code) error callback
// described in SPEC_FULL.md §7, in addition to (not instead of) the richer
// Kernel.OnError hook mechanism.
func WithErrorHook(fn func(sign int, code uint32)) Option {
	return optionFunc(func(o *kernelOptions) { o.errorFunc = fn })
}

// WithFatalHook installs a callback invoked once, immediately before the
// kernel enters its permanent fatal halt.
func WithFatalHook(fn func(err error, task *Task)) Option {
	return optionFunc(func(o *kernelOptions) { o.fatalFunc = fn })
}

func resolveOptions(opts []Option) *kernelOptions {
	cfg := &kernelOptions{
		heapBlocks:     64,
		heapBlockSize:  32,
		watchdogPeriod: time.Second,
		logger:         NoOpLogger{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(cfg)
	}
	return cfg
}
