package cotask

import (
	"context"
	"time"
)

// Peripheral identifies a board peripheral the kernel can enable, disable,
// or query through a Port, per SPEC_FULL.md's external-interfaces section.
type Peripheral uint8

// SleepMode selects the depth of idle-time power saving the idle task
// asks the Port to enter, per SPEC_FULL.md §6.
type SleepMode uint8

const (
	// SleepNone keeps the CPU fully awake (busy-poll); chosen when an IRQ
	// is pending or a task other than idle is runnable.
	SleepNone SleepMode = iota
	// SleepLight stops the CPU core but leaves peripherals and the tick
	// source running; chosen when nothing is runnable and no IRQ is
	// pending, but a peripheral is enabled.
	SleepLight
	// SleepDeep powers down everything except what is needed to wake on a
	// configured IRQ; chosen when nothing is runnable, no IRQ is pending,
	// and no peripheral is enabled. Timed sleepers do not affect the choice.
	SleepDeep
)

// Port is the hardware/runtime abstraction the kernel schedules against.
// hostport implements it against a real clock and real interrupts;
// fakeport implements it deterministically for tests.
type Port interface {
	// Ticks delivers ticks-since-last-read as they occur. The channel is
	// closed when ctx is done.
	Ticks(ctx context.Context) <-chan uint16
	// ReportedIRQs returns the bitset of interrupts reported since the
	// last call, clearing it atomically.
	ReportedIRQs() uint32
	// Enable turns a peripheral on.
	Enable(p Peripheral) error
	// Disable turns a peripheral off.
	Disable(p Peripheral) error
	// State reports whether a peripheral is currently enabled.
	State(p Peripheral) bool
	// AnyPeripheralEnabled reports whether at least one peripheral besides
	// the tick source is currently enabled, for the idle task's sleep-mode
	// table (SPEC_FULL.md §6).
	AnyPeripheralEnabled() bool
	// SelectSleep tells the port which power mode the idle task has
	// chosen for the upcoming idle period.
	SelectSleep(mode SleepMode)
	// KickWatchdog resets the watchdog countdown. Called once per
	// scheduler pass.
	KickWatchdog()
}

// WatchdogConfigurer is an optional capability a Port may implement to
// accept a boot-time watchdog period (WithWatchdogPeriod). Ports that
// don't need a configurable deadline (like fakeport, whose watchdog has
// no period at all) simply don't implement this.
type WatchdogConfigurer interface {
	SetWatchdogPeriod(d time.Duration)
}
