// Package fakeport implements cotask.Port deterministically, for tests
// that need to drive the kernel's tick source and IRQ delivery by hand
// rather than waiting on a real clock.
package fakeport

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/cotaskio/cotask"
)

// fakeClock is the subset of clockz's fake clock this package drives
// directly, kept as a local interface so the concrete type never has to
// be named in fakeport's public API.
type fakeClock interface {
	clockz.Clock
	Advance(d time.Duration)
	BlockUntilReady()
}

// Port is a deterministic cotask.Port. Ticks are only delivered when the
// test calls Tick (Advance moves the fake clock but delivers no ticks);
// IRQs are only reported when the test calls ReportIRQ. Nothing here
// depends on wall-clock time passing.
type Port struct {
	clock fakeClock

	mu          sync.Mutex
	peripherals map[cotask.Peripheral]bool
	lastSleep   cotask.SleepMode
	watchdogOK  bool
	irqBits     uint32

	tickCh chan uint16
}

// New creates a Port backed by a fresh fake clock.
func New() *Port {
	return &Port{
		clock:       clockz.NewFakeClock(),
		peripherals: make(map[cotask.Peripheral]bool),
		tickCh:      make(chan uint16, 4096),
	}
}

// Advance moves the fake clock forward by d and waits for every timer
// scheduled at or before the new time to fire, matching the
// Advance+BlockUntilReady pairing the clockz test harness expects.
func (p *Port) Advance(d time.Duration) {
	p.clock.Advance(d)
	p.clock.BlockUntilReady()
}

// Tick injects n raw ticks immediately.
func (p *Port) Tick(n int) {
	for i := 0; i < n; i++ {
		p.tickCh <- 1
	}
}

// Ticks implements cotask.Port.
func (p *Port) Ticks(ctx context.Context) <-chan uint16 {
	out := make(chan uint16)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case v := <-p.tickCh:
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// ReportIRQ sets bit id in the reported-interrupts bitset.
func (p *Port) ReportIRQ(id uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.irqBits |= 1 << id
}

// ReportedIRQs implements cotask.Port.
func (p *Port) ReportedIRQs() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	bits := p.irqBits
	p.irqBits = 0
	return bits
}

// Enable implements cotask.Port.
func (p *Port) Enable(per cotask.Peripheral) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.peripherals[per] = true
	return nil
}

// Disable implements cotask.Port.
func (p *Port) Disable(per cotask.Peripheral) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.peripherals[per] = false
	return nil
}

// State implements cotask.Port.
func (p *Port) State(per cotask.Peripheral) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peripherals[per]
}

// AnyPeripheralEnabled implements cotask.Port.
func (p *Port) AnyPeripheralEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, on := range p.peripherals {
		if on {
			return true
		}
	}
	return false
}

// SelectSleep implements cotask.Port.
func (p *Port) SelectSleep(mode cotask.SleepMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastSleep = mode
}

// LastSleepMode returns the most recent mode passed to SelectSleep, for
// test assertions about the idle task's decision.
func (p *Port) LastSleepMode() cotask.SleepMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSleep
}

// KickWatchdog implements cotask.Port.
func (p *Port) KickWatchdog() {
	p.mu.Lock()
	p.watchdogOK = true
	p.mu.Unlock()
}

// WatchdogKicked reports whether KickWatchdog has been called since the
// last call to WatchdogKicked, for tests asserting the scheduler loop
// kicks it every pass.
func (p *Port) WatchdogKicked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ok := p.watchdogOK
	p.watchdogOK = false
	return ok
}
