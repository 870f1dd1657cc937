// Package hostport implements cotask.Port against a real clock, a real
// tick goroutine, and an eventfd-backed interrupt line, so a cotask
// Kernel can be run as an ordinary host process rather than on a
// microcontroller.
package hostport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
	"golang.org/x/sys/unix"

	"github.com/cotaskio/cotask"
)

// Port is a cotask.Port backed by a real (or injected) clockz.Clock. The
// tick source runs at tickPeriod; interrupts are reported through
// ReportIRQ, which is safe to call from any goroutine (e.g. a separate
// goroutine polling real GPIO/netlink/etc.), the same eventfd-based
// wake-up mechanism the teacher's event loop poller uses on Linux to
// break out of a blocking wait.
type Port struct {
	clock      clockz.Clock
	tickPeriod time.Duration

	mu           sync.Mutex
	peripherals  map[cotask.Peripheral]bool
	lastSleep    cotask.SleepMode
	watchdogDur  time.Duration
	watchdogDead time.Time
	onWatchdog   func()

	irqBits atomic.Uint32

	wakeFD int
}

// Option configures a Port at construction time.
type Option func(*Port)

// WithClock overrides the clockz.Clock used for ticking and the
// watchdog deadline; defaults to clockz.RealClock.
func WithClock(c clockz.Clock) Option {
	return func(p *Port) { p.clock = c }
}

// WithTickPeriod sets the duration of one kernel tick; defaults to 1ms.
func WithTickPeriod(d time.Duration) Option {
	return func(p *Port) { p.tickPeriod = d }
}

// WithWatchdogHandler sets the handler stored for watchdog expiry;
// defaults to panicking, the host-process analogue of a hardware watchdog
// reset. Port itself never calls the handler: nothing monitors the
// deadline, and expiry is only observable through WatchdogExpired.
func WithWatchdogHandler(fn func()) Option {
	return func(p *Port) { p.onWatchdog = fn }
}

// New creates a Port. The returned Port owns an eventfd used to
// interrupt anything waiting on IRQ delivery; call Close when done.
func New(opts ...Option) (*Port, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("hostport: eventfd: %w", err)
	}
	p := &Port{
		clock:       clockz.RealClock,
		tickPeriod:  time.Millisecond,
		peripherals: make(map[cotask.Peripheral]bool),
		watchdogDur: time.Second,
		wakeFD:      fd,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.onWatchdog = orDefaultWatchdog(p.onWatchdog)
	return p, nil
}

func orDefaultWatchdog(fn func()) func() {
	if fn != nil {
		return fn
	}
	return func() { panic("hostport: watchdog expired") }
}

// Close releases the eventfd.
func (p *Port) Close() error {
	return unix.Close(p.wakeFD)
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
			case <-p.clock.After(p.tickPeriod):
				select {
				case out <- 1:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// ReportIRQ sets bit id in the reported-interrupts bitset and nudges the
// eventfd so anything select()-ing on WakeFD wakes up. Safe to call from
// any goroutine.
func (p *Port) ReportIRQ(id uint8) {
	for {
		old := p.irqBits.Load()
		next := old | (1 << id)
		if p.irqBits.CompareAndSwap(old, next) {
			break
		}
	}
	var buf [8]byte
	buf[7] = 1
	_, _ = unix.Write(p.wakeFD, buf[:])
}

// ReportedIRQs implements cotask.Port.
func (p *Port) ReportedIRQs() uint32 {
	return p.irqBits.Swap(0)
}

// WakeFD exposes the underlying eventfd for callers that want to
// multiplex IRQ delivery into their own poll/epoll loop.
func (p *Port) WakeFD() int { return p.wakeFD }

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

// SelectSleep implements cotask.Port. A host process cannot meaningfully
// change CPU power state, so this just records the kernel's choice for
// introspection (LastSleepMode) — useful in tests asserting the idle
// task picked the expected mode.
func (p *Port) SelectSleep(mode cotask.SleepMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastSleep = mode
}

// LastSleepMode returns the most recent mode passed to SelectSleep.
func (p *Port) LastSleepMode() cotask.SleepMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSleep
}

// SetWatchdogPeriod implements cotask.WatchdogConfigurer, letting
// cotask.WithWatchdogPeriod reconfigure the deadline cotask.New() wires
// at boot, after construction.
func (p *Port) SetWatchdogPeriod(d time.Duration) {
	p.mu.Lock()
	p.watchdogDur = d
	p.mu.Unlock()
}

// KickWatchdog implements cotask.Port.
func (p *Port) KickWatchdog() {
	p.mu.Lock()
	p.watchdogDead = p.clock.Now().Add(p.watchdogDur)
	p.mu.Unlock()
}

// WatchdogExpired reports whether the watchdog deadline has passed
// without a KickWatchdog call. It is the only way expiry is detected;
// applications embedding Port in a longer health-check loop poll it.
func (p *Port) WatchdogExpired() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.watchdogDead.IsZero() && p.clock.Now().After(p.watchdogDead)
}
