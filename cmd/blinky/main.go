// Command blinky is the canonical end-to-end scenario from SPEC_FULL.md
// §8: a single task toggling an LED peripheral on a fixed period, run
// against hostport so it behaves like it would on real hardware.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/cotaskio/cotask"
	"github.com/cotaskio/cotask/hostport"
)

const peripheralLED cotask.Peripheral = 0

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	port, err := hostport.New(hostport.WithTickPeriod(time.Millisecond))
	if err != nil {
		log.Fatalf("blinky: %v", err)
	}
	defer port.Close()

	k, err := cotask.New(port,
		cotask.WithLogger(cotask.NewDefaultLogger(cotask.LevelInfo)),
	)
	if err != nil {
		log.Fatalf("blinky: %v", err)
	}

	if err := port.Enable(peripheralLED); err != nil {
		log.Fatalf("blinky: enable led: %v", err)
	}

	k.Spawn("blink", func(t *cotask.Task) {
		on := false
		for {
			on = !on
			if on {
				_ = port.Enable(peripheralLED)
			} else {
				_ = port.Disable(peripheralLED)
			}
			t.Delay(500 * time.Millisecond)
		}
	})

	k.Run(ctx)
}
