// Copyright 2025 The cotask Authors
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package cotask implements the core of a cooperative, single-threaded
// real-time kernel: task lifecycle, the five wait conditions, a
// round-robin scheduler, counting semaphores, FIFO mutexes, a fixed-block
// heap with blocking allocation, and software timers over a single
// logical tick source.
//
// # Scheduling model
//
// Tasks are not state machines over a resume-address the way the kernel
// this package is modeled on implements them in C; each Task owns a real
// goroutine. A single unbuffered "baton" channel per task ensures that
// only one task's goroutine is ever runnable at a time — everything else
// is parked waiting for its turn, which is exactly the cooperative,
// single-hardware-thread behavior the original design requires, just
// realized with real per-task stacks instead of one shared stack. See
// DESIGN.md for the full rationale.
//
// # Usage
//
//	k, err := cotask.New(port)
//	if err != nil { ... }
//	k.Spawn("blink", func(t *cotask.Task) {
//	    for {
//	        led.Toggle()
//	        t.Delay(500 * time.Millisecond)
//	    }
//	})
//	k.Run(ctx)
package cotask
