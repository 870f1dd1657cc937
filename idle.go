package cotask

// idleLoop is the body of the kernel's built-in idle task: it always
// exists and is always Ready, so the runnable ring is never empty (see the
// invariant documented on runnableRing) and every scheduler pass has a
// tick/timer/IRQ bookkeeping opportunity even when no application task is
// runnable. Each pass it chooses the deepest sleep mode the Port can
// safely use given what the rest of the system is waiting on, then yields
// so the next Ready task in the ring gets a turn.
func (k *Kernel) idleLoop(t *Task) {
	for {
		k.mu.Lock()
		runnableBeyondIdle := k.ring.count > 1
		irqPending := k.lastIRQBits != 0
		k.mu.Unlock()

		peripheralsOn := k.port.AnyPeripheralEnabled()

		switch {
		case irqPending, runnableBeyondIdle:
			// An IRQ is already pending, or some application task can run
			// right now — nothing to gain by sleeping at all.
			k.port.SelectSleep(SleepNone)
		case peripheralsOn:
			// Nothing runnable and no IRQ yet, but a peripheral besides the
			// tick source is live: stop the core, leave clocks running.
			k.port.SelectSleep(SleepLight)
		default:
			// Nothing runnable, no IRQ, nothing but the tick source alive:
			// safe to power down everything.
			k.port.SelectSleep(SleepDeep)
		}

		t.Yield()
	}
}
