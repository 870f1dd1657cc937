package cotask

import (
	"context"
	"errors"
	"fmt"

	"github.com/zoobzio/hookz"
)

// Sentinel errors for the kernel's error taxonomy (SPEC_FULL.md §7).
var (
	// ErrDynamicMemoryExhaustion is returned by non-blocking Malloc when the
	// heap cannot satisfy a request.
	ErrDynamicMemoryExhaustion = errors.New("cotask: dynamic memory exhausted")
	// ErrSemaphoreOverRelease is reported when Signal is called on a
	// semaphore already at max_count with no pending waiters.
	ErrSemaphoreOverRelease = errors.New("cotask: semaphore over-release")
	// ErrMutexOwnershipViolation is reported when Unlock is called by a
	// task that does not own the mutex.
	ErrMutexOwnershipViolation = errors.New("cotask: mutex ownership violation")
	// ErrParentChildInconsistency names a family pointer that does not
	// satisfy the "at most one parent, one child" rule. erase performs no
	// such check, so cotask never reports this error itself.
	ErrParentChildInconsistency = errors.New("cotask: parent/child inconsistency")
	// ErrAlreadyHasParent is returned by Join when the child already has a
	// different parent and wait==false.
	ErrAlreadyHasParent = errors.New("cotask: child already has a parent")

	// ErrStackOverflowUp and ErrStackOverflowDown are fatal in the original
	// kernel (sentinel corruption on a shared stack). cotask gives every
	// task a real goroutine stack, so there is no sentinel to corrupt, and
	// cotask never returns or reports either of these: a task goroutine that
	// panics (see Task.run) reaches Kernel.fatal with the recovered value
	// itself, or a wrapper around it when the value is not an error.
	ErrStackOverflowUp   = errors.New("cotask: fatal task panic")
	ErrStackOverflowDown = errors.New("cotask: fatal task protocol violation")
)

// ErrorSign distinguishes the onset of a non-fatal condition from its
// clearance, matching the original kernel's (sign, code) error hook.
type ErrorSign int

const (
	// ErrorOnset marks the beginning of a non-fatal error condition.
	ErrorOnset ErrorSign = 1
	// ErrorCleared marks the end of a previously-reported condition.
	ErrorCleared ErrorSign = -1
)

// Hook event keys under which Kernel.OnError and Kernel.OnFatal register
// their handlers.
const (
	EventError hookz.Key = "cotask.error"
	EventFatal hookz.Key = "cotask.fatal"
)

// KernelEvent is emitted on EventError for every non-fatal condition
// raised by the kernel, and on EventFatal immediately before the kernel
// enters its fatal halt.
type KernelEvent struct {
	Sign ErrorSign
	Err  error
	// Task is the originating task, when known. The original kernel OR-s
	// the task's entry address into the low bits of a zero error code for
	// post-mortem identification; cotask instead carries the *Task value
	// directly, since Go values need no such encoding.
	Task *Task
}

// KernelError wraps a sentinel error with the task that triggered it, if
// any, and implements Unwrap so errors.Is/As work against the sentinels
// above.
type KernelError struct {
	Err  error
	Task *Task
}

func (e *KernelError) Error() string {
	if e.Task != nil {
		return fmt.Sprintf("%s (task %q)", e.Err, e.Task.name)
	}
	return e.Err.Error()
}

func (e *KernelError) Unwrap() error { return e.Err }

// reportError emits an onset KernelEvent, invokes the legacy (sign, code)
// callback if installed, and returns a *KernelError for the caller to
// return/propagate as it sees fit. It never blocks: hookz.Emit dispatches
// to hook handlers asynchronously.
func (k *Kernel) reportError(err error, task *Task) *KernelError {
	ke := &KernelError{Err: err, Task: task}
	if k.hooks != nil {
		_ = k.hooks.Emit(context.Background(), EventError, KernelEvent{Sign: ErrorOnset, Err: err, Task: task}) //nolint:errcheck
	}
	if k.errorFunc != nil {
		k.errorFunc(int(ErrorOnset), errorCode(err))
	}
	if k.logger != nil {
		k.logger.Log(LogEntry{Level: LevelWarn, Category: "error", Message: err.Error(), Task: task})
	}
	if k.metrics != nil {
		k.metrics.Counter(MetricErrorsTotal).Inc()
	}
	return ke
}

// fatal reports a fatal condition, then blocks forever: the original
// kernel's fatal path reports the error and spins, relying on a watchdog
// reset. cotask's Kernel.fatal similarly never returns — callers running
// on the scheduler goroutine should invoke it exactly once and let it
// occupy that goroutine permanently.
func (k *Kernel) fatal(err error, task *Task) {
	if k.hooks != nil {
		_ = k.hooks.Emit(context.Background(), EventFatal, KernelEvent{Sign: ErrorOnset, Err: err, Task: task}) //nolint:errcheck
	}
	if k.fatalFunc != nil {
		k.fatalFunc(err, task)
	}
	if k.logger != nil {
		k.logger.Log(LogEntry{Level: LevelError, Category: "fatal", Message: err.Error(), Task: task})
	}
	if k.metrics != nil {
		k.metrics.Counter(MetricFatalErrorsTotal).Inc()
	}
	k.halted.Store(true)
	<-k.haltCh // blocks forever; Run's caller observes Halted() and stops polling Step
}

// Halted reports whether the kernel has entered its permanent fatal halt.
// Tests that deliberately trigger a fatal condition should run Step (or
// Run) on a separate goroutine and poll Halted rather than join it, since
// fatal never returns.
func (k *Kernel) Halted() bool { return k.halted.Load() }

// OnError registers a handler invoked for every non-fatal error condition.
// The handler runs asynchronously relative to the kernel, as with every
// hookz subscription.
func (k *Kernel) OnError(handler func(context.Context, KernelEvent) error) error {
	_, err := k.hooks.Hook(EventError, handler)
	return err
}

// OnFatal registers a handler invoked once, immediately before the
// kernel's permanent fatal halt.
func (k *Kernel) OnFatal(handler func(context.Context, KernelEvent) error) error {
	_, err := k.hooks.Hook(EventFatal, handler)
	return err
}

// errorCode maps a sentinel error to a small stable numeric code. The low
// 16 bits are what the original kernel would OR a task's entry address
// into when zero; cotask does not need that trick (see KernelError) but
// keeps distinct codes for compatibility with external log parsers.
func errorCode(err error) uint32 {
	switch {
	case errors.Is(err, ErrDynamicMemoryExhaustion):
		return 0x0001
	case errors.Is(err, ErrSemaphoreOverRelease):
		return 0x0002
	case errors.Is(err, ErrMutexOwnershipViolation):
		return 0x0003
	case errors.Is(err, ErrParentChildInconsistency):
		return 0x0004
	case errors.Is(err, ErrAlreadyHasParent):
		return 0x0005
	default:
		return 0xFFFF
	}
}
