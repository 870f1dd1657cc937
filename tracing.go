package cotask

import (
	"context"

	"github.com/zoobzio/tracez"
)

// Span keys and tags used when a Tracer is configured via WithTracer.
const (
	SpanSchedulerStep = tracez.Key("cotask.scheduler.step")
	SpanSuspend       = tracez.Key("cotask.task.suspend")

	TagTaskName   = tracez.Tag("cotask.task.name")
	TagFromState  = tracez.Tag("cotask.task.from_state")
	TagToState    = tracez.Tag("cotask.task.to_state")
	TagTickDelta  = tracez.Tag("cotask.scheduler.tick_delta")
	TagRunnable   = tracez.Tag("cotask.scheduler.runnable_count")
)

// traceSuspend emits a zero-duration span recording a task's state
// transition at a suspension point. It is a no-op when no tracer is
// configured (k.tracer is nil).
func (k *Kernel) traceSuspend(t *Task, from, to State) {
	if k.tracer == nil {
		return
	}
	_, span := k.tracer.StartSpan(context.Background(), SpanSuspend)
	span.SetTag(TagTaskName, t.name)
	span.SetTag(TagFromState, from.String())
	span.SetTag(TagToState, to.String())
	span.Finish()
}
