package cotask

import "github.com/zoobzio/metricz"

// Metric keys published on the registry returned by Kernel.Metrics, when
// metrics are enabled via WithMetrics.
const (
	MetricSchedulerPasses    = metricz.Key("cotask.scheduler.passes.total")
	MetricTasksWoken         = metricz.Key("cotask.scheduler.tasks_woken.total")
	MetricRunnableCount      = metricz.Key("cotask.scheduler.runnable.count")
	MetricSleepingCount      = metricz.Key("cotask.scheduler.sleeping.count")
	MetricTimersArmed        = metricz.Key("cotask.timers.armed.count")
	MetricTimersFired        = metricz.Key("cotask.timers.fired.total")
	MetricHeapFreeBlocks     = metricz.Key("cotask.heap.free_blocks.count")
	MetricHeapAllocations    = metricz.Key("cotask.heap.allocations.total")
	MetricHeapWaiters        = metricz.Key("cotask.heap.waiters.count")
	MetricSemaphoreSignals   = metricz.Key("cotask.semaphore.signals.total")
	MetricSemaphoreWaits     = metricz.Key("cotask.semaphore.waits.total")
	MetricMutexLocks         = metricz.Key("cotask.mutex.locks.total")
	MetricMutexContentions   = metricz.Key("cotask.mutex.contentions.total")
	MetricErrorsTotal        = metricz.Key("cotask.errors.total")
	MetricFatalErrorsTotal   = metricz.Key("cotask.errors.fatal.total")
)

// registerMetrics declares every counter/gauge used by the kernel so that
// Kernel.Metrics() always exposes a complete, zero-valued set even before
// the first event of a given kind occurs — matching the teacher pattern of
// declaring all keys up front in the constructor.
func registerMetrics(m *metricz.Registry) {
	m.Counter(MetricSchedulerPasses)
	m.Counter(MetricTasksWoken)
	m.Gauge(MetricRunnableCount)
	m.Gauge(MetricSleepingCount)
	m.Gauge(MetricTimersArmed)
	m.Counter(MetricTimersFired)
	m.Gauge(MetricHeapFreeBlocks)
	m.Counter(MetricHeapAllocations)
	m.Gauge(MetricHeapWaiters)
	m.Counter(MetricSemaphoreSignals)
	m.Counter(MetricSemaphoreWaits)
	m.Counter(MetricMutexLocks)
	m.Counter(MetricMutexContentions)
	m.Counter(MetricErrorsTotal)
	m.Counter(MetricFatalErrorsTotal)
}
