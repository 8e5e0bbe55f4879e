package locks

import (
	"github.com/rcrowley/go-metrics"
	"sync"
	"time"
)

var (
	mtxReg              metrics.Registry
	mtxOnce             sync.Once
	metricsCounterMap   = make(map[string]metrics.Counter)
	metricsHistogramMap = make(map[string]metrics.Histogram)
)

const (
	metricsAcquireCounter  = "glm.acquire.counter"
	metricsReleaseCounter  = "glm.release.counter"
	metricsLockableCounter = "glm.lockable.counter"
	metricsStatusCounter   = "glm.status.counter"

	metricsAcquireGranted = "glm.acquire.granted"
	metricsAcquireRefused = "glm.acquire.refused"
	metricsFailClosed     = "glm.failClosed.counter"
	metricsStoreFault     = "glm.storeFault.counter"

	metricsAcquireTimeSum  = "glm.acquire.timeSum"
	metricsReleaseTimeSum  = "glm.release.timeSum"
	metricsLockableTimeSum = "glm.lockable.timeSum"
	metricsStatusTimeSum   = "glm.status.timeSum"

	metricsAcquireAverageTime  = "glm.acquire.averageTime"
	metricsReleaseAverageTime  = "glm.release.averageTime"
	metricsLockableAverageTime = "glm.lockable.averageTime"
	metricsStatusAverageTime   = "glm.status.averageTime"
)

// RegMetrics registers the lock manager metrics once; later calls are no-ops.
func RegMetrics(r metrics.Registry) {
	mtxOnce.Do(func() {
		mtxReg = r
		for _, name := range []string{
			metricsAcquireCounter, metricsReleaseCounter, metricsLockableCounter, metricsStatusCounter,
			metricsAcquireGranted, metricsAcquireRefused, metricsFailClosed, metricsStoreFault,
			metricsAcquireTimeSum, metricsReleaseTimeSum, metricsLockableTimeSum, metricsStatusTimeSum,
		} {
			metricsCounterMap[name] = metrics.NewCounter()
		}
		for _, name := range []string{
			metricsAcquireAverageTime, metricsReleaseAverageTime, metricsLockableAverageTime, metricsStatusAverageTime,
		} {
			metricsHistogramMap[name] = metrics.NewHistogram(metrics.NewUniformSample(1028))
		}
		for k, v := range metricsCounterMap {
			mtxReg.Register(k, v)
		}
		for k, v := range metricsHistogramMap {
			mtxReg.Register(k, v)
		}
	})
}

// c: call number counter, sumC: call total time counter, h: call time histogram
func recordMetrics(c string, sumC string, h string, startTime time.Time) {
	recordCounterMetrics(c, 1)
	// us
	d := time.Since(startTime).Microseconds()
	recordCounterMetrics(sumC, d)
	recordHistogramMetrics(h, d)
}

func recordCounterMetrics(metricsItem string, n int64) {
	if mtxReg == nil {
		return
	}
	if c := metricsCounterMap[metricsItem]; c != nil {
		c.Inc(n)
	}
}

func recordHistogramMetrics(metricsItem string, n int64) {
	if mtxReg == nil {
		return
	}
	if h := metricsHistogramMap[metricsItem]; h != nil {
		h.Update(n)
	}
}
