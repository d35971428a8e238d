package metrics

import (
	"context"
	"runtime"
	"time"
)

const nanosecondsPerMillisecond = 1e6

// RunRuntimeCollector samples memory, goroutine and GC gauges every refresh
// interval until ctx is cancelled.
func RunRuntimeCollector(ctx context.Context) {
	ticker := time.NewTicker(globalManager.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			SampleRuntime()
		}
	}
}

// SampleRuntime records one sample of the runtime gauges.
func SampleRuntime() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	UpdateSystemMemoryUsage(m.Alloc)
	UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		RecordSystemGCPauseTime(avgPauseMs)
	}
}

// RefreshInterval reports the sampling interval of the global manager.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}
