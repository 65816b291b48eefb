package metrics

import (
	"runtime"
	"time"
)

// RuntimeCollector exposes Go runtime statistics under the standard
// go_* metric names.
type RuntimeCollector struct {
	goroutines  *Gauge
	heapAlloc   *Gauge
	heapSys     *Gauge
	heapInuse   *Gauge
	heapObjects *Gauge
	stackInuse  *Gauge
	gcPause     *Gauge
	gcCycles    *Gauge

	uptime    *Gauge
	startTime time.Time
}

// NewRuntimeCollector registers the runtime metrics on r. The uptime
// gauge is owned by the caller and updated on each collection.
func NewRuntimeCollector(r *Registry, uptime *Gauge) *RuntimeCollector {
	return &RuntimeCollector{
		startTime:   time.Now(),
		uptime:      uptime,
		goroutines:  r.NewGauge("go_goroutines", "Number of goroutines that currently exist"),
		heapAlloc:   r.NewGauge("go_memstats_heap_alloc_bytes", "Number of heap bytes allocated and still in use"),
		heapSys:     r.NewGauge("go_memstats_heap_sys_bytes", "Number of heap bytes obtained from system"),
		heapInuse:   r.NewGauge("go_memstats_heap_inuse_bytes", "Number of heap bytes that are in use"),
		heapObjects: r.NewGauge("go_memstats_heap_objects", "Number of allocated heap objects"),
		stackInuse:  r.NewGauge("go_memstats_stack_inuse_bytes", "Number of bytes in use by the stack allocator"),
		gcPause:     r.NewGauge("go_gc_duration_seconds", "Total GC pause duration in seconds"),
		gcCycles:    r.NewGauge("go_gc_cycles_total", "Total number of completed GC cycles"),
	}
}

// Collect updates all runtime metrics with current values.
func (rc *RuntimeCollector) Collect() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	_ = rc.uptime.Set(time.Since(rc.startTime).Seconds())
	_ = rc.goroutines.Set(float64(runtime.NumGoroutine()))
	_ = rc.heapAlloc.Set(float64(mem.HeapAlloc))
	_ = rc.heapSys.Set(float64(mem.HeapSys))
	_ = rc.heapInuse.Set(float64(mem.HeapInuse))
	_ = rc.heapObjects.Set(float64(mem.HeapObjects))
	_ = rc.stackInuse.Set(float64(mem.StackInuse))
	// PauseTotalNs is the authoritative cumulative total; the PauseNs
	// ring buffer wraps after 256 entries.
	_ = rc.gcPause.Set(float64(mem.PauseTotalNs) / 1e9)
	_ = rc.gcCycles.Set(float64(mem.NumGC))
}

// Start collects immediately and then on every interval tick. The
// returned function stops the collector goroutine.
func (rc *RuntimeCollector) Start(interval time.Duration) func() {
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		rc.Collect()
		for {
			select {
			case <-ticker.C:
				rc.Collect()
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }
}
