// Package latticemetrics provides the counters/meters/timers every
// component registers, in the shape of go-ethereum's metrics package:
// rcrowley/go-metrics primitives under one process-wide registry, with an
// optional Prometheus exporter for scraping.
package latticemetrics

import (
	"sync"

	"github.com/rcrowley/go-metrics"
)

var (
	registry = metrics.NewRegistry()
	mu       sync.Mutex
)

// Counter returns (creating if absent) a monotonic counter named name.
// Every §7 error-taxonomy row is registered under "<component>/<kind>",
// e.g. "ledger/fork", "confirmation_height/invalid_block".
func Counter(name string) metrics.Counter {
	mu.Lock()
	defer mu.Unlock()
	return metrics.GetOrRegisterCounter(name, registry)
}

// Meter returns a rate meter, used for throughput stats such as
// "bootstrap/blocks_per_second".
func Meter(name string) metrics.Meter {
	mu.Lock()
	defer mu.Unlock()
	return metrics.GetOrRegisterMeter(name, registry)
}

// Timer returns a latency timer, used for e.g.
// "block_processor/batch_duration".
func Timer(name string) metrics.Timer {
	mu.Lock()
	defer mu.Unlock()
	return metrics.GetOrRegisterTimer(name, registry)
}

// Gauge returns a point-in-time value metric, e.g. queue depth.
func Gauge(name string) metrics.Gauge {
	mu.Lock()
	defer mu.Unlock()
	return metrics.GetOrRegisterGauge(name, registry)
}

// Registry exposes the underlying registry for the Prometheus exporter
// and for tests that want to assert on counter values directly.
func Registry() metrics.Registry { return registry }
