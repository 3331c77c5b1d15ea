package latticemetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	gometrics "github.com/rcrowley/go-metrics"
)

// promCollector adapts the rcrowley registry to prometheus.Collector so a
// node can expose /metrics without keeping two parallel metric trees, the
// way go-ethereum's own metrics/prometheus exporter bridges its registry.
type promCollector struct {
	namespace string
}

// NewPrometheusCollector returns a prometheus.Collector snapshotting
// Registry() under the given metric namespace on every scrape.
func NewPrometheusCollector(namespace string) prometheus.Collector {
	return &promCollector{namespace: namespace}
}

func (p *promCollector) Describe(ch chan<- *prometheus.Desc) {
	// Descriptions are generated dynamically in Collect; Prometheus
	// tolerates a collector that only implements the unchecked variant
	// by simply not pre-declaring descriptors here.
}

func (p *promCollector) Collect(ch chan<- prometheus.Metric) {
	Registry().Each(func(name string, i any) {
		fq := prometheus.BuildFQName(p.namespace, "", sanitize(name))
		switch m := i.(type) {
		case gometrics.Counter:
			ch <- prometheus.MustNewConstMetric(
				prometheus.NewDesc(fq, name, nil, nil),
				prometheus.CounterValue, float64(m.Count()))
		case gometrics.Gauge:
			ch <- prometheus.MustNewConstMetric(
				prometheus.NewDesc(fq, name, nil, nil),
				prometheus.GaugeValue, float64(m.Value()))
		case gometrics.Meter:
			ch <- prometheus.MustNewConstMetric(
				prometheus.NewDesc(fq, name, nil, nil),
				prometheus.GaugeValue, m.Snapshot().Rate1())
		case gometrics.Timer:
			ch <- prometheus.MustNewConstMetric(
				prometheus.NewDesc(fq+"_seconds", name, nil, nil),
				prometheus.GaugeValue, m.Snapshot().Mean()/1e9)
		}
	})
}

func sanitize(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			out[i] = c
		default:
			out[i] = '_'
		}
	}
	return string(out)
}
