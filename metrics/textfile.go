package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every exported metric name.
const Namespace = "airbender"

// collector exposes a Registry through the client_golang Collector
// interface. Histograms are exported as summaries without quantiles.
type collector struct {
	reg *Registry
}

// NewCollector wraps reg as a prometheus.Collector.
func NewCollector(reg *Registry) prometheus.Collector {
	return &collector{reg: reg}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.reg.Snapshot()
	for name, v := range snap.Counters {
		ch <- prometheus.MustNewConstMetric(desc(name), prometheus.CounterValue, float64(v))
	}
	for name, v := range snap.Gauges {
		ch <- prometheus.MustNewConstMetric(desc(name), prometheus.GaugeValue, float64(v))
	}
	for name, h := range snap.Histograms {
		ch <- prometheus.MustNewConstSummary(desc(name), uint64(h.Count), h.Sum, nil)
	}
}

// PromName converts a registry name such as "engine.execute_ms" into a
// Prometheus metric name.
func PromName(name string) string {
	return Namespace + "_" + strings.NewReplacer(".", "_", "-", "_").Replace(name)
}

func desc(name string) *prometheus.Desc {
	return prometheus.NewDesc(PromName(name), name, nil, nil)
}

// WriteTextfile writes reg to path in the Prometheus text format, for
// pickup by a node exporter textfile collector.
func WriteTextfile(path string, reg *Registry) error {
	pr := prometheus.NewRegistry()
	if err := pr.Register(NewCollector(reg)); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, pr)
}
