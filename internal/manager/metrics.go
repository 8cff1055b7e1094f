package manager

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Lifecycle operation names used in metrics, spans and audit events.
const (
	opLoad      = "load"
	opInstall   = "install"
	opUninstall = "uninstall"
	opEnable    = "enable"
	opDisable   = "disable"
	opPurge     = "purge"
)

var operations = []string{opLoad, opInstall, opUninstall, opEnable, opDisable, opPurge}

type opCounter struct {
	ok     atomic.Int64
	failed atomic.Int64
}

// Metrics counts lifecycle operations without locks.
type Metrics struct {
	ops map[string]*opCounter
}

func newMetrics() *Metrics {
	m := &Metrics{ops: make(map[string]*opCounter, len(operations))}
	for _, op := range operations {
		m.ops[op] = &opCounter{}
	}
	return m
}

func (m *Metrics) record(op string, err error) {
	c, ok := m.ops[op]
	if !ok {
		return
	}
	if err != nil {
		c.failed.Add(1)
		return
	}
	c.ok.Add(1)
}

// OpCounts is the number of successful and failed runs of one operation.
type OpCounts struct {
	OK     int64 `json:"ok"`
	Failed int64 `json:"failed"`
}

// Snapshot returns a point-in-time view of the counters.
func (m *Metrics) Snapshot() map[string]OpCounts {
	out := make(map[string]OpCounts, len(m.ops))
	for op, c := range m.ops {
		out[op] = OpCounts{OK: c.ok.Load(), Failed: c.failed.Load()}
	}
	return out
}

// Collector implements prometheus.Collector over a Manager. Values are read
// at scrape time, so the lifecycle hot path carries no Prometheus calls.
type Collector struct {
	m           *Manager
	opsDesc     *prometheus.Desc
	modulesDesc *prometheus.Desc
}

// Compile-time interface guard.
var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector for m. namespace defaults to "storemods".
func NewCollector(m *Manager, namespace string) *Collector {
	if namespace == "" {
		namespace = "storemods"
	}
	return &Collector{
		m: m,
		opsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "lifecycle", "operations_total"),
			"Module lifecycle operations by result.",
			[]string{"operation", "result"}, nil,
		),
		modulesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "modules"),
			"Registered modules by state.",
			[]string{"state"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.opsDesc
	ch <- c.modulesDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for op, n := range c.m.metrics.Snapshot() {
		ch <- prometheus.MustNewConstMetric(c.opsDesc, prometheus.CounterValue, float64(n.OK), op, "success")
		ch <- prometheus.MustNewConstMetric(c.opsDesc, prometheus.CounterValue, float64(n.Failed), op, "failure")
	}

	registered, installed, enabled := c.m.counts()
	ch <- prometheus.MustNewConstMetric(c.modulesDesc, prometheus.GaugeValue, float64(registered), "registered")
	ch <- prometheus.MustNewConstMetric(c.modulesDesc, prometheus.GaugeValue, float64(installed), "installed")
	ch <- prometheus.MustNewConstMetric(c.modulesDesc, prometheus.GaugeValue, float64(enabled), "enabled")
}
