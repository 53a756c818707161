package dedupe

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports a Table's counters in Prometheus text format, the
// natural ambient choice for an always-on Controller daemon's /metrics
// endpoint.
type Collector struct {
	table *Table

	total      *prometheus.Desc
	forwarded  *prometheus.Desc
	dropped    *prometheus.Desc
	active     *prometheus.Desc
	collisions *prometheus.Desc
}

// NewCollector builds a Collector over table.
func NewCollector(table *Table) *Collector {
	return &Collector{
		table:      table,
		total:      prometheus.NewDesc("pathsteer_dedupe_packets_total", "Total packets seen by the dedup engine.", nil, nil),
		forwarded:  prometheus.NewDesc("pathsteer_dedupe_packets_forwarded_total", "Packets forwarded (first arrival or slot collision).", nil, nil),
		dropped:    prometheus.NewDesc("pathsteer_dedupe_packets_dropped_total", "Duplicate packets dropped.", nil, nil),
		active:     prometheus.NewDesc("pathsteer_dedupe_active_flows", "Current count of live flow table entries.", nil, nil),
		collisions: prometheus.NewDesc("pathsteer_dedupe_slot_collisions_total", "Same-slot, different-fingerprint collisions.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.forwarded
	ch <- c.dropped
	ch <- c.active
	ch <- c.collisions
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.table.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.CounterValue, float64(s.Total))
	ch <- prometheus.MustNewConstMetric(c.forwarded, prometheus.CounterValue, float64(s.Forwarded))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(s.Dropped))
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(s.Active))
	ch <- prometheus.MustNewConstMetric(c.collisions, prometheus.CounterValue, float64(s.Collisions))
}

var _ prometheus.Collector = (*Collector)(nil)
