package shm

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports the occupancy of a channel's region as Prometheus
// gauges. It reads the shared cursors, so the values cover every process
// attached to the region.
type Collector struct {
	ch       *Channel
	capacity *prometheus.Desc
	used     *prometheus.Desc
	free     *prometheus.Desc
	closed   *prometheus.Desc
}

// NewCollector returns a Collector for ch. Nothing is reported once ch is
// detached.
func NewCollector(ch *Channel, constLabels prometheus.Labels) *Collector {
	labels := prometheus.Labels{"path": ch.Path()}
	for k, v := range constLabels {
		labels[k] = v
	}
	return &Collector{
		ch: ch,
		capacity: prometheus.NewDesc("shmchan_capacity_bytes",
			"Ring capacity of the shared region.", nil, labels),
		used: prometheus.NewDesc("shmchan_used_bytes",
			"Bytes buffered in the ring, frame headers included.", nil, labels),
		free: prometheus.NewDesc("shmchan_free_bytes",
			"Bytes that can still be written before producers block.", nil, labels),
		closed: prometheus.NewDesc("shmchan_closed",
			"1 when the channel has been closed.", nil, labels),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.capacity
	ch <- c.used
	ch <- c.free
	ch <- c.closed
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st, err := c.ch.Stats()
	if err != nil {
		return
	}
	closed := 0.0
	if st.Closed {
		closed = 1
	}
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(st.Capacity))
	ch <- prometheus.MustNewConstMetric(c.used, prometheus.GaugeValue, float64(st.Used))
	ch <- prometheus.MustNewConstMetric(c.free, prometheus.GaugeValue, float64(st.Free))
	ch <- prometheus.MustNewConstMetric(c.closed, prometheus.GaugeValue, closed)
}
