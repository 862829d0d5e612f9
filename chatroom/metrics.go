package chatroom

import "github.com/prometheus/client_golang/prometheus"

// Collector exposes registry Stats to Prometheus on each scrape.
type Collector struct {
	registry *Registry

	sessionsLive   *prometheus.Desc
	usersConnected *prometheus.Desc
	broadcasts     *prometheus.Desc
	deliveries     *prometheus.Desc
	dropped        *prometheus.Desc
}

func NewCollector(reg *Registry, namespace string) *Collector {
	return &Collector{
		registry: reg,
		sessionsLive: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "chat", "sessions_live_count"),
			"Number of live websocket sessions.",
			nil, nil,
		),
		usersConnected: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "chat", "users_connected_count"),
			"Number of users in the connected set.",
			nil, nil,
		),
		broadcasts: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "chat", "broadcasts_total"),
			"Broadcasts processed since start.",
			nil, nil,
		),
		deliveries: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "chat", "deliveries_total"),
			"Lines queued to sessions since start.",
			nil, nil,
		),
		dropped: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "chat", "dropped_deliveries_total"),
			"Lines dropped because a session queue was full or closed.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sessionsLive
	ch <- c.usersConnected
	ch <- c.broadcasts
	ch <- c.deliveries
	ch <- c.dropped
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.registry.Stats()
	ch <- prometheus.MustNewConstMetric(c.sessionsLive, prometheus.GaugeValue, float64(st.Sessions))
	ch <- prometheus.MustNewConstMetric(c.usersConnected, prometheus.GaugeValue, float64(st.ConnectedUsers))
	ch <- prometheus.MustNewConstMetric(c.broadcasts, prometheus.CounterValue, float64(st.Broadcasts))
	ch <- prometheus.MustNewConstMetric(c.deliveries, prometheus.CounterValue, float64(st.Deliveries))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(st.DroppedDeliveries))
}
