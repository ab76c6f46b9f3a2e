package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stockwatch"

// Fetch outcomes used as the "result" label.
const (
	FetchSuccess = "success"
	FetchNetwork = "network"
	FetchServer  = "server"
	FetchDecode  = "decode"
)

// Metrics holds the watcher's Prometheus collectors.
type Metrics struct {
	Fetches          *prometheus.CounterVec
	AlertsQueued     prometheus.Counter
	Rearmed          prometheus.Counter
	Acknowledgments  prometheus.Counter
	NotifyFailures   *prometheus.CounterVec
	QueueDepth       prometheus.Gauge
	Presenting       prometheus.Gauge
	SnapshotItems    prometheus.Gauge
	DegradedItems    *prometheus.GaugeVec
	LastFetchSuccess prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered, which is convenient in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_fetches_total",
			Help:      "Inventory snapshot fetches by result.",
		}, []string{"result"}),
		AlertsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_queued_total",
			Help:      "Stock alerts added to the presentation queue.",
		}),
		Rearmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acknowledgments_rearmed_total",
			Help:      "Acknowledgments cleared because the item's status changed.",
		}),
		Acknowledgments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acknowledgments_total",
			Help:      "Item acknowledgments recorded from users.",
		}),
		NotifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_failures_total",
			Help:      "Failed outbound alert notifications.",
		}, []string{"stage"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alert_queue_depth",
			Help:      "Alerts waiting behind the active presentation.",
		}),
		Presenting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alert_presenting",
			Help:      "1 while an alert presentation is active.",
		}),
		SnapshotItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_items",
			Help:      "Items in the latest inventory snapshot.",
		}),
		DegradedItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "degraded_items",
			Help:      "Items per degraded status in the latest snapshot.",
		}, []string{"status"}),
		LastFetchSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_fetch_success_timestamp_seconds",
			Help:      "Unix time of the last successful fetch.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Fetches,
			m.AlertsQueued,
			m.Rearmed,
			m.Acknowledgments,
			m.NotifyFailures,
			m.QueueDepth,
			m.Presenting,
			m.SnapshotItems,
			m.DegradedItems,
			m.LastFetchSuccess,
		)
	}

	return m
}
