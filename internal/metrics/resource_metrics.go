package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rcourtman/podsmon/internal/resources"
)

const namespace = "podsmon"

// Recorder exports collection state as Prometheus metrics. Its handlers run
// on the goroutine that drives the collections; the prometheus types handle
// concurrent scrapes.
type Recorder struct {
	ResourcesByStatus *prometheus.GaugeVec
	ResourcesTotal    *prometheus.GaugeVec
	EventsTotal       *prometheus.CounterVec
	RefreshTotal      *prometheus.CounterVec
	RefreshDuration   prometheus.Histogram
	PodsSupported     prometheus.Gauge
	WebsocketClients  prometheus.GaugeFunc
}

// NewRecorder registers the podsmon metrics with reg. clients, when non-nil,
// backs the connected websocket clients gauge.
func NewRecorder(reg prometheus.Registerer, clients func() int) *Recorder {
	factory := promauto.With(reg)

	r := &Recorder{
		ResourcesByStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resources_by_status",
			Help:      "Number of resources by kind and status.",
		}, []string{"kind", "status"}),

		ResourcesTotal: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resources_total",
			Help:      "Number of resources currently tracked by kind.",
		}, []string{"kind"}),

		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resource_events_total",
			Help:      "Structural collection events by kind and event (added, renamed, removed).",
		}, []string{"kind", "event"}),

		RefreshTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Engine refresh attempts by outcome.",
		}, []string{"result"}),

		RefreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Engine refresh duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		PodsSupported: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pods_supported",
			Help:      "1 when the engine exposes pods, 0 otherwise.",
		}),
	}

	if clients != nil {
		r.WebsocketClients = factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected websocket event stream clients.",
		}, func() float64 { return float64(clients()) })
	}
	return r
}

// Attach subscribes the recorder to a collection and primes the gauges so
// every status of the kind is exported from the start.
func (r *Recorder) Attach(o *resources.Observable) {
	kind := o.Kind()

	r.setCounts(kind, o.Counts())
	r.ResourcesTotal.WithLabelValues(string(kind)).Set(float64(o.Len()))
	for _, event := range []string{"added", "renamed", "removed"} {
		r.EventsTotal.WithLabelValues(string(kind), event)
	}

	o.ConnectCountsChanged(func(c resources.Counts) {
		r.setCounts(kind, c)
	})
	o.ConnectLenChanged(func(n int) {
		r.ResourcesTotal.WithLabelValues(string(kind)).Set(float64(n))
	})
	o.ConnectAdded(func(*resources.Resource) {
		r.EventsTotal.WithLabelValues(string(kind), "added").Inc()
	})
	o.ConnectRenamed(func(*resources.Resource) {
		r.EventsTotal.WithLabelValues(string(kind), "renamed").Inc()
	})
	o.ConnectRemoved(func(*resources.Resource) {
		r.EventsTotal.WithLabelValues(string(kind), "removed").Inc()
	})
}

// ObserveRefresh records one refresh attempt.
func (r *Recorder) ObserveRefresh(took time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	r.RefreshTotal.WithLabelValues(result).Inc()
	r.RefreshDuration.Observe(took.Seconds())
}

// SetPodsSupported records whether pods are being collected.
func (r *Recorder) SetPodsSupported(ok bool) {
	if ok {
		r.PodsSupported.Set(1)
		return
	}
	r.PodsSupported.Set(0)
}

func (r *Recorder) setCounts(kind resources.Kind, counts resources.Counts) {
	// Stable label set for the statuses this kind can hold.
	for _, status := range kind.Statuses() {
		r.ResourcesByStatus.WithLabelValues(string(kind), string(status)).Set(float64(counts[status]))
	}
}
