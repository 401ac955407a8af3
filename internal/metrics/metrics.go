// Package metrics exposes call, event and HTTP counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/gameroot"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "happijack"
	outcomeOK = "ok"
)

// Recorder owns a private registry. It observes root calls and committed
// events and instruments the HTTP router.
type Recorder struct {
	registry *prometheus.Registry

	calls         *prometheus.CounterVec
	callDuration  *prometheus.HistogramVec
	events        *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	httpInFlight  prometheus.Gauge
	keeperRuns    *prometheus.CounterVec
	keeperVerified prometheus.Counter
}

// NewRecorder registers every collector on a fresh registry, plus the process
// and Go runtime collectors.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	factory := promauto.With(registry)
	return &Recorder{
		registry: registry,
		calls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "root",
			Name:      "calls_total",
			Help:      "Top-level calls by system and outcome.",
		}, []string{"system", "outcome"}),
		callDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "root",
			Name:      "call_duration_seconds",
			Help:      "Duration of top-level calls.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"system"}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "root",
			Name:      "events_total",
			Help:      "Committed events by name.",
		}, []string{"event"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "route"}),
		httpInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "HTTP requests currently being served.",
		}),
		keeperRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keeper",
			Name:      "runs_total",
			Help:      "Keeper sweeps by outcome.",
		}, []string{"outcome"}),
		keeperVerified: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keeper",
			Name:      "games_verified_total",
			Help:      "Games verified by the keeper.",
		}),
	}
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObserveCall implements gameroot.CallObserver.
func (r *Recorder) ObserveCall(system string, kind gameroot.Kind, duration time.Duration) {
	outcome := string(kind)
	if outcome == "" {
		outcome = outcomeOK
	}
	r.calls.WithLabelValues(system, outcome).Inc()
	r.callDuration.WithLabelValues(system).Observe(duration.Seconds())
}

// HandleEvents implements gameroot.EventListener.
func (r *Recorder) HandleEvents(events []gameroot.Event) {
	for _, event := range events {
		r.events.WithLabelValues(event.Name).Inc()
	}
}

// ObserveRequest records one served request. route is the router pattern,
// never the raw path, to keep label cardinality bounded.
func (r *Recorder) ObserveRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (r *Recorder) RequestStarted()  { r.httpInFlight.Inc() }
func (r *Recorder) RequestFinished() { r.httpInFlight.Dec() }

// ObserveKeeperRun records one keeper sweep and how many games it verified.
func (r *Recorder) ObserveKeeperRun(verified int, err error) {
	outcome := outcomeOK
	if err != nil {
		outcome = "error"
	}
	r.keeperRuns.WithLabelValues(outcome).Inc()
	r.keeperVerified.Add(float64(verified))
}
