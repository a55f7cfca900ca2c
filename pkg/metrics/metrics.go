// Package metrics provides Prometheus instrumentation for patternbus.
//
// The bus records every dispatch here (which path it took, how long it ran,
// whether it was vetoed or found nobody to deliver to). The admin server
// started by `busctl serve` exposes the registry:
//
//	r.Use(metrics.Middleware())
//	r.Get("/metrics", metrics.Handler())
//
// Then scrape http://localhost:9090/metrics from Prometheus.
package metrics

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "patternbus"

// Dispatch paths used as the "path" label.
const (
	PathCache = "cache"
	PathScan  = "scan"
)

// ─────────────────────────────────────────────
// Dispatch metrics
// ─────────────────────────────────────────────

var (
	// FiresTotal counts Fire calls by the path they took.
	FiresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "fires_total",
			Help:      "Total number of fired events, by dispatch path.",
		},
		[]string{"path"}, // "cache" | "scan"
	)

	// FireDuration tracks how long a Fire call spends delivering.
	FireDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "fire_duration_seconds",
			Help:      "Duration of Fire calls in seconds, listeners included.",
			Buckets:   []float64{.00001, .0001, .001, .01, .1, 1},
		},
		[]string{"path"},
	)

	// VetoesTotal counts deliveries stopped by a listener.
	VetoesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "vetoes_total",
			Help:      "Total number of fires cut short by a vetoing listener.",
		},
		[]string{"path"},
	)

	// NoListenersTotal counts fires that reached no listener.
	NoListenersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "no_listeners_total",
		Help:      "Total number of fires that invoked no listener.",
	})

	// InvocationsTotal counts individual listener calls by outcome.
	InvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "invocations_total",
			Help:      "Total listener invocations.",
		},
		[]string{"status"}, // "ok" | "error"
	)

	// BindsTotal / UnbindsTotal / FlushesTotal track registry churn.
	BindsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "binds_total",
		Help:      "Total listeners bound.",
	})
	UnbindsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "unbinds_total",
		Help:      "Total listeners removed by Unbind.",
	})
	FlushesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "flushes_total",
		Help:      "Total cache entries flushed.",
	})

	// BackfillsTotal counts cache entries extended by Bind.
	BackfillsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "backfills_total",
		Help:      "Total cache entries extended by a newly bound listener.",
	})
)

// ─────────────────────────────────────────────
// Admin HTTP metrics
// ─────────────────────────────────────────────

var (
	// RequestDuration tracks admin endpoint latency.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "admin",
			Name:      "request_duration_seconds",
			Help:      "Duration of admin HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// RequestTotal counts admin HTTP requests.
	RequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admin",
			Name:      "requests_total",
			Help:      "Total number of admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
)

// ─────────────────────────────────────────────
// Registry
// ─────────────────────────────────────────────

// DefaultRegistry is the Prometheus registry every patternbus metric lives in.
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(collectors.NewGoCollector())
	DefaultRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	DefaultRegistry.MustRegister(
		FiresTotal,
		FireDuration,
		VetoesTotal,
		NoListenersTotal,
		InvocationsTotal,
		BindsTotal,
		UnbindsTotal,
		FlushesTotal,
		BackfillsTotal,
		RequestDuration,
		RequestTotal,
	)
}

// Register adds a caller-owned collector to DefaultRegistry.
func Register(c prometheus.Collector) error {
	return DefaultRegistry.Register(c)
}

// ─────────────────────────────────────────────
// Helpers for the bus
// ─────────────────────────────────────────────

// ObserveFire records one Fire call:
//
//	defer metrics.ObserveFire(metrics.PathScan, time.Now())
func ObserveFire(path string, start time.Time) {
	FiresTotal.WithLabelValues(path).Inc()
	FireDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
}

// RecordInvocation records a single listener call.
func RecordInvocation(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	InvocationsTotal.WithLabelValues(status).Inc()
}

// RecordVeto records a vetoed dispatch.
func RecordVeto(path string) {
	VetoesTotal.WithLabelValues(path).Inc()
}

// ─────────────────────────────────────────────
// HTTP
// ─────────────────────────────────────────────

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records duration and count for every admin request.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rr := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rr, r)

			status := strconv.Itoa(rr.status)
			path := routePattern(r)
			RequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
			RequestTotal.WithLabelValues(r.Method, path, status).Inc()
		})
	}
}

// routePattern labels a request by its chi route ("/cache/{name}") so that
// path parameters do not create a series each. Unrouted requests keep the
// raw path.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// Handler exposes DefaultRegistry in the Prometheus text and OpenMetrics formats.
func Handler() http.HandlerFunc {
	h := promhttp.HandlerFor(DefaultRegistry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	return h.ServeHTTP
}

// ─────────────────────────────────────────────
// Summary
// ─────────────────────────────────────────────

// Sample is one counter value from DefaultRegistry.
type Sample struct {
	Name   string
	Labels string
	Value  float64
}

// Summary returns the current value of every patternbus counter, sorted
// by name then labels. Histograms and runtime collectors are skipped.
func Summary() ([]Sample, error) {
	families, err := DefaultRegistry.Gather()
	if err != nil {
		return nil, err
	}

	var out []Sample
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), namespace+"_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			if m.GetCounter() == nil {
				continue
			}
			pairs := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				pairs = append(pairs, lp.GetName()+"="+lp.GetValue())
			}
			out = append(out, Sample{
				Name:   mf.GetName(),
				Labels: strings.Join(pairs, ","),
				Value:  m.GetCounter().GetValue(),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Labels < out[j].Labels
	})
	return out, nil
}
