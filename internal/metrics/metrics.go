// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aiact/compliance/internal/scoring"
)

const namespace = "aiact"

var (
	// readinessEvaluations counts certification readiness checks.
	// Labels: outcome (ready, not_ready, malformed)
	readinessEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "readiness",
		Name:      "evaluations_total",
		Help:      "Certification readiness evaluations by outcome",
	}, []string{"outcome"})

	// documentConversions counts PDF requests.
	// Labels: converter, outcome (converted, fallback)
	documentConversions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "documents",
		Name:      "conversions_total",
		Help:      "PDF conversions by converter and outcome",
	}, []string{"converter", "outcome"})

	exportJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "exports",
		Name:      "jobs_total",
		Help:      "Async export jobs by final status",
	}, []string{"status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route pattern",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// ObserveReadiness records the outcome of a ValidateReadiness call.
func ObserveReadiness(result *scoring.ReadinessResult, err error) {
	switch {
	case err != nil:
		readinessEvaluations.WithLabelValues("malformed").Inc()
	case result.Ready:
		readinessEvaluations.WithLabelValues("ready").Inc()
	default:
		readinessEvaluations.WithLabelValues("not_ready").Inc()
	}
}

func ObserveConversion(converter string, converted bool) {
	outcome := "fallback"
	if converted {
		outcome = "converted"
	}
	documentConversions.WithLabelValues(converter, outcome).Inc()
}

func ObserveExportJob(status string) {
	exportJobs.WithLabelValues(status).Inc()
}

// Middleware times every request, labelled by the matched chi route pattern
// so path parameters do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
