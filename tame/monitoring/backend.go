package monitoring

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestSummary = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name: "http_requests",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	RunsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "runs_created",
		Help: "Total number of runs submitted",
	})

	RunsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "runs_rejected",
		Help: "Total number of run submissions rejected during config resolution",
	})
)

func HandlerMetrics(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		// This is so that GET /api/v1/run/abc is recorded as GET /api/v1/run/{run_id}
		rctx := chi.RouteContext(r.Context())
		routePattern := strings.Replace(strings.Join(rctx.RoutePatterns, ""), "/*/", "/", -1)

		requestSummary.WithLabelValues(r.Method, routePattern, strconv.Itoa(ww.Status())).Observe(float64(time.Since(start).Milliseconds()))
	}
	return http.HandlerFunc(fn)
}

func ExposeBackendMetrics(port int) {
	registry := prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		requestSummary,
		RunsCreated,
		RunsRejected,
	)

	slog.Info("exposing backend metrics", "port", port)

	go func() {
		handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), handler); err != nil {
			log.Fatalf("error starting metrics server: %v", err)
		}
	}()
}
