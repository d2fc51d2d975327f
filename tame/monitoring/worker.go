package monitoring

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RunsProcessed = prometheus.NewSummary(prometheus.SummaryOpts{
		Name: "runs_processed",
		Help: "Total runs processed",
	})

	StageDuration = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name: "stage_duration_seconds",
		Help: "Wall clock duration of external train/eval stages",
	}, []string{"stage"})

	StageFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stage_failures",
		Help: "Total failed external train/eval stages",
	}, []string{"stage"})

	QueueWait = prometheus.NewSummary(prometheus.SummaryOpts{
		Name: "run_queue_wait_seconds",
		Help: "Time runs spend queued before a worker claims them",
	})

	CheckpointUploads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkpoint_uploads",
		Help: "Total checkpoint uploads to the remote artifact store",
	}, []string{"status"})

	WebhookErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webhook_errors",
		Help: "Total run notification webhook failures",
	})
)

func ExposeWorkerMetrics(port int) {
	registry := prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		RunsProcessed,
		StageDuration,
		StageFailures,
		QueueWait,
		CheckpointUploads,
		WebhookErrors,
	)

	slog.Info("exposing worker metrics", "port", port)

	go func() {
		handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), handler); err != nil {
			log.Fatalf("error starting metrics server: %v", err)
		}
	}()
}
