// Package hooks notifies external systems about finished runs.
package hooks

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"tame/tame/api"
	"tame/tame/monitoring"
)

// RunNotifier POSTs a RunFinishedEvent to a configured webhook whenever a run
// reaches a terminal status. A notifier with an empty URL is disabled.
type RunNotifier struct {
	client *resty.Client
	url    string
}

func NewRunNotifier(url string) *RunNotifier {
	return &RunNotifier{
		client: resty.New().
			SetRetryCount(2).
			SetTimeout(10 * time.Second).
			SetRetryWaitTime(2 * time.Second),
		url: url,
	}
}

func (n *RunNotifier) NotifyRunFinished(run api.Run) error {
	if n == nil || n.url == "" {
		return nil
	}

	res, err := n.client.R().
		SetBody(api.RunFinishedEvent{Run: run, FinishedAt: time.Now().UTC()}).
		Post(n.url)
	if err != nil {
		monitoring.WebhookErrors.Inc()
		slog.Error("run webhook failed", "run_id", run.Id, "error", err)
		return fmt.Errorf("run webhook failed: %w", err)
	}

	if !res.IsSuccess() {
		monitoring.WebhookErrors.Inc()
		slog.Error("run webhook returned error", "run_id", run.Id, "status", res.StatusCode())
		return fmt.Errorf("run webhook returned status=%d", res.StatusCode())
	}

	slog.Info("run webhook delivered", "run_id", run.Id, "status", run.Status)
	return nil
}
