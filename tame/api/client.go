package api

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// Client is a small Go client for the orchestrator backend, used by tooling
// that submits runs and polls them to completion.
type Client struct {
	backend *resty.Client
}

func NewClient(backendUrl string) *Client {
	return &Client{
		backend: resty.New().SetBaseURL(backendUrl),
	}
}

func (client *Client) SubmitRun(overrides map[string]string) (uuid.UUID, error) {
	res, err := client.backend.R().
		SetBody(CreateRunRequest{Overrides: overrides}).
		SetResult(&CreateRunResponse{}).
		Post("/api/v1/run/create")
	if err != nil {
		return uuid.Nil, fmt.Errorf("create run request failed: %w", err)
	}

	if !res.IsSuccess() {
		return uuid.Nil, fmt.Errorf("create run returned status=%d, error=%v", res.StatusCode(), res.String())
	}

	return res.Result().(*CreateRunResponse).Id, nil
}

func (client *Client) GetRun(runId uuid.UUID) (*Run, error) {
	res, err := client.backend.R().
		SetResult(&Run{}).
		SetPathParam("run_id", runId.String()).
		Get("/api/v1/run/{run_id}")
	if err != nil {
		return nil, fmt.Errorf("get run request failed: %w", err)
	}

	if !res.IsSuccess() {
		return nil, fmt.Errorf("get run returned status=%d, error=%v", res.StatusCode(), res.String())
	}

	return res.Result().(*Run), nil
}

func (client *Client) ListRuns() ([]Run, error) {
	res, err := client.backend.R().
		SetResult(&[]Run{}).
		Get("/api/v1/run/list")
	if err != nil {
		return nil, fmt.Errorf("list runs request failed: %w", err)
	}

	if !res.IsSuccess() {
		return nil, fmt.Errorf("list runs returned status=%d, error=%v", res.StatusCode(), res.String())
	}

	return *res.Result().(*[]Run), nil
}

// WaitForRun polls until the run reaches a terminal status or the deadline
// passes.
func (client *Client) WaitForRun(runId uuid.UUID, interval, deadline time.Duration) (*Run, error) {
	end := time.Now().Add(deadline)

	for {
		run, err := client.GetRun(runId)
		if err != nil {
			return nil, err
		}

		if run.Status == "failed" || run.Status == "complete" {
			return run, nil
		}

		if time.Now().After(end) {
			return nil, fmt.Errorf("run %v did not finish within %v, last status '%s'", runId, deadline, run.Status)
		}

		time.Sleep(interval)
	}
}
