package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"tame/tame/api"
	"tame/tame/monitoring"
	"tame/tame/runcfg"
	"tame/tame/runs"
)

type RunService struct {
	manager *runs.RunManager
}

func NewRunService(manager *runs.RunManager) RunService {
	return RunService{manager: manager}
}

func (s *RunService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/list", WrapRestHandler(s.List))
	r.Post("/create", WrapRestHandler(s.CreateRun))
	r.Get("/{run_id}", WrapRestHandler(s.GetRun))

	return r
}

func (s *RunService) List(r *http.Request) (any, error) {
	list, err := s.manager.ListRuns()
	if err != nil {
		return nil, CodedError(err, http.StatusInternalServerError)
	}

	return list, nil
}

func (s *RunService) CreateRun(r *http.Request) (any, error) {
	params, err := ParseRequestBody[api.CreateRunRequest](r)
	if err != nil {
		return nil, CodedError(err, http.StatusBadRequest)
	}

	// Resolution happens here so that a run with missing required paths or
	// malformed numbers is rejected before it ever reaches the queue.
	cfg, err := runcfg.Resolve(params.Overrides)
	if err != nil {
		monitoring.RunsRejected.Inc()

		var cfgErr *runcfg.ConfigError
		if errors.As(err, &cfgErr) {
			return nil, CodedError(err, http.StatusUnprocessableEntity)
		}
		return nil, CodedError(err, http.StatusBadRequest)
	}

	id, err := s.manager.CreateRun(cfg)
	if err != nil {
		return nil, CodedError(err, http.StatusInternalServerError)
	}

	monitoring.RunsCreated.Inc()

	return api.CreateRunResponse{Id: id}, nil
}

func (s *RunService) GetRun(r *http.Request) (any, error) {
	param := chi.URLParam(r, "run_id")
	id, err := uuid.Parse(param)
	if err != nil {
		return nil, CodedError(fmt.Errorf("invalid uuid '%v' provided: %w", param, err), http.StatusBadRequest)
	}

	run, err := s.manager.GetRun(id)
	if err != nil {
		if errors.Is(err, runs.ErrRunNotFound) {
			return nil, CodedError(err, http.StatusNotFound)
		}
		return nil, CodedError(err, http.StatusInternalServerError)
	}

	return run, nil
}
