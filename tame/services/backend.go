package services

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tame/tame/artifacts"
	"tame/tame/runs"
)

type BackendService struct {
	runs        RunService
	checkpoints CheckpointService
}

func NewBackendService(manager *runs.RunManager, store *artifacts.Store) *BackendService {
	return &BackendService{
		runs:        NewRunService(manager),
		checkpoints: NewCheckpointService(store),
	}
}

func (s *BackendService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Mount("/run", s.runs.Routes())
	r.Mount("/checkpoint", s.checkpoints.Routes())

	return r
}
