package services

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tame/tame/artifacts"
)

type CheckpointService struct {
	store *artifacts.Store
}

func NewCheckpointService(store *artifacts.Store) CheckpointService {
	return CheckpointService{store: store}
}

func (s *CheckpointService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/{model}/{version}/list", WrapRestHandler(s.List))
	r.Get("/{model}/{version}/latest", WrapRestHandler(s.Latest))

	return r
}

func (s *CheckpointService) List(r *http.Request) (any, error) {
	model, version := chi.URLParam(r, "model"), chi.URLParam(r, "version")

	checkpoints, err := s.store.List(model, version)
	if err != nil {
		return nil, CodedError(err, http.StatusInternalServerError)
	}

	return checkpoints, nil
}

func (s *CheckpointService) Latest(r *http.Request) (any, error) {
	model, version := chi.URLParam(r, "model"), chi.URLParam(r, "version")

	latest, err := s.store.Latest(model, version)
	if err != nil {
		if errors.Is(err, artifacts.ErrNoCheckpoints) {
			return nil, CodedError(err, http.StatusNotFound)
		}
		return nil, CodedError(err, http.StatusInternalServerError)
	}

	return latest, nil
}
