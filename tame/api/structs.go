package api

import (
	"time"

	"github.com/google/uuid"

	"tame/tame/runcfg"
)

type Run struct {
	Id uuid.UUID

	CreatedAt       time.Time
	StatusUpdatedAt time.Time

	Status string

	// Stage and ExitCode identify the failing stage for failed runs; ExitCode
	// is nil while a run has not reached a terminal state.
	Stage    string
	ExitCode *int

	Config runcfg.RunConfig
}

type CreateRunRequest struct {
	// Overrides uses the same names as the environment surface: IMGDIR,
	// VALDIR, RESTORE, TRAIN, TEST, MODEL, VERSION, LAYERS, WD, MLR, EPOCHS,
	// EVAL_END_EPOCH, BSIZE, DEVICES.
	Overrides map[string]string
}

type CreateRunResponse struct {
	Id uuid.UUID
}

type Checkpoint struct {
	Model   string
	Version string
	Epoch   int
	Path    string
	Size    int64
	ModTime time.Time
}

type RunFinishedEvent struct {
	Run        Run
	FinishedAt time.Time
}
