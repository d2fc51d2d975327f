package schema

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const (
	RunQueued     = "queued"
	RunInProgress = "in-progress"
	RunFailed     = "failed"
	RunCompleted  = "complete"
)

type Run struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	CreatedAt       time.Time
	StatusUpdatedAt time.Time
	Status          string `gorm:"size:20;not null"`

	// Config is the resolved RunConfig snapshot (json) so that a run is
	// reproducible from the record alone.
	Config []byte

	// Stage and ExitCode describe the failing stage for failed runs.
	Stage    string `gorm:"size:10"`
	ExitCode sql.NullInt32

	Stages []RunStage `gorm:"foreignKey:RunId;constraint:OnDelete:CASCADE"`
}

type RunStage struct {
	RunId uuid.UUID `gorm:"type:uuid;primaryKey"`
	Stage string    `gorm:"size:10;primaryKey"`

	StartedAt  time.Time
	FinishedAt sql.NullTime
	ExitCode   sql.NullInt32
}
