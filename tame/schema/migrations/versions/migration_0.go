package versions

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func Migration0(db *gorm.DB) error {
	type RunStage struct {
		RunId uuid.UUID `gorm:"type:uuid;primaryKey"`
		Stage string    `gorm:"size:10;primaryKey"`

		StartedAt  time.Time
		FinishedAt sql.NullTime
		ExitCode   sql.NullInt32
	}

	type Run struct {
		Id uuid.UUID `gorm:"type:uuid;primaryKey"`

		CreatedAt       time.Time
		StatusUpdatedAt time.Time
		Status          string `gorm:"size:20;not null"`

		Config []byte

		Stage    string `gorm:"size:10"`
		ExitCode sql.NullInt32

		Stages []RunStage `gorm:"foreignKey:RunId;constraint:OnDelete:CASCADE"`
	}

	// This uses the structs defined here instead of in schema.go because they need
	// to be consistent with the original schema definition and not reflect any schema
	// changes.
	if err := db.AutoMigrate(&Run{}, &RunStage{}); err != nil {
		return fmt.Errorf("initial migration failed: %w", err)
	}
	return nil
}
