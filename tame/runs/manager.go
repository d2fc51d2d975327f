// Package runs tracks train/eval runs in a database backed queue. The backend
// enqueues runs, workers claim them transactionally and record per-stage
// outcomes.
package runs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tame/tame/api"
	"tame/tame/runcfg"
	"tame/tame/schema"
)

var (
	ErrRunAccessFailed   = errors.New("run access failed")
	ErrRunCreationFailed = errors.New("run creation failed")
	ErrRunNotFound       = errors.New("run not found")
)

type RunManager struct {
	db *gorm.DB
}

func NewManager(db *gorm.DB) *RunManager {
	return &RunManager{db: db}
}

// RunTask is a claimed run handed to a worker.
type RunTask struct {
	Id       uuid.UUID
	QueuedAt time.Time
	Config   runcfg.RunConfig
}

func (m *RunManager) CreateRun(cfg runcfg.RunConfig) (uuid.UUID, error) {
	config, err := json.Marshal(cfg)
	if err != nil {
		slog.Error("error serializing run config", "error", err)
		return uuid.Nil, ErrRunCreationFailed
	}

	run := schema.Run{
		Id:              uuid.New(),
		CreatedAt:       time.Now().UTC(),
		StatusUpdatedAt: time.Now().UTC(),
		Status:          schema.RunQueued,
		Config:          config,
	}

	if err := m.db.Create(&run).Error; err != nil {
		slog.Error("error creating new run", "error", err)
		return uuid.Nil, ErrRunCreationFailed
	}

	return run.Id, nil
}

func (m *RunManager) ListRuns() ([]api.Run, error) {
	var records []schema.Run

	if err := m.db.Order("created_at ASC").Find(&records).Error; err != nil {
		slog.Error("error finding list of runs", "error", err)
		return nil, ErrRunAccessFailed
	}

	results := make([]api.Run, 0, len(records))
	for _, record := range records {
		res, err := convertRun(record)
		if err != nil {
			return nil, ErrRunAccessFailed
		}
		results = append(results, res)
	}

	return results, nil
}

func (m *RunManager) GetRun(id uuid.UUID) (api.Run, error) {
	record, err := getRun(m.db, id)
	if err != nil {
		return api.Run{}, err
	}

	return convertRun(record)
}

// GetNextRun claims the oldest queued run, moving it to in-progress. It
// returns nil when the queue is empty.
func (m *RunManager) GetNextRun() (*RunTask, error) {
	found := false
	var run schema.Run

	err := m.db.Transaction(func(txn *gorm.DB) error {
		result := txn.Limit(1).Order("created_at ASC").Find(&run, "status = ?", schema.RunQueued)
		if result.Error != nil {
			slog.Error("error getting next run from queue", "error", result.Error)
			return ErrRunAccessFailed
		}

		if result.RowsAffected != 1 {
			return nil
		}

		updates := map[string]any{"status": schema.RunInProgress, "status_updated_at": time.Now().UTC()}
		if err := txn.Model(&run).Updates(updates).Error; err != nil {
			slog.Error("error updating run status to in progress", "error", err)
			return ErrRunAccessFailed
		}

		found = true
		return nil
	})

	if err != nil {
		return nil, err
	}

	if !found {
		return nil, nil
	}

	var cfg runcfg.RunConfig
	if err := json.Unmarshal(run.Config, &cfg); err != nil {
		slog.Error("error parsing stored run config", "run_id", run.Id, "error", err)
		return nil, ErrRunAccessFailed
	}

	return &RunTask{Id: run.Id, QueuedAt: run.CreatedAt, Config: cfg}, nil
}

// StartStage records that a worker began the given stage of a run.
func (m *RunManager) StartStage(id uuid.UUID, stage string) error {
	record := schema.RunStage{
		RunId:     id,
		Stage:     stage,
		StartedAt: time.Now().UTC(),
	}

	if err := m.db.Create(&record).Error; err != nil {
		slog.Error("error recording stage start", "run_id", id, "stage", stage, "error", err)
		return ErrRunAccessFailed
	}
	return nil
}

// FinishStage records the exit code of a completed stage.
func (m *RunManager) FinishStage(id uuid.UUID, stage string, exitCode int) error {
	updates := map[string]any{
		"finished_at": sql.NullTime{Time: time.Now().UTC(), Valid: true},
		"exit_code":   sql.NullInt32{Int32: int32(exitCode), Valid: true},
	}

	result := m.db.Model(&schema.RunStage{}).
		Where("run_id = ? AND stage = ?", id, stage).
		Updates(updates)
	if result.Error != nil {
		slog.Error("error recording stage finish", "run_id", id, "stage", stage, "error", result.Error)
		return ErrRunAccessFailed
	}
	if result.RowsAffected != 1 {
		return ErrRunNotFound
	}
	return nil
}

func (m *RunManager) CompleteRun(id uuid.UUID) error {
	return m.setTerminalStatus(id, schema.RunCompleted, "", 0)
}

func (m *RunManager) FailRun(id uuid.UUID, stage string, exitCode int) error {
	return m.setTerminalStatus(id, schema.RunFailed, stage, exitCode)
}

func (m *RunManager) setTerminalStatus(id uuid.UUID, status, stage string, exitCode int) error {
	return m.db.Transaction(func(txn *gorm.DB) error {
		run, err := getRun(txn, id)
		if err != nil {
			return err
		}

		run.Status = status
		run.StatusUpdatedAt = time.Now().UTC()
		run.Stage = stage
		if status == schema.RunFailed {
			run.ExitCode = sql.NullInt32{Int32: int32(exitCode), Valid: true}
		} else {
			run.ExitCode = sql.NullInt32{Int32: 0, Valid: true}
		}

		if err := txn.Save(&run).Error; err != nil {
			slog.Error("error updating run status", "run_id", id, "status", status, "error", err)
			return ErrRunAccessFailed
		}
		return nil
	})
}

func getRun(txn *gorm.DB, id uuid.UUID) (schema.Run, error) {
	var run schema.Run

	if err := txn.First(&run, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return schema.Run{}, ErrRunNotFound
		}
		slog.Error("error getting run", "run_id", id, "error", err)
		return schema.Run{}, ErrRunAccessFailed
	}

	return run, nil
}

func convertRun(run schema.Run) (api.Run, error) {
	result := api.Run{
		Id:              run.Id,
		CreatedAt:       run.CreatedAt,
		StatusUpdatedAt: run.StatusUpdatedAt,
		Status:          run.Status,
		Stage:           run.Stage,
	}

	if run.ExitCode.Valid {
		code := int(run.ExitCode.Int32)
		result.ExitCode = &code
	}

	if err := json.Unmarshal(run.Config, &result.Config); err != nil {
		slog.Error("error parsing run config", "run_id", run.Id, "error", err)
		return api.Run{}, ErrRunAccessFailed
	}

	return result, nil
}
