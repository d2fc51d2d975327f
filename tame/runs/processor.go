package runs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tame/tame/artifacts"
	"tame/tame/hooks"
	"tame/tame/launcher"
	"tame/tame/monitoring"
	"tame/tame/runcfg"
)

// RunProcessor claims queued runs and drives them through the external
// train-then-eval sequence, recording per-stage outcomes.
type RunProcessor struct {
	manager  *RunManager
	runner   launcher.StageRunner
	store    *artifacts.Store
	remote   *artifacts.RemoteStore
	notifier *hooks.RunNotifier
}

type RunProcessorOptions struct {
	Runner launcher.StageRunner

	// Store and Remote are optional: without them finished checkpoints are
	// left on local disk. Notifier is optional as well.
	Store    *artifacts.Store
	Remote   *artifacts.RemoteStore
	Notifier *hooks.RunNotifier
}

func NewRunProcessor(manager *RunManager, opts RunProcessorOptions) *RunProcessor {
	return &RunProcessor{
		manager:  manager,
		runner:   opts.Runner,
		store:    opts.Store,
		remote:   opts.Remote,
		notifier: opts.Notifier,
	}
}

// ProcessNextRun claims and executes one queued run, returning false when the
// queue was empty.
func (p *RunProcessor) ProcessNextRun(ctx context.Context) bool {
	task, err := p.manager.GetNextRun()
	if err != nil || task == nil {
		return false
	}

	monitoring.QueueWait.Observe(time.Since(task.QueuedAt).Seconds())
	slog.Info("processing run", "run_id", task.Id, "model", task.Config.Model, "version", task.Config.Version)

	stages := &recordedStages{manager: p.manager, runId: task.Id, runner: p.runner}
	err = launcher.RunSequence(ctx, stages, task.Config)

	monitoring.RunsProcessed.Observe(1)

	if err != nil {
		stage, exitCode := launcher.TrainStage, 1
		var procErr *launcher.ExternalProcessError
		if errors.As(err, &procErr) {
			stage, exitCode = procErr.Stage, procErr.ExitCode
		}

		slog.Error("run failed", "run_id", task.Id, "stage", stage, "exit_code", exitCode)
		if err := p.manager.FailRun(task.Id, stage, exitCode); err != nil {
			slog.Error("error recording run failure", "run_id", task.Id, "error", err)
		}
	} else {
		slog.Info("run complete", "run_id", task.Id)
		if err := p.manager.CompleteRun(task.Id); err != nil {
			slog.Error("error recording run completion", "run_id", task.Id, "error", err)
		}
		p.uploadLatestCheckpoint(task.Config)
	}

	p.notifyFinished(task.Id)

	return true
}

func (p *RunProcessor) uploadLatestCheckpoint(cfg runcfg.RunConfig) {
	if p.store == nil || p.remote == nil {
		return
	}

	latest, err := p.store.Latest(cfg.Model, cfg.Version)
	if err != nil {
		slog.Error("no checkpoint found after successful run", "model", cfg.Model, "version", cfg.Version, "error", err)
		return
	}

	if err := p.remote.Upload(latest); err != nil {
		// Upload failures don't fail the run, the checkpoint is still on disk.
		slog.Error("checkpoint upload failed", "path", latest.Path, "error", err)
	}
}

func (p *RunProcessor) notifyFinished(runId uuid.UUID) {
	run, err := p.manager.GetRun(runId)
	if err != nil {
		slog.Error("error loading run for webhook", "run_id", runId, "error", err)
		return
	}

	if err := p.notifier.NotifyRunFinished(run); err != nil {
		slog.Error("error delivering run webhook", "run_id", runId, "error", err)
	}
}

// recordedStages wraps the real stage runner so that every stage start and
// exit code ends up in the run's stage records.
type recordedStages struct {
	manager *RunManager
	runId   uuid.UUID
	runner  launcher.StageRunner
}

func (s *recordedStages) RunTraining(ctx context.Context, cfg runcfg.RunConfig) error {
	return s.recorded(launcher.TrainStage, func() error { return s.runner.RunTraining(ctx, cfg) })
}

func (s *recordedStages) RunEvaluation(ctx context.Context, cfg runcfg.RunConfig) error {
	return s.recorded(launcher.EvalStage, func() error { return s.runner.RunEvaluation(ctx, cfg) })
}

func (s *recordedStages) recorded(stage string, run func() error) error {
	if err := s.manager.StartStage(s.runId, stage); err != nil {
		slog.Error("error recording stage start", "run_id", s.runId, "stage", stage, "error", err)
	}

	err := run()

	exitCode := 0
	if err != nil {
		exitCode = 1
		var procErr *launcher.ExternalProcessError
		if errors.As(err, &procErr) {
			exitCode = procErr.ExitCode
		}
	}

	if recordErr := s.manager.FinishStage(s.runId, stage, exitCode); recordErr != nil {
		slog.Error("error recording stage finish", "run_id", s.runId, "stage", stage, "error", recordErr)
	}

	return err
}
