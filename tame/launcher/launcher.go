// Package launcher dispatches the external training and evaluation programs
// for a resolved run config. The orchestrator blocks on each stage and
// surfaces exit codes verbatim; it never retries or interprets script output.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"tame/tame/monitoring"
	"tame/tame/runcfg"
)

const (
	TrainStage = "train"
	EvalStage  = "eval"
)

// ExternalProcessError reports a trainer or evaluator that did not exit
// cleanly. ExitCode is -1 when the process could not be started or was killed
// before reporting a status.
type ExternalProcessError struct {
	Stage    string
	ExitCode int
	Err      error
}

func (e *ExternalProcessError) Error() string {
	return fmt.Sprintf("%s stage failed with exit code %d: %v", e.Stage, e.ExitCode, e.Err)
}

func (e *ExternalProcessError) Unwrap() error {
	return e.Err
}

// StageRunner runs the two external stages of a run. Launcher is the real
// implementation; tests substitute recording stubs.
type StageRunner interface {
	RunTraining(ctx context.Context, cfg runcfg.RunConfig) error
	RunEvaluation(ctx context.Context, cfg runcfg.RunConfig) error
}

type Options struct {
	// Interpreter invokes the scripts, default "python3".
	Interpreter string
	TrainScript string
	EvalScript  string

	// WorkDir is the working directory for both scripts. Empty means inherit.
	WorkDir string

	// StageTimeout bounds each stage individually. Zero disables the bound;
	// training jobs routinely run for days.
	StageTimeout time.Duration

	Stdout io.Writer
	Stderr io.Writer
}

type Launcher struct {
	opts Options
}

func NewLauncher(opts Options) *Launcher {
	if opts.Interpreter == "" {
		opts.Interpreter = "python3"
	}
	if opts.TrainScript == "" {
		opts.TrainScript = "train_script.py"
	}
	if opts.EvalScript == "" {
		opts.EvalScript = "eval_script.py"
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	return &Launcher{opts: opts}
}

func (l *Launcher) RunTraining(ctx context.Context, cfg runcfg.RunConfig) error {
	return l.runStage(ctx, TrainStage, l.opts.TrainScript, cfg.TrainArgs(), cfg.Devices)
}

func (l *Launcher) RunEvaluation(ctx context.Context, cfg runcfg.RunConfig) error {
	return l.runStage(ctx, EvalStage, l.opts.EvalScript, cfg.EvalArgs(), cfg.Devices)
}

func (l *Launcher) runStage(ctx context.Context, stage, script string, args []string, devices string) error {
	if l.opts.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.StageTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, l.opts.Interpreter, append([]string{script}, args...)...)
	cmd.Dir = l.opts.WorkDir
	cmd.Env = append(os.Environ(), "CUDA_VISIBLE_DEVICES="+devices)
	cmd.Stdout = l.opts.Stdout
	cmd.Stderr = l.opts.Stderr

	slog.Info("starting stage", "stage", stage, "script", script, "devices", devices)

	start := time.Now()
	err := cmd.Run()
	monitoring.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())

	if err != nil {
		monitoring.StageFailures.WithLabelValues(stage).Inc()

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			slog.Error("stage exited with failure", "stage", stage, "exit_code", exitErr.ExitCode())
			return &ExternalProcessError{Stage: stage, ExitCode: exitErr.ExitCode(), Err: err}
		}

		slog.Error("stage could not be run", "stage", stage, "error", err)
		return &ExternalProcessError{Stage: stage, ExitCode: -1, Err: err}
	}

	slog.Info("stage complete", "stage", stage, "duration", time.Since(start))
	return nil
}

// RunSequence runs training then, only if training succeeded, evaluation. The
// first failure short-circuits the sequence and is returned verbatim.
func RunSequence(ctx context.Context, runner StageRunner, cfg runcfg.RunConfig) error {
	if err := runner.RunTraining(ctx, cfg); err != nil {
		return err
	}
	return runner.RunEvaluation(ctx, cfg)
}

// ExitCode maps a sequence result to the orchestrator's own exit status: the
// external status is propagated instead of being masked with a success exit.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var procErr *ExternalProcessError
	if errors.As(err, &procErr) && procErr.ExitCode > 0 {
		return procErr.ExitCode
	}
	return 1
}
