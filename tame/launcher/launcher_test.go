package launcher_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tame/tame/launcher"
	"tame/tame/runcfg"
)

func testConfig(t *testing.T) runcfg.RunConfig {
	cfg, err := runcfg.Resolve(map[string]string{
		"IMGDIR":  "/data/train",
		"VALDIR":  "/data/val",
		"RESTORE": "/snapshots/resnet50_TAME",
	})
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

type recordingRunner struct {
	calls    []string
	trainErr error
	evalErr  error
}

func (r *recordingRunner) RunTraining(ctx context.Context, cfg runcfg.RunConfig) error {
	r.calls = append(r.calls, launcher.TrainStage)
	return r.trainErr
}

func (r *recordingRunner) RunEvaluation(ctx context.Context, cfg runcfg.RunConfig) error {
	r.calls = append(r.calls, launcher.EvalStage)
	return r.evalErr
}

func TestRunSequenceTrainThenEval(t *testing.T) {
	runner := &recordingRunner{}

	if err := launcher.RunSequence(context.Background(), runner, testConfig(t)); err != nil {
		t.Fatal(err)
	}

	if len(runner.calls) != 2 || runner.calls[0] != launcher.TrainStage || runner.calls[1] != launcher.EvalStage {
		t.Fatalf("incorrect stage order: %v", runner.calls)
	}
}

func TestRunSequenceSkipsEvalWhenTrainingFails(t *testing.T) {
	trainErr := &launcher.ExternalProcessError{Stage: launcher.TrainStage, ExitCode: 3}
	runner := &recordingRunner{trainErr: trainErr}

	err := launcher.RunSequence(context.Background(), runner, testConfig(t))
	if !errors.Is(err, trainErr) {
		t.Fatalf("expected training error to surface verbatim, got %v", err)
	}

	if len(runner.calls) != 1 || runner.calls[0] != launcher.TrainStage {
		t.Fatalf("evaluator should not be invoked after training failure: %v", runner.calls)
	}
}

func TestRunSequenceReturnsEvalStatus(t *testing.T) {
	evalErr := &launcher.ExternalProcessError{Stage: launcher.EvalStage, ExitCode: 2}
	runner := &recordingRunner{evalErr: evalErr}

	err := launcher.RunSequence(context.Background(), runner, testConfig(t))
	if !errors.Is(err, evalErr) {
		t.Fatalf("expected evaluation error to surface verbatim, got %v", err)
	}

	if len(runner.calls) != 2 {
		t.Fatalf("both stages should have run: %v", runner.calls)
	}
}

// writeScript creates a fake external script that records its argv and env to
// outFile and exits with the given code.
func writeScript(t *testing.T, dir, name, outFile string, exitCode int) string {
	script := filepath.Join(dir, name)
	content := fmt.Sprintf("#!/bin/sh\necho \"$@\" > %s\necho \"$CUDA_VISIBLE_DEVICES\" >> %s\nexit %d\n",
		outFile, outFile, exitCode)

	if err := os.WriteFile(script, []byte(content), 0755); err != nil {
		t.Fatal(err)
	}
	return script
}

func TestLauncherForwardsArgsAndDevices(t *testing.T) {
	dir := t.TempDir()
	trainOut := filepath.Join(dir, "train.out")
	evalOut := filepath.Join(dir, "eval.out")

	l := launcher.NewLauncher(launcher.Options{
		Interpreter: "/bin/sh",
		TrainScript: writeScript(t, dir, "train.sh", trainOut, 0),
		EvalScript:  writeScript(t, dir, "eval.sh", evalOut, 0),
	})

	if err := launcher.RunSequence(context.Background(), l, testConfig(t)); err != nil {
		t.Fatal(err)
	}

	trainLog, err := os.ReadFile(trainOut)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(trainLog)), "\n")
	if len(lines) != 2 {
		t.Fatalf("unexpected train script output: %q", trainLog)
	}
	if !strings.Contains(lines[0], "--img-dir /data/train") ||
		!strings.Contains(lines[0], "--layers layer2 layer3 layer4") ||
		!strings.Contains(lines[0], "--epoch 8") {
		t.Fatalf("incorrect train args: %q", lines[0])
	}
	if lines[1] != "0" {
		t.Fatalf("incorrect CUDA_VISIBLE_DEVICES: %q", lines[1])
	}

	evalLog, err := os.ReadFile(evalOut)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(evalLog), "--start-epoch 1") ||
		!strings.Contains(string(evalLog), "--end-epoch 32") {
		t.Fatalf("incorrect eval args: %q", evalLog)
	}
}

func TestLauncherPropagatesExitCode(t *testing.T) {
	dir := t.TempDir()
	trainOut := filepath.Join(dir, "train.out")
	evalOut := filepath.Join(dir, "eval.out")

	l := launcher.NewLauncher(launcher.Options{
		Interpreter: "/bin/sh",
		TrainScript: writeScript(t, dir, "train.sh", trainOut, 3),
		EvalScript:  writeScript(t, dir, "eval.sh", evalOut, 0),
	})

	err := launcher.RunSequence(context.Background(), l, testConfig(t))

	var procErr *launcher.ExternalProcessError
	if !errors.As(err, &procErr) {
		t.Fatalf("expected ExternalProcessError, got %v", err)
	}
	if procErr.Stage != launcher.TrainStage || procErr.ExitCode != 3 {
		t.Fatalf("incorrect error details: stage=%s code=%d", procErr.Stage, procErr.ExitCode)
	}

	if _, err := os.Stat(evalOut); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("evaluator was invoked after training failure")
	}
}

func TestExitCode(t *testing.T) {
	if launcher.ExitCode(nil) != 0 {
		t.Fatal("success should map to exit 0")
	}
	if launcher.ExitCode(&launcher.ExternalProcessError{Stage: launcher.EvalStage, ExitCode: 4}) != 4 {
		t.Fatal("external exit codes should propagate")
	}
	if launcher.ExitCode(errors.New("other")) != 1 {
		t.Fatal("other errors should map to exit 1")
	}
	if launcher.ExitCode(&launcher.ExternalProcessError{Stage: launcher.TrainStage, ExitCode: -1}) != 1 {
		t.Fatal("signalled processes should map to exit 1")
	}
}
