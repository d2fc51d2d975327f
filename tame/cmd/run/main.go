// The run command is the one-shot orchestrator: it resolves a run config from
// the environment, runs training then evaluation, and exits with the first
// non-zero status from either stage.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"

	"tame/tame/cmd"
	"tame/tame/launcher"
	"tame/tame/runcfg"
)

type Config struct {
	Interpreter string `env:"INTERPRETER" envDefault:"python3"`
	TrainScript string `env:"TRAIN_SCRIPT" envDefault:"train_script.py"`
	EvalScript  string `env:"EVAL_SCRIPT" envDefault:"eval_script.py"`
	ScriptDir   string `env:"SCRIPT_DIR"`

	StageTimeout time.Duration `env:"STAGE_TIMEOUT" envDefault:"0"`
}

func main() {
	cmd.LoadEnvFile()

	var config Config
	if err := env.Parse(&config); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	runConfig, err := runcfg.FromEnv()
	if err != nil {
		var cfgErr *runcfg.ConfigError
		if errors.As(err, &cfgErr) {
			log.Fatalf("invalid run config: %v", cfgErr)
		}
		log.Fatalf("error resolving run config: %v", err)
	}

	l := launcher.NewLauncher(launcher.Options{
		Interpreter:  config.Interpreter,
		TrainScript:  config.TrainScript,
		EvalScript:   config.EvalScript,
		WorkDir:      config.ScriptDir,
		StageTimeout: config.StageTimeout,
	})

	err = launcher.RunSequence(context.Background(), l, runConfig)
	if err != nil {
		log.Printf("run failed: %v", err)
	}

	os.Exit(launcher.ExitCode(err))
}
