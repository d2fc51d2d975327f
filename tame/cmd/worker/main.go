package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"

	"tame/tame/artifacts"
	"tame/tame/cmd"
	"tame/tame/hooks"
	"tame/tame/launcher"
	"tame/tame/monitoring"
	"tame/tame/runs"
)

type Config struct {
	PostgresUri string `env:"DB_URI,notEmpty,required"`
	Logfile     string `env:"LOGFILE,notEmpty" envDefault:"tame_worker.log"`

	WorkDir     string `env:"WORK_DIR,notEmpty" envDefault:"./work"`
	SnapshotDir string `env:"SNAPSHOT_DIR,notEmpty" envDefault:"./snapshots"`

	Interpreter string `env:"INTERPRETER" envDefault:"python3"`
	TrainScript string `env:"TRAIN_SCRIPT" envDefault:"train_script.py"`
	EvalScript  string `env:"EVAL_SCRIPT" envDefault:"eval_script.py"`
	ScriptDir   string `env:"SCRIPT_DIR"`

	StageTimeout time.Duration `env:"STAGE_TIMEOUT" envDefault:"0"`

	// CheckpointBucket enables mirroring finished checkpoints to S3.
	CheckpointBucket string `env:"CHECKPOINT_BUCKET"`

	WebhookUrl string `env:"WEBHOOK_URL"`

	MetricsPort int `env:"METRICS_PORT" envDefault:"9090"`
}

func main() {
	cmd.LoadEnvFile()

	var config Config
	if err := env.Parse(&config); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	logFile, err := os.OpenFile(config.Logfile, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer logFile.Close()

	cmd.InitLogging(logFile)

	if err := os.MkdirAll(config.WorkDir, 0777); err != nil {
		log.Fatalf("error creating work dir: %v", err)
	}

	index, err := artifacts.NewCheckpointIndex(filepath.Join(config.WorkDir, "checkpoints.index"))
	if err != nil {
		log.Fatalf("error opening checkpoint index: %v", err)
	}
	defer index.Close()

	store := artifacts.NewStore(config.SnapshotDir, index)

	var remote *artifacts.RemoteStore
	if config.CheckpointBucket != "" {
		remote = artifacts.NewRemoteStore(config.CheckpointBucket)
	}

	db := cmd.InitDb(config.PostgresUri)
	manager := runs.NewManager(db)

	processor := runs.NewRunProcessor(manager, runs.RunProcessorOptions{
		Runner: launcher.NewLauncher(launcher.Options{
			Interpreter:  config.Interpreter,
			TrainScript:  config.TrainScript,
			EvalScript:   config.EvalScript,
			WorkDir:      config.ScriptDir,
			StageTimeout: config.StageTimeout,
		}),
		Store:    store,
		Remote:   remote,
		Notifier: hooks.NewRunNotifier(config.WebhookUrl),
	})

	monitoring.ExposeWorkerMetrics(config.MetricsPort)

	for {
		if !processor.ProcessNextRun(context.Background()) {
			time.Sleep(10 * time.Second)
		}
	}
}
