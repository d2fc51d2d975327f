package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"tame/tame/artifacts"
	"tame/tame/cmd"
	"tame/tame/monitoring"
	"tame/tame/runs"
	"tame/tame/services"
)

type Config struct {
	PostgresUri string `env:"DB_URI,notEmpty,required"`
	Logfile     string `env:"LOGFILE,notEmpty" envDefault:"tame_backend.log"`

	Port int `env:"PORT" envDefault:"8000"`

	WorkDir     string `env:"WORK_DIR,notEmpty" envDefault:"./work"`
	SnapshotDir string `env:"SNAPSHOT_DIR,notEmpty" envDefault:"./snapshots"`

	MetricsPort int `env:"METRICS_PORT" envDefault:"9091"`
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

	db := cmd.InitDb(config.PostgresUri)
	manager := runs.NewManager(db)

	backend := services.NewBackendService(manager, store)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
	r.Use(monitoring.HandlerMetrics)

	r.Mount("/api/v1", backend.Routes())

	monitoring.ExposeBackendMetrics(config.MetricsPort)

	log.Printf("backend listening on port %d", config.Port)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", config.Port), r); err != nil {
		log.Fatalf("error starting server: %v", err)
	}
}
