package cmd

import (
	"flag"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"tame/tame/schema/migrations"
)

func InitDb(uri string) *gorm.DB {
	db := OpenDB(uri)
	migrations.RunMigrations(db)
	return db
}

func InitLogging(logFile *os.File) {
	log.SetFlags(log.Lshortfile | log.Ltime | log.Ldate)
	log.SetOutput(io.MultiWriter(logFile, os.Stderr))
	slog.Info("logging initialized", "log_file", logFile.Name())
}

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}
