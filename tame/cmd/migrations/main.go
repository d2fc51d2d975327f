package main

import (
	"flag"
	"log"

	"tame/tame/cmd"
	"tame/tame/schema/migrations"
)

func main() {
	dbUri := flag.String("db", "", "Database URI")
	flag.Parse()

	db := cmd.OpenDB(*dbUri)

	if err := migrations.GetMigrator(db).Migrate(); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	log.Println("migrations complete")
}
