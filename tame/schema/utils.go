package schema

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func SetupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("error opening database connection: %v", err)
	}

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err != nil {
			t.Fatalf("error getting sql.DB: %v", err)
		}
		if err := sqlDB.Close(); err != nil {
			t.Fatalf("error closing database connection: %v", err)
		}
	})

	if err := db.AutoMigrate(&Run{}, &RunStage{}); err != nil {
		t.Fatalf("error migrating tables: %v", err)
	}

	return db
}
