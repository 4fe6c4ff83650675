package db

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"tutorcore/internal/config"
	"tutorcore/internal/store"
)

var DB *gorm.DB

// Init opens the configured driver and migrates every store model. The
// driver switch mirrors the teacher's own postgres-only Init, generalized
// to the sqlite/postgres pair this offline single-learner deployment
// actually needs (no mysql: nothing in this domain calls for a third
// relational backend).
func Init(cfg *config.Config) error {
	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.Database.DSN)
	case "sqlite", "":
		dsn := cfg.Database.DSN
		if dsn == "" {
			dsn = "tutor.db"
		}
		dialector = sqlite.Open(dsn)
	default:
		return fmt.Errorf("db: unsupported driver %q", cfg.Database.Driver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return err
	}

	if err := gdb.AutoMigrate(store.AllModels()...); err != nil {
		return err
	}

	DB = gdb
	log.Printf("[DB] connected (driver=%s) and migrated", cfg.Database.Driver)
	return nil
}
