package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"PosFiscal/app/config"
	"PosFiscal/app/logging"
	"PosFiscal/app/models"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open establishes the database connection described by cfg and returns the
// handle. The handle is passed explicitly to every service; there is no
// package-level instance.
func Open(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logging.NewGormLogger(log),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		TranslateError: true,
	}

	var (
		db  *gorm.DB
		err error
	)

	switch cfg.Type {
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, cfg.SSLMode)
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	default:
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
				return nil, fmt.Errorf("create database directory: %w", mkErr)
			}
		}
		db, err = gorm.Open(sqlite.Open(cfg.Path), gormConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	return db, nil
}

// Migrate runs schema migrations for all persisted models.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Product{},
		&models.StockMovement{},
		&models.Sale{},
		&models.SaleLine{},
		&models.Payment{},
		&models.CreditNote{},
		&models.CreditNoteItem{},
		&models.SaleFiscalDocument{},
		&models.CreditNoteFiscalDocument{},
		&models.BusinessProfile{},
	)
}
