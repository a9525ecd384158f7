package db

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"hospital-queue-backend/config"
	"hospital-queue-backend/internal/model"
)

// Init initializes the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	log.Println("Running database migrations...")
	if err := Migrate(db); err != nil {
		return nil, err
	}

	if err := applyConstraintDDL(db); err != nil {
		return nil, err
	}

	log.Println("Database initialization complete.")
	return db, nil
}

// Migrate runs AutoMigrate for every model. Split out so the sqlite-backed
// tests can reuse it without the Postgres-only DDL.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Department{},
		&model.Doctor{},
		&model.Patient{},
		&model.Token{},
		&model.Visit{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}

// applyConstraintDDL adds the constraints AutoMigrate cannot express:
// at most one WAITING/CALLED token per patient per business day and at most
// one CALLED token per doctor, both enforced with partial unique indexes.
func applyConstraintDDL(db *gorm.DB) error {
	ddls := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_tokens_active_per_patient_day " +
			"ON tokens (patient_id, business_day) " +
			"WHERE status IN ('WAITING', 'CALLED');",

		"CREATE UNIQUE INDEX IF NOT EXISTS idx_tokens_called_per_doctor " +
			"ON tokens (assigned_doctor_id) " +
			"WHERE status = 'CALLED';",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
