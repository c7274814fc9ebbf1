// internal/database/connection.go
package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/substance-compliance/internal/config"
	"github.com/javajoker/substance-compliance/internal/models"
)

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel(cfg.LogLevel)),
	}

	// Connect through lib/pq so driver errors surface as *pq.Error
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:        cfg.DSN(),
		DriverName: "postgres",
	}), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.Info("Database connection established successfully")
	return db, nil
}

func logLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Error("Error getting underlying sql.DB")
		return
	}

	if err := sqlDB.Close(); err != nil {
		logrus.WithError(err).Error("Error closing database connection")
	} else {
		logrus.Info("Database connection closed successfully")
	}
}

// Models lists every persisted model in migration order.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Customer{},
		&models.Substance{},
		&models.LicenceType{},
		&models.Licence{},
		&models.LicenceSubstanceMapping{},
		&models.LicenceCorrection{},
		&models.LicenceDocument{},
		&models.Threshold{},
		&models.Transaction{},
		&models.TransactionLine{},
		&models.AuditLog{},
	}
}

func RunMigrations(db *gorm.DB) error {
	logrus.Info("Running database migrations...")

	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error; err != nil {
			return fmt.Errorf("failed to create UUID extension: %w", err)
		}
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		// Transaction history lookups for cumulative thresholds
		"CREATE INDEX IF NOT EXISTS idx_transactions_customer_date ON transactions(customer_id, transaction_date)",
		"CREATE INDEX IF NOT EXISTS idx_transactions_status_override ON transactions(validation_status, override_status)",
		"CREATE INDEX IF NOT EXISTS idx_transaction_lines_substance ON transaction_lines(substance_code, transaction_id)",

		// Licence resolution
		"CREATE INDEX IF NOT EXISTS idx_licences_holder_status ON licences(holder_type, holder_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_licences_expiry ON licences(expiry_date)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_licence_mapping_unique ON licence_substance_mappings(licence_id, substance_code) WHERE deleted_at IS NULL",

		// Thresholds
		"CREATE INDEX IF NOT EXISTS idx_thresholds_active_type ON thresholds(is_active, threshold_type)",

		// Audit
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_user_action ON audit_logs(user_id, action)",
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource_type, resource_id)",
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at DESC)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			logrus.WithError(err).WithField("index", index).Warn("Failed to create index")
			// Continue with other indexes instead of failing completely
		}
	}

	return nil
}

// SeedInitialData creates the default admin and the standard licence types.
func SeedInitialData(db *gorm.DB, adminPassword string) error {
	logrus.Info("Seeding initial data...")

	var adminCount int64
	db.Model(&models.User{}).Where("role = ?", models.UserRoleAdmin).Count(&adminCount)

	if adminCount == 0 {
		admin := &models.User{
			Username: "admin",
			Email:    "admin@compliance.local",
			FullName: "System Administrator",
			Role:     models.UserRoleAdmin,
			Status:   models.UserStatusActive,
		}

		if err := admin.SetPassword(adminPassword); err != nil {
			return fmt.Errorf("failed to set admin password: %w", err)
		}

		if err := db.Create(admin).Error; err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}

		logrus.Info("Default admin user created successfully")
	}

	defaultTypes := []models.LicenceType{
		{
			Name:             "Opium Act Exemption",
			IssuingAuthority: "Farmatec",
			PermittedActivities: models.NewActivitySet(
				models.ActivityPossess, models.ActivityStore, models.ActivityDistribute, models.ActivityManufacture,
			),
			Description: "Exemption to handle Opium Act list I and II substances",
		},
		{
			Name:                "Wholesale Distribution Authorisation",
			IssuingAuthority:    "IGJ",
			PermittedActivities: models.NewActivitySet(models.ActivityPossess, models.ActivityStore, models.ActivityDistribute),
		},
		{
			Name:                "Pharmacy Licence",
			IssuingAuthority:    "CIBG",
			PermittedActivities: models.NewActivitySet(models.ActivityPossess, models.ActivityStore, models.ActivityDispense),
		},
		{
			Name:                "Import Permit",
			IssuingAuthority:    "Farmatec",
			PermittedActivities: models.NewActivitySet(models.ActivityImport),
			IsPermit:            true,
		},
		{
			Name:                "Export Permit",
			IssuingAuthority:    "Farmatec",
			PermittedActivities: models.NewActivitySet(models.ActivityExport),
			IsPermit:            true,
		},
	}

	for _, lt := range defaultTypes {
		lt := lt
		var count int64
		db.Model(&models.LicenceType{}).Where("name = ?", lt.Name).Count(&count)
		if count > 0 {
			continue
		}
		if err := db.Create(&lt).Error; err != nil {
			logrus.WithError(err).WithField("licence_type", lt.Name).Warn("Failed to create licence type")
		}
	}

	logrus.Info("Initial data seeding completed")
	return nil
}

// Transaction helper
func WithTransaction(db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// WithSerializableTransaction runs fn at SERIALIZABLE isolation on postgres.
// Other dialects fall back to WithTransaction.
func WithSerializableTransaction(db *gorm.DB, fn func(*gorm.DB) error) error {
	if db.Dialector.Name() != "postgres" {
		return WithTransaction(db, fn)
	}
	return WithTransaction(db, func(tx *gorm.DB) error {
		if err := tx.Exec("SET TRANSACTION ISOLATION LEVEL SERIALIZABLE").Error; err != nil {
			return err
		}
		return fn(tx)
	})
}

// IsSerializationFailure reports a postgres serialization failure or
// deadlock, both safe to retry.
func IsSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}
