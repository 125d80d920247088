package db

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"feishu-digest-bot/internal/config"
	"feishu-digest-bot/internal/models"
)

// Init opens the database connection and runs migrations.
func Init(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormLogger := logger.New(
		logrus.StandardLogger(),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	conn, err := gorm.Open(mysql.Open(cfg.GetDSN()), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := runMigrations(conn); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logrus.Info("Database initialized successfully")
	return conn, nil
}

func runMigrations(conn *gorm.DB) error {
	logrus.Info("Running database migrations...")

	if err := conn.AutoMigrate(&models.DeliveryLog{}); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}

	logrus.Info("Database migrations completed")
	return nil
}
