package dbconnection

import (
	"fmt"
	"log/slog"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/amirhossein5/facecheck/internal/models"
)

// Open connects to the sqlite database at path and migrates the schema.
func Open(path string, log *slog.Logger) (*gorm.DB, error) {
	log.Debug("initializing database connection", "path", path)

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(&models.AttendanceRecord{}); err != nil {
		return nil, fmt.Errorf("migrate attendance_records table: %w", err)
	}

	return db, nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
