package database

import (
	"github.com/stefanaltmann/markets-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase opens the sqlite database at the given path and migrates the
// order and trade schemas.
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&types.Order{}, &types.Trade{}); err != nil {
		return nil, err
	}

	return db, nil
}
