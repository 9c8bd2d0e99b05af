package db

import (
	"putscreener/internal/models"
)

// Models lists every table owned by the pipeline, in dependency order.
func Models() []any {
	return []any{
		&models.Market{},
		&models.Sector{},
		&models.Industry{},
		&models.Ticker{},
		&models.TickerPrice{},
		&models.TickerMetric{},
		&models.SyncState{},
		&models.ScreeningResult{},
		&models.SystemSetting{},
	}
}

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}
	return db.Gorm.AutoMigrate(Models()...)
}
