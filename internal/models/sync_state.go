package models

import (
	"time"

	"gorm.io/datatypes"
)

// SyncState is the per-stage checkpoint. WatermarkDate is the last as-of
// date a stage fully attempted.
type SyncState struct {
	Scope         string         `gorm:"primaryKey;type:varchar(50)"`
	WatermarkDate *time.Time     `gorm:"type:date"`
	LastSuccessAt *time.Time
	LastAttemptAt *time.Time
	LastError     *string        `gorm:"type:text"`
	StatsJSON     datatypes.JSON
}

func (SyncState) TableName() string {
	return "sync_state"
}
