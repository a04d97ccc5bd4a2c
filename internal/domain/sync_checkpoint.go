package domain

import "time"

// CheckpointSingletonID is the primary key of the only sync_checkpoints row.
const CheckpointSingletonID = 1

// SyncCheckpoint records the highest board post number known to have been fully
// synchronized into the graph. It is the single source of truth for sync
// progress and only ever moves forward, inside the batch transaction that
// earned the advance.
type SyncCheckpoint struct {
	ID              int       `gorm:"primaryKey" json:"id"`
	LastProcessedNo int64     `gorm:"column:last_processed_no;not null" json:"last_processed_no"`
	LastUpdate      time.Time `gorm:"column:last_update;not null" json:"last_update"`
}

func (SyncCheckpoint) TableName() string { return "sync_checkpoints" }
