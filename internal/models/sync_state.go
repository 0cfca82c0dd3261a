package models

import (
	"time"
)

const (
	SyncStatusID = "sync_status"
	SyncLockID   = "sync_lock"
)

// SyncStatus is a singleton row updated at the end of every successful sync
// pass, whether or not anything changed.
type SyncStatus struct {
	ID         string     `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	LastSyncAt *time.Time `gorm:"column:last_sync_at;type:timestamp" json:"lastSyncAt"`
	LastSyncBy string     `gorm:"column:last_sync_by;type:varchar(255)" json:"lastSyncBy"`
	SyncCount  int64      `gorm:"column:sync_count;default:0" json:"syncCount"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;type:timestamp" json:"updatedAt"`
}

func (SyncStatus) TableName() string {
	return "sync_states"
}

// SyncLock is the persisted mutual-exclusion record guarding sync passes.
// It lives in the database, not in process memory, so it stays correct
// across independent processes.
type SyncLock struct {
	ID       string     `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	IsLocked bool       `gorm:"column:is_locked;default:false" json:"isLocked"`
	LockedBy string     `gorm:"column:locked_by;type:varchar(255)" json:"lockedBy"`
	LockedAt *time.Time `gorm:"column:locked_at;type:timestamp" json:"lockedAt"`
}

func (SyncLock) TableName() string {
	return "sync_locks"
}
