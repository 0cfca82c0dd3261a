package dto

import "time"

const SkipReasonSyncLocked = "sync_locked"
const SkipReasonNotDue = "not_due"

type WhatsappSummary struct {
	Conversations int `json:"conversations"`
	Messages      int `json:"messages"`
}

// SyncSummary holds per-channel counts for one sync pass.
type SyncSummary struct {
	Forms    int             `json:"forms"`
	Emails   int             `json:"emails"`
	Whatsapp WhatsappSummary `json:"whatsapp"`
}

type SyncResult struct {
	Skipped    bool         `json:"skipped"`
	SkipReason string       `json:"skipReason,omitempty"`
	Summary    *SyncSummary `json:"summary,omitempty"`
}

type SyncStatusResponse struct {
	LastSyncAt *time.Time `json:"lastSyncAt"`
	LastSyncBy string     `json:"lastSyncBy"`
	SyncCount  int64      `json:"syncCount"`
}

type SyncLockResponse struct {
	IsLocked bool   `json:"isLocked"`
	LockedBy string `json:"lockedBy"`
}
