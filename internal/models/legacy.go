package models

import (
	"time"
)

// The legacy collections are document imports from the predecessor system.
// Their shapes differ per collection and drifted over the years, so each row
// keeps its payload verbatim in a jsonb bag; the merger does the mapping.

type LegacyContactRequest struct {
	ID        string    `gorm:"column:id;type:varchar(255);primaryKey" json:"id"`
	Data      JSONMap   `gorm:"column:data;type:jsonb;not null" json:"data"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp" json:"createdAt"`
}

func (LegacyContactRequest) TableName() string {
	return "legacy_contact_requests"
}

type LegacyQuoteRequest struct {
	ID        string    `gorm:"column:id;type:varchar(255);primaryKey" json:"id"`
	Data      JSONMap   `gorm:"column:data;type:jsonb;not null" json:"data"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp" json:"createdAt"`
}

func (LegacyQuoteRequest) TableName() string {
	return "legacy_quote_requests"
}

type LegacyEmailRecord struct {
	ID        string    `gorm:"column:id;type:varchar(255);primaryKey" json:"id"`
	Data      JSONMap   `gorm:"column:data;type:jsonb;not null" json:"data"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp" json:"createdAt"`
}

func (LegacyEmailRecord) TableName() string {
	return "legacy_email_records"
}
