package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/mknmagx/crmstack/internal/utils"
)

// WhatsappMessage is a webhook-fed staging row. The chat channel pass drains
// unprocessed rows into canonical conversations.
type WhatsappMessage struct {
	ID          string     `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	WaContactID string     `gorm:"column:wa_contact_id;type:varchar(100);index;not null" json:"waContactId"`
	ContactName string     `gorm:"column:contact_name;type:varchar(255)" json:"contactName"`
	Phone       string     `gorm:"column:phone;type:varchar(50)" json:"phone"`
	Body        string     `gorm:"column:body;type:text" json:"body"`
	SentAt      time.Time  `gorm:"column:sent_at;type:timestamp;not null" json:"sentAt"`
	Processed   bool       `gorm:"column:processed;default:false;index" json:"processed"`
	ProcessedAt *time.Time `gorm:"column:processed_at;type:timestamp" json:"processedAt"`
	CreatedAt   time.Time  `gorm:"column:created_at;type:timestamp" json:"createdAt"`
}

func (WhatsappMessage) TableName() string {
	return "whatsapp_messages"
}

func (m *WhatsappMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("wamsg", 16)
	}
	m.CreatedAt = utils.Now()
	return nil
}
