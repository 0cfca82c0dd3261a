package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/mknmagx/crmstack/internal/enum"
	"github.com/mknmagx/crmstack/internal/utils"
)

// ConversationMessage is one entry on a conversation timeline.
type ConversationMessage struct {
	ID             string                `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	ConversationID string                `gorm:"column:conversation_id;type:varchar(50);index;not null" json:"conversationId"`
	Direction      enum.MessageDirection `gorm:"column:direction;type:varchar(20);not null" json:"direction"`

	FromName    string `gorm:"column:from_name;type:varchar(255)" json:"fromName"`
	FromAddress string `gorm:"column:from_address;type:varchar(255);index" json:"fromAddress"`

	BodyText    string `gorm:"column:body_text;type:text" json:"bodyText"`
	BodyHTML    string `gorm:"column:body_html;type:text" json:"bodyHtml"`
	BodyPreview string `gorm:"column:body_preview;type:varchar(500)" json:"bodyPreview"`

	// Provider-side identifiers for mail-channel messages
	ProviderMessageID string `gorm:"column:provider_message_id;type:varchar(255);index" json:"providerMessageId"`
	InternetMessageID string `gorm:"column:internet_message_id;type:varchar(255)" json:"internetMessageId"`
	HasAttachments    bool   `gorm:"column:has_attachments;default:false" json:"hasAttachments"`

	ReceivedAt time.Time `gorm:"column:received_at;type:timestamp;index;not null" json:"receivedAt"`
	CreatedAt  time.Time `gorm:"column:created_at;type:timestamp" json:"createdAt"`
}

func (ConversationMessage) TableName() string {
	return "conversation_messages"
}

func (m *ConversationMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("msg", 16)
	}
	m.CreatedAt = utils.Now()
	return nil
}
