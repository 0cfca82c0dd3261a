package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/mknmagx/crmstack/internal/utils"
)

// EmailThread tracks one outbound mail conversation for reply polling.
// Exactly one row exists per provider conversation id.
type EmailThread struct {
	ID                     string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	ProviderConversationID string `gorm:"column:provider_conversation_id;type:varchar(255);uniqueIndex;not null" json:"providerConversationId"`
	ProviderMessageID      string `gorm:"column:provider_message_id;type:varchar(255)" json:"providerMessageId"`
	InternetMessageID      string `gorm:"column:internet_message_id;type:varchar(255)" json:"internetMessageId"`

	// Owning canonical conversation, when the outbound mail belongs to a case
	ConversationID string `gorm:"column:conversation_id;type:varchar(50);index" json:"conversationId"`

	Subject  string `gorm:"column:subject;type:varchar(1000)" json:"subject"`
	IsActive bool   `gorm:"column:is_active;default:true;index" json:"isActive"`

	LastCheckedAt *time.Time `gorm:"column:last_checked_at;type:timestamp" json:"lastCheckedAt"`
	LastReplyAt   *time.Time `gorm:"column:last_reply_at;type:timestamp" json:"lastReplyAt"`
	ReplyCount    int        `gorm:"column:reply_count;default:0" json:"replyCount"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp" json:"updatedAt"`
}

func (EmailThread) TableName() string {
	return "email_threads"
}

func (e *EmailThread) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = utils.GenerateNanoIDWithPrefix("thread", 16)
	}
	e.CreatedAt = utils.Now()
	return nil
}
