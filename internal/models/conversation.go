package models

import (
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/mknmagx/crmstack/internal/enum"
	"github.com/mknmagx/crmstack/internal/utils"
)

// Conversation is the canonical, channel-agnostic customer interaction thread.
// At most one conversation may exist per distinct non-null source ref; the
// composite unique index on (source_type, source_id) enforces it.
type Conversation struct {
	ID      string                   `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Channel enum.ConversationChannel `gorm:"column:channel;type:varchar(50);index;not null" json:"channel"`

	SourceType *enum.SourceType `gorm:"column:source_type;type:varchar(50);uniqueIndex:idx_conversations_source_ref" json:"sourceType"`
	SourceID   *string          `gorm:"column:source_id;type:varchar(255);uniqueIndex:idx_conversations_source_ref" json:"sourceId"`

	Subject      string `gorm:"column:subject;type:varchar(1000)" json:"subject"`
	ContactName  string `gorm:"column:contact_name;type:varchar(255)" json:"contactName"`
	ContactEmail string `gorm:"column:contact_email;type:varchar(255);index" json:"contactEmail"`
	ContactPhone string `gorm:"column:contact_phone;type:varchar(50)" json:"contactPhone"`
	CompanyName  string `gorm:"column:company_name;type:varchar(255)" json:"companyName"`

	Status     enum.ConversationStatus   `gorm:"column:status;type:varchar(20);index;not null" json:"status"`
	Priority   enum.ConversationPriority `gorm:"column:priority;type:varchar(20);index;not null" json:"priority"`
	AssignedTo string                    `gorm:"column:assigned_to;type:varchar(255);index" json:"assignedTo"`
	Tags       pq.StringArray            `gorm:"column:tags;type:text[]" json:"tags"`

	MessageCount  int        `gorm:"column:message_count;default:0" json:"messageCount"`
	LastMessageAt *time.Time `gorm:"column:last_message_at;type:timestamp;index" json:"lastMessageAt"`

	// Channel-specific leftovers: provider thread ids, legacy timestamps,
	// legacy status/priority vocabulary, anything without a canonical home.
	ChannelMetadata JSONMap `gorm:"column:channel_metadata;type:jsonb" json:"channelMetadata"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp" json:"updatedAt"`
}

func (Conversation) TableName() string {
	return "conversations"
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = utils.GenerateNanoIDWithPrefix("conv", 16)
	}
	if c.Status == "" {
		c.Status = enum.ConversationOpen
	}
	if c.Priority == "" {
		c.Priority = enum.PriorityNormal
	}
	c.CreatedAt = utils.Now()
	return nil
}

// SourceRefKey returns the dedup-set key for this conversation, or "" when it
// has no source ref (natively-created conversations).
func (c *Conversation) SourceRefKey() string {
	if c.SourceType == nil || c.SourceID == nil {
		return ""
	}
	return SourceRefKey(*c.SourceType, *c.SourceID)
}

func SourceRefKey(sourceType enum.SourceType, sourceID string) string {
	return fmt.Sprintf("%s_%s", sourceType, sourceID)
}
