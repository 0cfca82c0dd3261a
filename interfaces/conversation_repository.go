package interfaces

import (
	"context"

	"github.com/mknmagx/crmstack/internal/enum"
	"github.com/mknmagx/crmstack/internal/models"
)

type ConversationListFilter struct {
	Channel enum.ConversationChannel
	Status  enum.ConversationStatus
	Limit   int
	Offset  int
}

type ConversationUpdate struct {
	Status     *enum.ConversationStatus
	Priority   *enum.ConversationPriority
	AssignedTo *string
}

type ConversationRepository interface {
	Create(ctx context.Context, conversation *models.Conversation) (string, error)
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	GetBySourceRef(ctx context.Context, sourceType enum.SourceType, sourceID string) (*models.Conversation, error)
	// ListSourceRefKeys bulk-reads every existing source ref as "<type>_<id>"
	// keys; the merger's dedup set is built from one call.
	ListSourceRefKeys(ctx context.Context) (map[string]struct{}, error)
	List(ctx context.Context, filter ConversationListFilter) ([]*models.Conversation, error)
	Update(ctx context.Context, id string, update ConversationUpdate) error
	// AppendMessage persists the message and atomically bumps the owning
	// conversation's message count and last-message time.
	AppendMessage(ctx context.Context, message *models.ConversationMessage) error
	ListMessages(ctx context.Context, conversationID string) ([]*models.ConversationMessage, error)
}
