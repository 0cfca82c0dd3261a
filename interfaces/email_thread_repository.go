package interfaces

import (
	"context"
	"time"

	"github.com/mknmagx/crmstack/internal/models"
)

// WatermarkUpdate is applied after every poll. CheckedAt always advances;
// LastReplyAt and ReplyDelta are set only when new replies were found.
type WatermarkUpdate struct {
	CheckedAt   time.Time
	LastReplyAt *time.Time
	ReplyDelta  int
}

type EmailThreadRepository interface {
	Create(ctx context.Context, thread *models.EmailThread) (string, error)
	GetByID(ctx context.Context, id string) (*models.EmailThread, error)
	GetByProviderConversationID(ctx context.Context, providerConversationID string) (*models.EmailThread, error)
	GetActive(ctx context.Context) ([]*models.EmailThread, error)
	SaveWatermark(ctx context.Context, threadID string, update WatermarkUpdate) error
	Deactivate(ctx context.Context, threadID string) error
}
