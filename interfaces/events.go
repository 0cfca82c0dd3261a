package interfaces

import (
	"context"

	"github.com/mknmagx/crmstack/dto"
)

type EventsPublisher interface {
	PublishConversationEvent(ctx context.Context, event dto.ConversationEvent) error
	PublishSyncCompletedEvent(ctx context.Context, event dto.SyncCompletedEvent) error
	Close() error
}
