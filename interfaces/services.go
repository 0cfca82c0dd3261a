package interfaces

import (
	"context"

	"github.com/mknmagx/crmstack/dto"
	"github.com/mknmagx/crmstack/internal/models"
)

type PollResult struct {
	HasNewReplies bool
	NewReplies    []dto.ProviderMessage
	TotalReplies  int
}

type ThreadTrackerService interface {
	RegisterThread(ctx context.Context, sendResult dto.SendMessageResult, subject string, conversationID string) (*models.EmailThread, error)
	PollThread(ctx context.Context, thread *models.EmailThread) (*PollResult, error)
	PollAllActiveThreads(ctx context.Context) error
}

type SyncOrchestratorService interface {
	ManualSync(ctx context.Context, operatorID string) (*dto.SyncResult, error)
	AutoSync(ctx context.Context) (*dto.SyncResult, error)
}

type LegacyMergerService interface {
	ImportFromLegacySystems(ctx context.Context, options dto.ImportOptions) (*dto.ImportResult, error)
	GetUnifiedInbox(ctx context.Context, options dto.InboxOptions) ([]dto.InboxEntry, error)
}

// EmailService sends console mail through the provider and keeps the
// canonical conversation and reply-polling state in step with it.
type EmailService interface {
	SendEmail(ctx context.Context, request dto.SendEmailRequest) (*dto.SendEmailResponse, error)
	ReplyToThread(ctx context.Context, threadID string, comment string) error
}
