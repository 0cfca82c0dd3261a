package interfaces

import (
	"context"

	"github.com/mknmagx/crmstack/internal/models"
)

type LegacyContactRepository interface {
	Create(ctx context.Context, record *models.LegacyContactRequest) error
	List(ctx context.Context) ([]*models.LegacyContactRequest, error)
}

type LegacyQuoteRepository interface {
	Create(ctx context.Context, record *models.LegacyQuoteRequest) error
	List(ctx context.Context) ([]*models.LegacyQuoteRequest, error)
}

type LegacyEmailRepository interface {
	Create(ctx context.Context, record *models.LegacyEmailRecord) error
	List(ctx context.Context) ([]*models.LegacyEmailRecord, error)
}

type WhatsappMessageRepository interface {
	Create(ctx context.Context, message *models.WhatsappMessage) error
	ListUnprocessed(ctx context.Context) ([]*models.WhatsappMessage, error)
	MarkProcessed(ctx context.Context, ids []string) error
}
