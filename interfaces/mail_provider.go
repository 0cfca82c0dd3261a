package interfaces

import (
	"context"
	"time"

	"github.com/mknmagx/crmstack/dto"
)

// TokenProvider hands out a valid bearer token for the remote mail API,
// refreshing its cache when needed.
type TokenProvider interface {
	GetAccessToken(ctx context.Context) (string, error)
}

// MailProviderClient wraps the remote mailbox REST operations. Every call
// obtains a token from the provider's credential cache, issues one HTTP
// request and decodes the JSON body; 204/empty responses come back as
// synthetic success markers.
type MailProviderClient interface {
	ListMessages(ctx context.Context, folder string, top int) ([]dto.ProviderMessage, error)
	GetMessage(ctx context.Context, messageID string) (*dto.ProviderMessage, error)
	SendMessage(ctx context.Context, request dto.SendMessageRequest) (*dto.SendMessageResult, error)
	ReplyToMessage(ctx context.Context, messageID string, comment string) error
	MoveMessage(ctx context.Context, messageID string, destinationFolder string) error
	DeleteMessage(ctx context.Context, messageID string) error
	ListAttachments(ctx context.Context, messageID string) ([]dto.ProviderAttachment, error)
	GetAttachment(ctx context.Context, messageID string, attachmentID string) (*dto.ProviderAttachment, error)
	SearchMessages(ctx context.Context, query string, top int) ([]dto.ProviderMessage, error)
	ListMessagesByConversationID(ctx context.Context, providerConversationID string) ([]dto.ProviderMessage, error)
	ListMessagesSince(ctx context.Context, folder string, since time.Time) ([]dto.ProviderMessage, error)
}
