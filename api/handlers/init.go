package handlers

import (
	"github.com/mknmagx/crmstack/internal/repository"
	"github.com/mknmagx/crmstack/services"
)

type APIHandlers struct {
	Sync          *SyncHandler
	Inbox         *InboxHandler
	Conversations *ConversationsHandler
	Emails        *EmailsHandler
	Webhooks      *WebhooksHandler
	Legacy        *LegacyHandler
}

func InitHandlers(s *services.Services, r *repository.Repositories) *APIHandlers {
	return &APIHandlers{
		Sync:          NewSyncHandler(s.SyncOrchestratorService, r),
		Inbox:         NewInboxHandler(s.LegacyMergerService),
		Conversations: NewConversationsHandler(r),
		Emails:        NewEmailsHandler(s.EmailService),
		Webhooks:      NewWebhooksHandler(r),
		Legacy:        NewLegacyHandler(s.LegacyMergerService),
	}
}
