package services

import (
	"github.com/mknmagx/crmstack/config"
	"github.com/mknmagx/crmstack/interfaces"
	"github.com/mknmagx/crmstack/internal/logger"
	"github.com/mknmagx/crmstack/internal/repository"
	"github.com/mknmagx/crmstack/services/events"
	"github.com/mknmagx/crmstack/services/legacy"
	"github.com/mknmagx/crmstack/services/mailer"
	"github.com/mknmagx/crmstack/services/msgraph"
	"github.com/mknmagx/crmstack/services/storage"
	syncsvc "github.com/mknmagx/crmstack/services/sync"
	"github.com/mknmagx/crmstack/services/threads"
)

type Services struct {
	TokenProvider      interfaces.TokenProvider
	MailProviderClient interfaces.MailProviderClient
	StorageService     interfaces.StorageService
	EventsPublisher    interfaces.EventsPublisher

	EmailService            interfaces.EmailService
	ThreadTrackerService    interfaces.ThreadTrackerService
	LegacyMergerService     interfaces.LegacyMergerService
	SyncOrchestratorService interfaces.SyncOrchestratorService
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	var eventsPublisher interfaces.EventsPublisher
	if cfg.AppConfig.RabbitMQURL != "" {
		var err error
		eventsPublisher, err = events.NewRabbitMQPublisher(cfg.AppConfig.RabbitMQURL, log)
		if err != nil {
			return nil, err
		}
	}

	var storageService interfaces.StorageService
	if cfg.StorageConfig.AccountID != "" {
		storageService = storage.NewR2StorageService(cfg.StorageConfig)
	}

	tokenProvider := msgraph.NewTokenService(log, cfg.MailProviderConfig)
	mailClient := msgraph.NewMailProviderClient(log, cfg.MailProviderConfig, tokenProvider)

	threadTracker := threads.NewThreadTrackerService(log, cfg.MailProviderConfig, repos, mailClient, storageService, eventsPublisher)
	merger := legacy.NewLegacyMergerService(log, repos, eventsPublisher)
	orchestrator := syncsvc.NewSyncOrchestratorService(log, cfg.SyncConfig, cfg.MailProviderConfig, repos, merger, threadTracker, mailClient, eventsPublisher)
	emailService := mailer.NewEmailService(log, cfg.MailProviderConfig, repos, mailClient, threadTracker)

	services := Services{
		TokenProvider:      tokenProvider,
		MailProviderClient: mailClient,
		StorageService:     storageService,
		EventsPublisher:    eventsPublisher,

		EmailService:            emailService,
		ThreadTrackerService:    threadTracker,
		LegacyMergerService:     merger,
		SyncOrchestratorService: orchestrator,
	}

	return &services, nil
}
