package sync

import (
	"context"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/mknmagx/crmstack/config"
	"github.com/mknmagx/crmstack/dto"
	"github.com/mknmagx/crmstack/interfaces"
	"github.com/mknmagx/crmstack/internal/enum"
	"github.com/mknmagx/crmstack/internal/logger"
	"github.com/mknmagx/crmstack/internal/models"
	"github.com/mknmagx/crmstack/internal/repository"
	"github.com/mknmagx/crmstack/internal/tracing"
	"github.com/mknmagx/crmstack/internal/utils"
)

// AutoSyncOwner stamps lock and status rows for scheduler-triggered passes.
const AutoSyncOwner = "scheduler"

type syncOrchestratorService struct {
	log           logger.Logger
	cfg           *config.SyncConfig
	mailCfg       *config.MailProviderConfig
	postgres      *repository.Repositories
	merger        interfaces.LegacyMergerService
	threadTracker interfaces.ThreadTrackerService
	mailClient    interfaces.MailProviderClient
	events        interfaces.EventsPublisher
}

func NewSyncOrchestratorService(
	log logger.Logger,
	cfg *config.SyncConfig,
	mailCfg *config.MailProviderConfig,
	postgres *repository.Repositories,
	merger interfaces.LegacyMergerService,
	threadTracker interfaces.ThreadTrackerService,
	mailClient interfaces.MailProviderClient,
	events interfaces.EventsPublisher,
) interfaces.SyncOrchestratorService {
	return &syncOrchestratorService{
		log:           log,
		cfg:           cfg,
		mailCfg:       mailCfg,
		postgres:      postgres,
		merger:        merger,
		threadTracker: threadTracker,
		mailClient:    mailClient,
		events:        events,
	}
}

// ManualSync runs a sync pass on operator request. Lock contention is a soft
// skip, never an error.
func (s *syncOrchestratorService) ManualSync(ctx context.Context, operatorID string) (*dto.SyncResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SyncOrchestratorService.ManualSync")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("operatorId", operatorID)

	if operatorID == "" {
		err := errors.New("operator id is required")
		tracing.TraceErr(span, err)
		return nil, err
	}

	return s.runLockedPass(ctx, operatorID)
}

// AutoSync runs the scheduled pass. It first checks whether the configured
// interval has elapsed since the last recorded sync; manual passes skip this
// check entirely.
func (s *syncOrchestratorService) AutoSync(ctx context.Context) (*dto.SyncResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SyncOrchestratorService.AutoSync")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	status, err := s.postgres.SyncStateRepository.GetStatus(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	interval := time.Duration(s.cfg.IntervalMinutes) * time.Minute
	if status != nil && status.LastSyncAt != nil && utils.Now().Sub(*status.LastSyncAt) < interval {
		span.LogKV("skipReason", dto.SkipReasonNotDue)
		return &dto.SyncResult{Skipped: true, SkipReason: dto.SkipReasonNotDue}, nil
	}

	return s.runLockedPass(ctx, AutoSyncOwner)
}

// runLockedPass is the single entry point both triggers funnel through. The
// persisted lock guarantees at most one pass runs at a time across all
// processes. The lock is released and the status row stamped even when a
// channel pass fails, so the console always shows that an attempt was made.
func (s *syncOrchestratorService) runLockedPass(ctx context.Context, owner string) (*dto.SyncResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SyncOrchestratorService.runLockedPass")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("owner", owner)

	// each pass locks under a unique token so two passes by the same owner
	// still exclude each other, and a pass that outlives the staleness
	// cutoff cannot release its successor's lock
	lockToken := utils.GenerateNanoIDWithPrefix(owner, 8)
	acquired, err := s.postgres.SyncStateRepository.AcquireLock(ctx, lockToken)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if !acquired {
		span.LogKV("skipReason", dto.SkipReasonSyncLocked)
		return &dto.SyncResult{Skipped: true, SkipReason: dto.SkipReasonSyncLocked}, nil
	}

	// the status row records the pass start time, not its completion:
	// anything arriving while the pass runs stays inside the next
	// mail-delta window
	startedAt := utils.Now()

	defer func() {
		if err := s.postgres.SyncStateRepository.RecordSync(ctx, owner, startedAt); err != nil {
			s.log.Errorf("failed to record sync status for %s: %v", owner, err)
		}
		if err := s.postgres.SyncStateRepository.ReleaseLock(ctx, lockToken); err != nil {
			s.log.Errorf("failed to release sync lock for %s: %v", owner, err)
		}
	}()

	var lastSyncAt *time.Time
	if status, err := s.postgres.SyncStateRepository.GetStatus(ctx); err == nil && status != nil {
		lastSyncAt = status.LastSyncAt
	}

	summary, err := s.runChannelPasses(ctx, lastSyncAt)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if s.events != nil {
		event := dto.SyncCompletedEvent{
			Type:        dto.EventSyncCompleted,
			TriggeredBy: owner,
			Summary:     summary,
			OccurredAt:  utils.Now(),
		}
		if err := s.events.PublishSyncCompletedEvent(ctx, event); err != nil {
			s.log.Warnf("failed to publish sync completed event: %v", err)
		}
	}

	tracing.LogObjectAsJson(span, "summary", summary)
	return &dto.SyncResult{Summary: summary}, nil
}

func (s *syncOrchestratorService) runChannelPasses(ctx context.Context, lastSyncAt *time.Time) (*dto.SyncSummary, error) {
	summary := &dto.SyncSummary{}

	if s.cfg.FormsEnabled || s.cfg.MailEnabled {
		options := dto.ImportOptions{
			Contacts:     s.cfg.FormsEnabled,
			Quotes:       s.cfg.FormsEnabled,
			Emails:       s.cfg.MailEnabled,
			SkipExisting: true,
		}
		importResult, err := s.merger.ImportFromLegacySystems(ctx, options)
		if err != nil {
			return nil, errors.Wrap(err, "legacy import pass")
		}
		summary.Forms = importResult.Contacts.Imported + importResult.Quotes.Imported
		summary.Emails = importResult.Emails.Imported
	}

	if s.cfg.MailEnabled && s.threadTracker != nil {
		if err := s.threadTracker.PollAllActiveThreads(ctx); err != nil {
			return nil, errors.Wrap(err, "thread polling pass")
		}
	}

	if s.cfg.MailEnabled && s.mailClient != nil {
		imported, err := s.drainProviderMailbox(ctx, lastSyncAt)
		if err != nil {
			return nil, errors.Wrap(err, "mailbox delta pass")
		}
		summary.Emails += imported
	}

	if s.cfg.WhatsappEnabled {
		conversations, messages, err := s.drainWhatsappMessages(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "whatsapp pass")
		}
		summary.Whatsapp.Conversations = conversations
		summary.Whatsapp.Messages = messages
	}

	return summary, nil
}

// drainProviderMailbox imports inbox messages that arrived since the last
// sync pass as mail-channel conversations. Messages belonging to a tracked
// thread are left to the reply poller; messages from the console's own sender
// address are ignored. The listing is inclusive at the watermark; the
// source-ref dedup keeps boundary messages from being imported twice.
func (s *syncOrchestratorService) drainProviderMailbox(ctx context.Context, lastSyncAt *time.Time) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SyncOrchestratorService.drainProviderMailbox")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	since := utils.Now().Add(-time.Duration(s.cfg.IntervalMinutes) * time.Minute)
	if lastSyncAt != nil {
		since = *lastSyncAt
	}
	span.LogKV("since", since.Format(time.RFC3339))

	messages, err := s.mailClient.ListMessagesSince(ctx, "inbox", since)
	if err != nil {
		return 0, err
	}

	var imported int
	for _, message := range messages {
		if message.IsDraft {
			continue
		}
		if strings.EqualFold(message.From.EmailAddress.Address, s.mailCfg.SenderAddress) {
			continue
		}

		thread, err := s.postgres.EmailThreadRepository.GetByProviderConversationID(ctx, message.ConversationID)
		if err != nil {
			tracing.TraceErr(span, err)
			s.log.Errorf("thread lookup failed for provider conversation %s: %v", message.ConversationID, err)
			continue
		}
		if thread != nil {
			continue
		}

		existing, err := s.postgres.ConversationRepository.GetBySourceRef(ctx, enum.SourceMail, message.ID)
		if err != nil {
			tracing.TraceErr(span, err)
			s.log.Errorf("mail dedup lookup failed for message %s: %v", message.ID, err)
			continue
		}
		if existing != nil {
			continue
		}

		sourceType := enum.SourceMail
		sourceID := message.ID
		conversation := &models.Conversation{
			Channel:      enum.ChannelMail,
			SourceType:   &sourceType,
			SourceID:     &sourceID,
			Subject:      utils.NormalizeEmailSubject(message.Subject),
			ContactName:  message.From.EmailAddress.Name,
			ContactEmail: message.From.EmailAddress.Address,
		}
		conversationID, err := s.postgres.ConversationRepository.Create(ctx, conversation)
		if err != nil {
			tracing.TraceErr(span, err)
			s.log.Errorf("mail conversation create failed for message %s: %v", message.ID, err)
			continue
		}

		inbound := &models.ConversationMessage{
			ConversationID:    conversationID,
			Direction:         enum.MessageInbound,
			FromName:          message.From.EmailAddress.Name,
			FromAddress:       message.From.EmailAddress.Address,
			BodyText:          message.Body.Content,
			BodyPreview:       truncatePreview(message.BodyPreview),
			ProviderMessageID: message.ID,
			ReceivedAt:        message.ReceivedDateTime,
		}
		if err := s.postgres.ConversationRepository.AppendMessage(ctx, inbound); err != nil {
			s.log.Warnf("failed to append inbound message to conversation %s: %v", conversationID, err)
		}
		imported++

		if s.events != nil {
			event := dto.ConversationEvent{
				Type:           dto.EventConversationCreated,
				ConversationID: conversationID,
				Channel:        enum.ChannelMail.String(),
				OccurredAt:     utils.Now(),
			}
			if err := s.events.PublishConversationEvent(ctx, event); err != nil {
				s.log.Warnf("failed to publish created event for conversation %s: %v", conversationID, err)
			}
		}
	}

	span.LogKV("imported", imported)
	return imported, nil
}

// drainWhatsappMessages folds webhook-staged chat messages into canonical
// conversations, one conversation per chat contact, then marks the staging
// rows processed.
func (s *syncOrchestratorService) drainWhatsappMessages(ctx context.Context) (int, int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SyncOrchestratorService.drainWhatsappMessages")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	staged, err := s.postgres.WhatsappMessageRepository.ListUnprocessed(ctx)
	if err != nil {
		return 0, 0, err
	}
	if len(staged) == 0 {
		return 0, 0, nil
	}

	var newConversations, appendedMessages int
	processedIDs := make([]string, 0, len(staged))

	for _, waMessage := range staged {
		conversation, err := s.postgres.ConversationRepository.GetBySourceRef(ctx, enum.SourceWhatsapp, waMessage.WaContactID)
		if err != nil {
			tracing.TraceErr(span, err)
			s.log.Errorf("whatsapp lookup failed for contact %s: %v", waMessage.WaContactID, err)
			continue
		}

		if conversation == nil {
			sourceType := enum.SourceWhatsapp
			sourceID := waMessage.WaContactID
			conversation = &models.Conversation{
				Channel:      enum.ChannelChatPlatform,
				SourceType:   &sourceType,
				SourceID:     &sourceID,
				Subject:      utils.JoinNonEmpty("Chat with", waMessage.ContactName),
				ContactName:  waMessage.ContactName,
				ContactPhone: waMessage.Phone,
			}
			conversationID, err := s.postgres.ConversationRepository.Create(ctx, conversation)
			if err != nil {
				tracing.TraceErr(span, err)
				s.log.Errorf("whatsapp conversation create failed for contact %s: %v", waMessage.WaContactID, err)
				continue
			}
			conversation.ID = conversationID
			newConversations++

			if s.events != nil {
				event := dto.ConversationEvent{
					Type:           dto.EventConversationCreated,
					ConversationID: conversationID,
					Channel:        enum.ChannelChatPlatform.String(),
					OccurredAt:     utils.Now(),
				}
				if err := s.events.PublishConversationEvent(ctx, event); err != nil {
					s.log.Warnf("failed to publish created event for conversation %s: %v", conversationID, err)
				}
			}
		}

		message := &models.ConversationMessage{
			ConversationID: conversation.ID,
			Direction:      enum.MessageInbound,
			FromName:       waMessage.ContactName,
			BodyText:       waMessage.Body,
			BodyPreview:    truncatePreview(waMessage.Body),
			ReceivedAt:     waMessage.SentAt,
		}
		if err := s.postgres.ConversationRepository.AppendMessage(ctx, message); err != nil {
			tracing.TraceErr(span, err)
			s.log.Errorf("whatsapp message append failed for conversation %s: %v", conversation.ID, err)
			continue
		}
		appendedMessages++
		processedIDs = append(processedIDs, waMessage.ID)
	}

	if len(processedIDs) > 0 {
		if err := s.postgres.WhatsappMessageRepository.MarkProcessed(ctx, processedIDs); err != nil {
			return newConversations, appendedMessages, err
		}
	}

	span.LogKV("newConversations", newConversations, "appendedMessages", appendedMessages)
	return newConversations, appendedMessages, nil
}

func truncatePreview(text string) string {
	return utils.TruncateOnRuneBoundary(text, 500)
}
