package legacy

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/mknmagx/crmstack/dto"
	"github.com/mknmagx/crmstack/interfaces"
	"github.com/mknmagx/crmstack/internal/enum"
	"github.com/mknmagx/crmstack/internal/logger"
	"github.com/mknmagx/crmstack/internal/models"
	"github.com/mknmagx/crmstack/internal/repository"
	"github.com/mknmagx/crmstack/internal/tracing"
	"github.com/mknmagx/crmstack/internal/utils"
)

type legacyMergerService struct {
	log      logger.Logger
	postgres *repository.Repositories
	events   interfaces.EventsPublisher
}

func NewLegacyMergerService(log logger.Logger, postgres *repository.Repositories, events interfaces.EventsPublisher) interfaces.LegacyMergerService {
	return &legacyMergerService{
		log:      log,
		postgres: postgres,
		events:   events,
	}
}

// ImportFromLegacySystems migrates the selected legacy collections into
// canonical conversations. Existing source refs are loaded once up front and
// skipped; a record that fails to map or write is reported in the per-source
// error list and never aborts the batch.
func (s *legacyMergerService) ImportFromLegacySystems(ctx context.Context, options dto.ImportOptions) (*dto.ImportResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "LegacyMergerService.ImportFromLegacySystems")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.LogObjectAsJson(span, "options", options)

	existingRefs := map[string]struct{}{}
	if options.SkipExisting {
		var err error
		existingRefs, err = s.postgres.ConversationRepository.ListSourceRefKeys(ctx)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
	}

	result := &dto.ImportResult{}

	if options.Contacts {
		if err := s.importContacts(ctx, existingRefs, &result.Contacts); err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
	}
	if options.Quotes {
		if err := s.importQuotes(ctx, existingRefs, &result.Quotes); err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
	}
	if options.Emails {
		if err := s.importEmails(ctx, existingRefs, &result.Emails); err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
	}

	span.LogKV(
		"contactsImported", result.Contacts.Imported,
		"quotesImported", result.Quotes.Imported,
		"emailsImported", result.Emails.Imported,
	)
	return result, nil
}

func (s *legacyMergerService) importContacts(ctx context.Context, existingRefs map[string]struct{}, stats *dto.SourceImportStats) error {
	records, err := s.postgres.LegacyContactRepository.List(ctx)
	if err != nil {
		return err
	}
	for _, record := range records {
		key := models.SourceRefKey(enum.SourceContact, record.ID)
		if _, exists := existingRefs[key]; exists {
			stats.Skipped++
			continue
		}
		mapped, err := mapLegacyContact(record)
		s.writeRecord(ctx, existingRefs, stats, record.ID, key, mapped, err)
	}
	return nil
}

func (s *legacyMergerService) importQuotes(ctx context.Context, existingRefs map[string]struct{}, stats *dto.SourceImportStats) error {
	records, err := s.postgres.LegacyQuoteRepository.List(ctx)
	if err != nil {
		return err
	}
	for _, record := range records {
		key := models.SourceRefKey(enum.SourceQuote, record.ID)
		if _, exists := existingRefs[key]; exists {
			stats.Skipped++
			continue
		}
		mapped, err := mapLegacyQuote(record)
		s.writeRecord(ctx, existingRefs, stats, record.ID, key, mapped, err)
	}
	return nil
}

func (s *legacyMergerService) importEmails(ctx context.Context, existingRefs map[string]struct{}, stats *dto.SourceImportStats) error {
	records, err := s.postgres.LegacyEmailRepository.List(ctx)
	if err != nil {
		return err
	}
	for _, record := range records {
		key := models.SourceRefKey(enum.SourceEmail, record.ID)
		if _, exists := existingRefs[key]; exists {
			stats.Skipped++
			continue
		}
		mapped, err := mapLegacyEmail(record)
		s.writeRecord(ctx, existingRefs, stats, record.ID, key, mapped, err)
	}
	return nil
}

// writeRecord persists one mapped record and updates the batch counters. The
// mapping error, if any, is folded in here so the per-source loops stay flat.
func (s *legacyMergerService) writeRecord(ctx context.Context, existingRefs map[string]struct{}, stats *dto.SourceImportStats, recordID, refKey string, mapped *mappedRecord, mapErr error) {
	if mapErr != nil {
		stats.Errors = append(stats.Errors, dto.ImportError{RecordID: recordID, Message: mapErr.Error()})
		s.log.Warnf("legacy record %s failed to map: %v", recordID, mapErr)
		return
	}

	conversationID, err := s.postgres.ConversationRepository.Create(ctx, mapped.conversation)
	if err != nil {
		stats.Errors = append(stats.Errors, dto.ImportError{RecordID: recordID, Message: err.Error()})
		s.log.Warnf("legacy record %s failed to write: %v", recordID, err)
		return
	}

	stats.Imported++
	existingRefs[refKey] = struct{}{}

	if mapped.messageText != "" {
		receivedAt := mapped.conversation.CreatedAt
		if mapped.receivedAt != nil {
			receivedAt = *mapped.receivedAt
		}
		message := &models.ConversationMessage{
			ConversationID: conversationID,
			Direction:      enum.MessageInbound,
			FromName:       mapped.conversation.ContactName,
			FromAddress:    mapped.conversation.ContactEmail,
			BodyText:       mapped.messageText,
			BodyPreview:    previewOf(mapped.messageText),
			ReceivedAt:     receivedAt,
		}
		if err := s.postgres.ConversationRepository.AppendMessage(ctx, message); err != nil {
			s.log.Warnf("failed to append initial message for conversation %s: %v", conversationID, err)
		}
	}

	if s.events != nil {
		event := dto.ConversationEvent{
			Type:           dto.EventConversationCreated,
			ConversationID: conversationID,
			Channel:        mapped.conversation.Channel.String(),
			OccurredAt:     utils.Now(),
		}
		if err := s.events.PublishConversationEvent(ctx, event); err != nil {
			s.log.Warnf("failed to publish created event for conversation %s: %v", conversationID, err)
		}
	}
}

func previewOf(text string) string {
	return utils.TruncateOnRuneBoundary(text, 500)
}
