package legacy

import (
	"context"
	"sort"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/mknmagx/crmstack/dto"
	"github.com/mknmagx/crmstack/interfaces"
	"github.com/mknmagx/crmstack/internal/enum"
	"github.com/mknmagx/crmstack/internal/models"
	"github.com/mknmagx/crmstack/internal/tracing"
)

// GetUnifiedInbox returns canonical conversations, optionally overlaid with
// not-yet-migrated legacy records mapped in memory, sorted newest first by
// display time.
func (s *legacyMergerService) GetUnifiedInbox(ctx context.Context, options dto.InboxOptions) ([]dto.InboxEntry, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "LegacyMergerService.GetUnifiedInbox")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.LogObjectAsJson(span, "options", options)

	filter := interfaces.ConversationListFilter{
		Channel: enum.ConversationChannel(options.Channel),
	}
	conversations, err := s.postgres.ConversationRepository.List(ctx, filter)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	entries := make([]dto.InboxEntry, 0, len(conversations))
	for _, conversation := range conversations {
		entries = append(entries, dto.InboxEntry{
			Conversation: conversation,
			DisplayAt:    displayTime(conversation),
		})
	}

	if options.IncludeLegacy {
		legacyEntries, err := s.legacyOverlay(ctx, options.Channel)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		entries = append(entries, legacyEntries...)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].DisplayAt.After(entries[j].DisplayAt)
	})

	if options.Limit > 0 && len(entries) > options.Limit {
		entries = entries[:options.Limit]
	}

	span.LogKV("entries", len(entries))
	return entries, nil
}

// legacyOverlay maps not-yet-migrated legacy records to in-memory
// conversations. Nothing is written; the overlay exists so the inbox is
// complete before a migration run has happened.
func (s *legacyMergerService) legacyOverlay(ctx context.Context, channel string) ([]dto.InboxEntry, error) {
	existingRefs, err := s.postgres.ConversationRepository.ListSourceRefKeys(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]dto.InboxEntry, 0)

	appendEntry := func(refKey string, mapped *mappedRecord, mapErr error) {
		if mapErr != nil {
			s.log.Warnf("skipping unmappable legacy record %s in inbox overlay: %v", refKey, mapErr)
			return
		}
		if _, migrated := existingRefs[refKey]; migrated {
			return
		}
		conversation := mapped.conversation
		if channel != "" && conversation.Channel.String() != channel {
			return
		}
		if mapped.receivedAt != nil {
			conversation.CreatedAt = *mapped.receivedAt
		}
		conversation.MessageCount = 1
		entries = append(entries, dto.InboxEntry{
			Conversation: conversation,
			IsLegacy:     true,
			DisplayAt:    displayTime(conversation),
		})
	}

	contacts, err := s.postgres.LegacyContactRepository.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, record := range contacts {
		mapped, mapErr := mapLegacyContact(record)
		appendEntry(models.SourceRefKey(enum.SourceContact, record.ID), mapped, mapErr)
	}

	quotes, err := s.postgres.LegacyQuoteRepository.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, record := range quotes {
		mapped, mapErr := mapLegacyQuote(record)
		appendEntry(models.SourceRefKey(enum.SourceQuote, record.ID), mapped, mapErr)
	}

	emails, err := s.postgres.LegacyEmailRepository.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, record := range emails {
		mapped, mapErr := mapLegacyEmail(record)
		appendEntry(models.SourceRefKey(enum.SourceEmail, record.ID), mapped, mapErr)
	}

	return entries, nil
}

// displayTime picks the timestamp an inbox row sorts by. A conversation that
// has received a reply reads as its last activity; one with a single message
// reads as its original submission time, even when the row itself was
// created much later by a migration run.
func displayTime(conversation *models.Conversation) time.Time {
	if conversation.MessageCount > 1 && conversation.LastMessageAt != nil {
		return *conversation.LastMessageAt
	}
	if conversation.ChannelMetadata != nil {
		if raw, ok := conversation.ChannelMetadata["originalCreatedAt"]; ok {
			if s, ok := raw.(string); ok {
				if t, err := time.Parse(time.RFC3339, s); err == nil {
					return t
				}
			}
		}
	}
	return conversation.CreatedAt
}
