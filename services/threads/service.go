package threads

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

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

type threadTrackerService struct {
	log        logger.Logger
	cfg        *config.MailProviderConfig
	postgres   *repository.Repositories
	mailClient interfaces.MailProviderClient
	storage    interfaces.StorageService
	events     interfaces.EventsPublisher
}

func NewThreadTrackerService(
	log logger.Logger,
	cfg *config.MailProviderConfig,
	postgres *repository.Repositories,
	mailClient interfaces.MailProviderClient,
	storage interfaces.StorageService,
	events interfaces.EventsPublisher,
) interfaces.ThreadTrackerService {
	return &threadTrackerService{
		log:        log,
		cfg:        cfg,
		postgres:   postgres,
		mailClient: mailClient,
		storage:    storage,
		events:     events,
	}
}

// RegisterThread records an outbound message so its provider conversation is
// polled for replies. Registering the same conversation twice returns the
// existing thread.
func (s *threadTrackerService) RegisterThread(ctx context.Context, sendResult dto.SendMessageResult, subject string, conversationID string) (*models.EmailThread, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ThreadTrackerService.RegisterThread")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if sendResult.ConversationID == "" {
		err := errors.New("send result has no provider conversation id")
		tracing.TraceErr(span, err)
		return nil, err
	}

	existing, err := s.postgres.EmailThreadRepository.GetByProviderConversationID(ctx, sendResult.ConversationID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if existing != nil {
		tracing.TagEntity(span, existing.ID)
		return existing, nil
	}

	now := utils.Now()
	thread := &models.EmailThread{
		ProviderConversationID: sendResult.ConversationID,
		ProviderMessageID:      sendResult.MessageID,
		InternetMessageID:      utils.NormalizeMessageID(sendResult.InternetMessageID),
		ConversationID:         conversationID,
		Subject:                subject,
		IsActive:               true,
		LastCheckedAt:          &now,
	}

	threadID, err := s.postgres.EmailThreadRepository.Create(ctx, thread)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	thread.ID = threadID
	tracing.TagEntity(span, threadID)

	return thread, nil
}

// PollThread fetches the provider conversation and classifies everything
// received strictly after the thread's watermark, excluding the tracked
// outbound message and anything sent from the console's own mailbox. Replies
// are recorded oldest first and the watermark only advances past what was
// recorded, so a failed append is seen again on the next poll.
func (s *threadTrackerService) PollThread(ctx context.Context, thread *models.EmailThread) (*interfaces.PollResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ThreadTrackerService.PollThread")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, thread.ID)

	messages, err := s.mailClient.ListMessagesByConversationID(ctx, thread.ProviderConversationID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	watermark := thread.CreatedAt
	if thread.LastCheckedAt != nil {
		watermark = *thread.LastCheckedAt
	}

	newReplies := make([]dto.ProviderMessage, 0)
	for _, message := range messages {
		if message.ID == thread.ProviderMessageID {
			continue
		}
		if strings.EqualFold(message.From.EmailAddress.Address, s.cfg.SenderAddress) {
			continue
		}
		if !message.ReceivedDateTime.After(watermark) {
			continue
		}
		newReplies = append(newReplies, message)
	}

	sort.Slice(newReplies, func(i, j int) bool {
		return newReplies[i].ReceivedDateTime.Before(newReplies[j].ReceivedDateTime)
	})

	update := interfaces.WatermarkUpdate{CheckedAt: utils.Now()}
	recorded := make([]dto.ProviderMessage, 0, len(newReplies))
	for _, reply := range newReplies {
		if err := s.recordReply(ctx, thread, reply); err != nil {
			tracing.TraceErr(span, err)
			s.log.Errorf("failed to record reply %s on thread %s: %v", reply.ID, thread.ID, err)
			// hold the watermark behind the failing reply
			update.CheckedAt = watermark
			if len(recorded) > 0 {
				update.CheckedAt = recorded[len(recorded)-1].ReceivedDateTime
			}
			break
		}
		recorded = append(recorded, reply)
	}

	if len(recorded) > 0 {
		latest := recorded[len(recorded)-1].ReceivedDateTime
		update.LastReplyAt = &latest
		update.ReplyDelta = len(recorded)
	}

	if err := s.postgres.EmailThreadRepository.SaveWatermark(ctx, thread.ID, update); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.LogKV("newReplies", len(recorded))
	return &interfaces.PollResult{
		HasNewReplies: len(recorded) > 0,
		NewReplies:    recorded,
		TotalReplies:  thread.ReplyCount + len(recorded),
	}, nil
}

// PollAllActiveThreads polls every active thread. A failing thread is logged
// and skipped so one bad conversation cannot stall the rest.
func (s *threadTrackerService) PollAllActiveThreads(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ThreadTrackerService.PollAllActiveThreads")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	activeThreads, err := s.postgres.EmailThreadRepository.GetActive(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	span.LogKV("activeThreads", len(activeThreads))

	var failed int
	for _, thread := range activeThreads {
		if _, err := s.PollThread(ctx, thread); err != nil {
			failed++
			s.log.Errorf("poll failed for thread %s (provider conversation %s): %v", thread.ID, thread.ProviderConversationID, err)
		}
	}

	if failed > 0 {
		span.LogKV("failedThreads", failed)
	}
	return nil
}

// recordReply appends the reply to the owning conversation timeline, stores
// its attachments and publishes a reply event. Threads without an owning
// conversation only advance their counters.
func (s *threadTrackerService) recordReply(ctx context.Context, thread *models.EmailThread, reply dto.ProviderMessage) error {
	if thread.ConversationID == "" {
		return nil
	}

	bodyHTML := ""
	bodyText := ""
	if strings.EqualFold(reply.Body.ContentType, "html") {
		bodyHTML = reply.Body.Content
	} else {
		bodyText = reply.Body.Content
	}

	message := &models.ConversationMessage{
		ConversationID:    thread.ConversationID,
		Direction:         enum.MessageInbound,
		FromName:          reply.From.EmailAddress.Name,
		FromAddress:       reply.From.EmailAddress.Address,
		BodyText:          bodyText,
		BodyHTML:          bodyHTML,
		BodyPreview:       BodyPreview(reply.BodyPreview, bodyHTML, bodyText),
		ProviderMessageID: reply.ID,
		InternetMessageID: utils.NormalizeMessageID(reply.InternetMessageID),
		HasAttachments:    reply.HasAttachments,
		ReceivedAt:        reply.ReceivedDateTime,
	}

	if err := s.postgres.ConversationRepository.AppendMessage(ctx, message); err != nil {
		return errors.Wrap(err, "append reply message")
	}

	if reply.HasAttachments {
		if err := s.storeAttachments(ctx, thread, reply); err != nil {
			s.log.Warnf("failed to store attachments for reply %s: %v", reply.ID, err)
		}
	}

	if s.events != nil {
		event := dto.ConversationEvent{
			Type:           dto.EventReplyReceived,
			ConversationID: thread.ConversationID,
			Channel:        enum.ChannelMail.String(),
			OccurredAt:     utils.Now(),
		}
		if err := s.events.PublishConversationEvent(ctx, event); err != nil {
			s.log.Warnf("failed to publish reply event for conversation %s: %v", thread.ConversationID, err)
		}
	}

	return nil
}

func (s *threadTrackerService) storeAttachments(ctx context.Context, thread *models.EmailThread, reply dto.ProviderMessage) error {
	if s.storage == nil {
		return nil
	}

	attachments, err := s.mailClient.ListAttachments(ctx, reply.ID)
	if err != nil {
		return err
	}

	for _, attachment := range attachments {
		data, err := base64.StdEncoding.DecodeString(attachment.ContentBytes)
		if err != nil {
			return errors.Wrapf(err, "decode attachment %s", attachment.ID)
		}

		key := fmt.Sprintf("threads/%s/%s/%s", thread.ID, reply.ID, attachment.Name)
		if err := s.storage.Upload(ctx, key, data, attachment.ContentType); err != nil {
			return errors.Wrapf(err, "upload attachment %s", attachment.ID)
		}
	}

	return nil
}
