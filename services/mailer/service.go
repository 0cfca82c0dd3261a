package mailer

import (
	"context"

	"github.com/customeros/mailsherpa/mailvalidate"
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

var (
	ErrNoRecipients    = errors.New("at least one recipient is required")
	ErrInvalidEmail    = errors.New("recipient address is not valid")
	ErrThreadNotFound  = errors.New("thread not found")
	ErrThreadNotActive = errors.New("thread is no longer active")
)

type emailService struct {
	log           logger.Logger
	cfg           *config.MailProviderConfig
	postgres      *repository.Repositories
	mailClient    interfaces.MailProviderClient
	threadTracker interfaces.ThreadTrackerService
}

func NewEmailService(
	log logger.Logger,
	cfg *config.MailProviderConfig,
	postgres *repository.Repositories,
	mailClient interfaces.MailProviderClient,
	threadTracker interfaces.ThreadTrackerService,
) interfaces.EmailService {
	return &emailService{
		log:           log,
		cfg:           cfg,
		postgres:      postgres,
		mailClient:    mailClient,
		threadTracker: threadTracker,
	}
}

// SendEmail validates the recipients, sends through the provider, registers
// the resulting thread for reply polling and, when the mail belongs to a
// conversation, appends the outbound message to its timeline.
func (s *emailService) SendEmail(ctx context.Context, request dto.SendEmailRequest) (*dto.SendEmailResponse, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "EmailService.SendEmail")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("subject", request.Subject, "recipients", len(request.To))

	if len(request.To) == 0 {
		tracing.TraceErr(span, ErrNoRecipients)
		return nil, ErrNoRecipients
	}

	cleanTo, err := validateRecipients(request.To)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	cleanCc, err := validateRecipients(request.Cc)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	sendResult, err := s.mailClient.SendMessage(ctx, dto.SendMessageRequest{
		Subject:     request.Subject,
		BodyHTML:    request.BodyHTML,
		BodyText:    request.BodyText,
		To:          cleanTo,
		Cc:          cleanCc,
		SaveToSent:  true,
		Correlation: request.ConversationID,
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	thread, err := s.threadTracker.RegisterThread(ctx, *sendResult, request.Subject, request.ConversationID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	tracing.TagEntity(span, thread.ID)

	if request.ConversationID != "" {
		if err := s.appendOutboundMessage(ctx, request, sendResult); err != nil {
			tracing.TraceErr(span, err)
			s.log.Errorf("failed to append outbound message to conversation %s: %v", request.ConversationID, err)
		}
	}

	return &dto.SendEmailResponse{
		ThreadID:          thread.ID,
		ConversationID:    request.ConversationID,
		ProviderMessageID: sendResult.MessageID,
		InternetMessageID: sendResult.InternetMessageID,
	}, nil
}

// ReplyToThread sends a provider-side reply on the tracked conversation. The
// reply lands in the thread's sent items; the customer's answer comes back
// through the regular polling cycle.
func (s *emailService) ReplyToThread(ctx context.Context, threadID string, comment string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "EmailService.ReplyToThread")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, threadID)

	thread, err := s.postgres.EmailThreadRepository.GetByID(ctx, threadID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if thread == nil {
		tracing.TraceErr(span, ErrThreadNotFound)
		return ErrThreadNotFound
	}
	if !thread.IsActive {
		tracing.TraceErr(span, ErrThreadNotActive)
		return ErrThreadNotActive
	}

	if err := s.mailClient.ReplyToMessage(ctx, thread.ProviderMessageID, comment); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if thread.ConversationID != "" {
		message := &models.ConversationMessage{
			ConversationID: thread.ConversationID,
			Direction:      enum.MessageOutbound,
			FromAddress:    s.cfg.SenderAddress,
			BodyText:       comment,
			BodyPreview:    truncatePreview(comment),
			ReceivedAt:     utils.Now(),
		}
		if err := s.postgres.ConversationRepository.AppendMessage(ctx, message); err != nil {
			tracing.TraceErr(span, err)
			s.log.Errorf("failed to append reply to conversation %s: %v", thread.ConversationID, err)
		}
	}

	return nil
}

func (s *emailService) appendOutboundMessage(ctx context.Context, request dto.SendEmailRequest, sendResult *dto.SendMessageResult) error {
	message := &models.ConversationMessage{
		ConversationID:    request.ConversationID,
		Direction:         enum.MessageOutbound,
		FromAddress:       s.cfg.SenderAddress,
		BodyText:          request.BodyText,
		BodyHTML:          request.BodyHTML,
		BodyPreview:       truncatePreview(previewSource(request)),
		ProviderMessageID: sendResult.MessageID,
		InternetMessageID: utils.NormalizeMessageID(sendResult.InternetMessageID),
		ReceivedAt:        utils.Now(),
	}
	return s.postgres.ConversationRepository.AppendMessage(ctx, message)
}

func validateRecipients(addresses []string) ([]string, error) {
	if addresses == nil {
		return nil, nil
	}
	clean := make([]string, 0, len(addresses))
	for _, address := range addresses {
		validation := mailvalidate.ValidateEmailSyntax(address)
		if !validation.IsValid {
			return nil, errors.Wrap(ErrInvalidEmail, address)
		}
		clean = append(clean, validation.CleanEmail)
	}
	return clean, nil
}

func previewSource(request dto.SendEmailRequest) string {
	if request.BodyText != "" {
		return request.BodyText
	}
	return request.BodyHTML
}

func truncatePreview(text string) string {
	return utils.TruncateOnRuneBoundary(text, 500)
}
