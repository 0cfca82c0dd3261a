package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/mknmagx/crmstack/interfaces"
	"github.com/mknmagx/crmstack/internal/models"
	"github.com/mknmagx/crmstack/internal/tracing"
	"github.com/mknmagx/crmstack/internal/utils"
)

type whatsappMessageRepository struct {
	db *gorm.DB
}

func NewWhatsappMessageRepository(db *gorm.DB) interfaces.WhatsappMessageRepository {
	return &whatsappMessageRepository{db: db}
}

func (r *whatsappMessageRepository) Create(ctx context.Context, message *models.WhatsappMessage) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "whatsappMessageRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if message == nil || message.WaContactID == "" {
		err := errors.New("message and wa contact ID cannot be empty")
		tracing.TraceErr(span, err)
		return err
	}

	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *whatsappMessageRepository) ListUnprocessed(ctx context.Context) ([]*models.WhatsappMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "whatsappMessageRepository.ListUnprocessed")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var messages []*models.WhatsappMessage
	err := r.db.WithContext(ctx).
		Where("processed = ?", false).
		Order("sent_at ASC").
		Find(&messages).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.SetTag("count", len(messages))
	return messages, nil
}

func (r *whatsappMessageRepository) MarkProcessed(ctx context.Context, ids []string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "whatsappMessageRepository.MarkProcessed")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if len(ids) == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).
		Model(&models.WhatsappMessage{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"processed":    true,
			"processed_at": utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	return nil
}
