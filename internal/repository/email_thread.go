package repository

import (
	"context"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/mknmagx/crmstack/interfaces"
	"github.com/mknmagx/crmstack/internal/models"
	"github.com/mknmagx/crmstack/internal/tracing"
	"github.com/mknmagx/crmstack/internal/utils"
)

type emailThreadRepository struct {
	db *gorm.DB
}

// NewEmailThreadRepository creates a new email thread repository
func NewEmailThreadRepository(db *gorm.DB) interfaces.EmailThreadRepository {
	return &emailThreadRepository{
		db: db,
	}
}

// Create inserts a new tracked thread
func (r *emailThreadRepository) Create(ctx context.Context, thread *models.EmailThread) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailThreadRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if thread == nil {
		err := errors.New("thread cannot be nil")
		tracing.TraceErr(span, err)
		return "", err
	}
	if thread.ProviderConversationID == "" {
		err := errors.New("provider conversation ID cannot be empty")
		tracing.TraceErr(span, err)
		return "", err
	}

	if thread.ID == "" {
		thread.ID = utils.GenerateNanoIDWithPrefix("thread", 16)
	}
	if thread.InternetMessageID != "" {
		thread.InternetMessageID = utils.NormalizeMessageID(thread.InternetMessageID)
	}

	now := utils.Now()
	thread.CreatedAt = now
	thread.UpdatedAt = now

	if err := r.db.WithContext(ctx).Create(thread).Error; err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	return thread.ID, nil
}

// GetByID retrieves a thread by its ID; a missing thread is nil, not an
// error, so callers can map it to their own not-found semantics
func (r *emailThreadRepository) GetByID(ctx context.Context, id string) (*models.EmailThread, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailThreadRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("thread_id", id)

	if id == "" {
		err := errors.New("thread ID cannot be empty")
		tracing.TraceErr(span, err)
		return nil, err
	}

	var thread models.EmailThread
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&thread).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}

	return &thread, nil
}

// GetByProviderConversationID finds the thread tracking a provider conversation
func (r *emailThreadRepository) GetByProviderConversationID(ctx context.Context, providerConversationID string) (*models.EmailThread, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailThreadRepository.GetByProviderConversationID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if providerConversationID == "" {
		err := errors.New("provider conversation ID cannot be empty")
		tracing.TraceErr(span, err)
		return nil, err
	}

	var thread models.EmailThread
	err := r.db.WithContext(ctx).
		Where("provider_conversation_id = ?", providerConversationID).
		First(&thread).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}

	return &thread, nil
}

// GetActive returns all threads still being polled
func (r *emailThreadRepository) GetActive(ctx context.Context) ([]*models.EmailThread, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailThreadRepository.GetActive")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var threads []*models.EmailThread
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at ASC").
		Find(&threads).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.SetTag("count", len(threads))
	return threads, nil
}

// SaveWatermark records the outcome of one poll. The checked-at watermark
// always advances; reply counters advance only when the update carries them.
func (r *emailThreadRepository) SaveWatermark(ctx context.Context, threadID string, update interfaces.WatermarkUpdate) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailThreadRepository.SaveWatermark")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("thread_id", threadID)

	if threadID == "" {
		err := errors.New("thread ID cannot be empty")
		tracing.TraceErr(span, err)
		return err
	}

	updates := map[string]interface{}{
		"last_checked_at": update.CheckedAt,
		"updated_at":      utils.Now(),
	}
	if update.ReplyDelta > 0 {
		updates["reply_count"] = gorm.Expr("reply_count + ?", update.ReplyDelta)
	}
	if update.LastReplyAt != nil {
		updates["last_reply_at"] = update.LastReplyAt
	}

	result := r.db.WithContext(ctx).
		Model(&models.EmailThread{}).
		Where("id = ?", threadID).
		Updates(updates)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		err := fmt.Errorf("thread with ID %s not found", threadID)
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

// Deactivate stops polling a thread; threads are never deleted automatically
func (r *emailThreadRepository) Deactivate(ctx context.Context, threadID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailThreadRepository.Deactivate")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("thread_id", threadID)

	if threadID == "" {
		err := errors.New("thread ID cannot be empty")
		tracing.TraceErr(span, err)
		return err
	}

	result := r.db.WithContext(ctx).
		Model(&models.EmailThread{}).
		Where("id = ?", threadID).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}

	return nil
}
