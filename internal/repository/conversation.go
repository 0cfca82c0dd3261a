package repository

import (
	"context"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mknmagx/crmstack/interfaces"
	"github.com/mknmagx/crmstack/internal/enum"
	"github.com/mknmagx/crmstack/internal/models"
	"github.com/mknmagx/crmstack/internal/tracing"
	"github.com/mknmagx/crmstack/internal/utils"
)

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(db *gorm.DB) interfaces.ConversationRepository {
	return &conversationRepository{
		db: db,
	}
}

// Create inserts a new canonical conversation
func (r *conversationRepository) Create(ctx context.Context, conversation *models.Conversation) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "conversationRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if conversation == nil {
		err := errors.New("conversation cannot be nil")
		tracing.TraceErr(span, err)
		return "", err
	}
	if conversation.Channel == "" {
		err := errors.New("conversation channel cannot be empty")
		tracing.TraceErr(span, err)
		return "", err
	}

	if conversation.ID == "" {
		conversation.ID = utils.GenerateNanoIDWithPrefix("conv", 16)
	}
	if conversation.Status == "" {
		conversation.Status = enum.ConversationOpen
	}
	if conversation.Priority == "" {
		conversation.Priority = enum.PriorityNormal
	}

	now := utils.Now()
	conversation.CreatedAt = now
	conversation.UpdatedAt = now

	if err := r.db.WithContext(ctx).Create(conversation).Error; err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	return conversation.ID, nil
}

// GetByID retrieves a conversation by its ID
func (r *conversationRepository) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "conversationRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("conversation_id", id)

	if id == "" {
		err := errors.New("conversation ID cannot be empty")
		tracing.TraceErr(span, err)
		return nil, err
	}

	var conversation models.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&conversation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			notFoundErr := fmt.Errorf("conversation with ID %s not found", id)
			tracing.TraceErr(span, notFoundErr)
			return nil, notFoundErr
		}
		tracing.TraceErr(span, err)
		return nil, err
	}

	return &conversation, nil
}

// GetBySourceRef looks a conversation up by its originating legacy record
func (r *conversationRepository) GetBySourceRef(ctx context.Context, sourceType enum.SourceType, sourceID string) (*models.Conversation, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "conversationRepository.GetBySourceRef")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("source_type", sourceType.String())
	span.SetTag("source_id", sourceID)

	var conversation models.Conversation
	err := r.db.WithContext(ctx).
		Where("source_type = ? AND source_id = ?", sourceType, sourceID).
		First(&conversation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}

	return &conversation, nil
}

// ListSourceRefKeys bulk-reads every non-null source ref into a set keyed as
// "<type>_<id>". One large read instead of a per-record existence query: the
// store cannot efficiently match nested refs without this.
func (r *conversationRepository) ListSourceRefKeys(ctx context.Context) (map[string]struct{}, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "conversationRepository.ListSourceRefKeys")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	type sourceRef struct {
		SourceType string
		SourceID   string
	}

	var refs []sourceRef
	err := r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Select("source_type, source_id").
		Where("source_type IS NOT NULL AND source_id IS NOT NULL").
		Find(&refs).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	keys := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		keys[models.SourceRefKey(enum.SourceType(ref.SourceType), ref.SourceID)] = struct{}{}
	}

	span.SetTag("count", len(keys))
	return keys, nil
}

// List retrieves conversations ordered by last activity
func (r *conversationRepository) List(ctx context.Context, filter interfaces.ConversationListFilter) ([]*models.Conversation, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "conversationRepository.List")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	query := r.db.WithContext(ctx).Model(&models.Conversation{})
	if filter.Channel != "" {
		query = query.Where("channel = ?", filter.Channel)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var conversations []*models.Conversation
	err := query.
		Order("last_message_at DESC NULLS LAST, created_at DESC").
		Find(&conversations).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	return conversations, nil
}

// Update applies status/priority/assignee changes
func (r *conversationRepository) Update(ctx context.Context, id string, update interfaces.ConversationUpdate) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "conversationRepository.Update")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("conversation_id", id)

	if id == "" {
		err := errors.New("conversation ID cannot be empty")
		tracing.TraceErr(span, err)
		return err
	}

	updates := map[string]interface{}{
		"updated_at": utils.Now(),
	}
	if update.Status != nil {
		updates["status"] = *update.Status
	}
	if update.Priority != nil {
		updates["priority"] = *update.Priority
	}
	if update.AssignedTo != nil {
		updates["assigned_to"] = *update.AssignedTo
	}

	if len(updates) == 1 {
		return nil
	}

	result := r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		err := fmt.Errorf("conversation with ID %s not found", id)
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

// AppendMessage atomically stores a timeline message and bumps the owning
// conversation's message count and last-message time
func (r *conversationRepository) AppendMessage(ctx context.Context, message *models.ConversationMessage) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "conversationRepository.AppendMessage")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if message == nil || message.ConversationID == "" {
		err := errors.New("message and conversation ID cannot be empty")
		tracing.TraceErr(span, err)
		return err
	}
	span.SetTag("conversation_id", message.ConversationID)

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		tracing.TraceErr(span, tx.Error)
		return tx.Error
	}

	// Lock the conversation row for update
	var conversation models.Conversation
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", message.ConversationID).
		First(&conversation).Error
	if err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			notFoundErr := fmt.Errorf("conversation with ID %s not found", message.ConversationID)
			tracing.TraceErr(span, notFoundErr)
			return notFoundErr
		}
		tracing.TraceErr(span, err)
		return err
	}

	if err := tx.Create(message).Error; err != nil {
		tx.Rollback()
		tracing.TraceErr(span, err)
		return err
	}

	updates := map[string]interface{}{
		"message_count": gorm.Expr("message_count + 1"),
		"updated_at":    utils.Now(),
	}
	// Only advance last_message_at when the new message is more recent
	if conversation.LastMessageAt == nil || message.ReceivedAt.After(*conversation.LastMessageAt) {
		updates["last_message_at"] = message.ReceivedAt
	}

	result := tx.Model(&models.Conversation{}).
		Where("id = ?", message.ConversationID).
		Updates(updates)
	if result.Error != nil {
		tx.Rollback()
		tracing.TraceErr(span, result.Error)
		return result.Error
	}

	if err := tx.Commit().Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

// ListMessages returns a conversation's timeline, oldest first
func (r *conversationRepository) ListMessages(ctx context.Context, conversationID string) ([]*models.ConversationMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "conversationRepository.ListMessages")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("conversation_id", conversationID)

	if conversationID == "" {
		err := errors.New("conversation ID cannot be empty")
		tracing.TraceErr(span, err)
		return nil, err
	}

	var messages []*models.ConversationMessage
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("received_at ASC").
		Find(&messages).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	return messages, nil
}
