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

// Repositories over the predecessor system's document collections. These are
// read in bulk by the merger and written by the public website's form
// endpoints; no pagination because the collections are bounded.

type legacyContactRepository struct {
	db *gorm.DB
}

func NewLegacyContactRepository(db *gorm.DB) interfaces.LegacyContactRepository {
	return &legacyContactRepository{db: db}
}

func (r *legacyContactRepository) Create(ctx context.Context, record *models.LegacyContactRequest) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "legacyContactRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if record == nil || record.ID == "" {
		err := errors.New("record and record ID cannot be empty")
		tracing.TraceErr(span, err)
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = utils.Now()
	}

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *legacyContactRepository) List(ctx context.Context) ([]*models.LegacyContactRequest, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "legacyContactRepository.List")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var records []*models.LegacyContactRequest
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&records).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.SetTag("count", len(records))
	return records, nil
}

type legacyQuoteRepository struct {
	db *gorm.DB
}

func NewLegacyQuoteRepository(db *gorm.DB) interfaces.LegacyQuoteRepository {
	return &legacyQuoteRepository{db: db}
}

func (r *legacyQuoteRepository) Create(ctx context.Context, record *models.LegacyQuoteRequest) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "legacyQuoteRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if record == nil || record.ID == "" {
		err := errors.New("record and record ID cannot be empty")
		tracing.TraceErr(span, err)
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = utils.Now()
	}

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *legacyQuoteRepository) List(ctx context.Context) ([]*models.LegacyQuoteRequest, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "legacyQuoteRepository.List")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var records []*models.LegacyQuoteRequest
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&records).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.SetTag("count", len(records))
	return records, nil
}

type legacyEmailRepository struct {
	db *gorm.DB
}

func NewLegacyEmailRepository(db *gorm.DB) interfaces.LegacyEmailRepository {
	return &legacyEmailRepository{db: db}
}

func (r *legacyEmailRepository) Create(ctx context.Context, record *models.LegacyEmailRecord) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "legacyEmailRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if record == nil || record.ID == "" {
		err := errors.New("record and record ID cannot be empty")
		tracing.TraceErr(span, err)
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = utils.Now()
	}

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *legacyEmailRepository) List(ctx context.Context) ([]*models.LegacyEmailRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "legacyEmailRepository.List")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var records []*models.LegacyEmailRecord
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&records).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.SetTag("count", len(records))
	return records, nil
}
