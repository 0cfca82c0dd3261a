package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mknmagx/crmstack/interfaces"
	"github.com/mknmagx/crmstack/internal/models"
	"github.com/mknmagx/crmstack/internal/tracing"
	"github.com/mknmagx/crmstack/internal/utils"
)

// LockStalenessCutoff is the liveness safety valve: a lock held longer than
// this is treated as abandoned by a crashed run and may be taken over. It is
// not a correctness mechanism under adversarial concurrency - contention here
// is one timer plus the occasional operator click.
const LockStalenessCutoff = 10 * time.Minute

type syncStateRepository struct {
	db *gorm.DB
}

// NewSyncStateRepository creates a repository over the singleton sync
// status and lock rows
func NewSyncStateRepository(db *gorm.DB) interfaces.SyncStateRepository {
	return &syncStateRepository{db: db}
}

// AcquireLock takes the persisted sync lock for the given owner. It fails
// closed: any live lock means "no", the requesting owner's own included.
func (r *syncStateRepository) AcquireLock(ctx context.Context, owner string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.AcquireLock")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("owner", owner)

	if owner == "" {
		err := errors.New("lock owner cannot be empty")
		tracing.TraceErr(span, err)
		return false, err
	}

	acquired := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lock models.SyncLock
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", models.SyncLockID).
			First(&lock).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			now := utils.Now()
			lock = models.SyncLock{
				ID:       models.SyncLockID,
				IsLocked: true,
				LockedBy: owner,
				LockedAt: &now,
			}
			if err := tx.Create(&lock).Error; err != nil {
				return err
			}
			acquired = true
			return nil
		}
		if err != nil {
			return err
		}

		if lock.IsLocked {
			// a crashed holder's lock expires after the staleness cutoff
			if lock.LockedAt != nil && utils.Now().Sub(*lock.LockedAt) < LockStalenessCutoff {
				return nil
			}
		}

		now := utils.Now()
		result := tx.Model(&models.SyncLock{}).
			Where("id = ?", models.SyncLockID).
			Updates(map[string]interface{}{
				"is_locked": true,
				"locked_by": owner,
				"locked_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		acquired = true
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return false, err
	}

	span.SetTag("acquired", acquired)
	return acquired, nil
}

// ReleaseLock clears the lock held by the given owner. Releasing a lock the
// owner no longer holds is a no-op, not an error.
func (r *syncStateRepository) ReleaseLock(ctx context.Context, owner string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.ReleaseLock")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("owner", owner)

	result := r.db.WithContext(ctx).
		Model(&models.SyncLock{}).
		Where("id = ? AND locked_by = ?", models.SyncLockID, owner).
		Updates(map[string]interface{}{
			"is_locked": false,
			"locked_by": "",
			"locked_at": nil,
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}

	return nil
}

// GetLock returns the current lock record, or an unlocked placeholder when
// no lock row exists yet
func (r *syncStateRepository) GetLock(ctx context.Context) (*models.SyncLock, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.GetLock")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var lock models.SyncLock
	err := r.db.WithContext(ctx).Where("id = ?", models.SyncLockID).First(&lock).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.SyncLock{ID: models.SyncLockID}, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}

	// an expired lock reads as unlocked
	if lock.IsLocked && lock.LockedAt != nil && utils.Now().Sub(*lock.LockedAt) >= LockStalenessCutoff {
		lock.IsLocked = false
	}

	return &lock, nil
}

// GetStatus returns the singleton sync status row
func (r *syncStateRepository) GetStatus(ctx context.Context) (*models.SyncStatus, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.GetStatus")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var status models.SyncStatus
	err := r.db.WithContext(ctx).Where("id = ?", models.SyncStatusID).First(&status).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.SyncStatus{ID: models.SyncStatusID}, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}

	return &status, nil
}

// RecordSync stamps a sync pass and bumps the counter. Runs on every pass,
// whether or not anything changed. The caller passes the pass start time:
// stamping completion time instead would let the mail-delta watermark jump
// past messages that arrived while the pass was running.
func (r *syncStateRepository) RecordSync(ctx context.Context, syncedBy string, syncedAt time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.RecordSync")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("synced_by", syncedBy)

	now := utils.Now()
	result := r.db.WithContext(ctx).
		Model(&models.SyncStatus{}).
		Where("id = ?", models.SyncStatusID).
		Updates(map[string]interface{}{
			"last_sync_at": syncedAt,
			"last_sync_by": syncedBy,
			"sync_count":   gorm.Expr("sync_count + 1"),
			"updated_at":   now,
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}

	if result.RowsAffected == 0 {
		status := models.SyncStatus{
			ID:         models.SyncStatusID,
			LastSyncAt: &syncedAt,
			LastSyncBy: syncedBy,
			SyncCount:  1,
			UpdatedAt:  now,
		}
		if err := r.db.WithContext(ctx).Create(&status).Error; err != nil {
			tracing.TraceErr(span, err)
			return err
		}
	}

	return nil
}
