package interfaces

import (
	"context"
	"time"

	"github.com/mknmagx/crmstack/internal/models"
)

type SyncStateRepository interface {
	// AcquireLock attempts to take the singleton sync lock for the given
	// owner. Returns false without error when any live lock exists, even
	// one held under the same owner; a lock older than the staleness
	// cutoff is treated as abandoned and taken over.
	AcquireLock(ctx context.Context, owner string) (bool, error)
	ReleaseLock(ctx context.Context, owner string) error
	GetLock(ctx context.Context) (*models.SyncLock, error)

	GetStatus(ctx context.Context) (*models.SyncStatus, error)
	// RecordSync bumps the sync counter and stamps who ran the pass and
	// when it started.
	RecordSync(ctx context.Context, syncedBy string, syncedAt time.Time) error
}
