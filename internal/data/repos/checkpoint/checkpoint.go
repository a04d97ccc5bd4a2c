package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/threadgraph/internal/domain"
	"github.com/yungbote/threadgraph/internal/platform/logger"
)

// Repo manages the singleton sync checkpoint row. Advance is monotonic: a
// lower watermark than the stored one is rejected, so a misbehaving caller can
// never move sync progress backwards.
type Repo interface {
	Ensure(ctx context.Context, tx *gorm.DB) error
	Get(ctx context.Context, tx *gorm.DB) (*types.SyncCheckpoint, error)
	Advance(ctx context.Context, tx *gorm.DB, no int64) error
}

type repo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRepo(db *gorm.DB, baseLog *logger.Logger) Repo {
	return &repo{db: db, log: baseLog.With("repo", "CheckpointRepo")}
}

// Ensure creates the singleton row at watermark 0 if it does not exist yet.
func (r *repo) Ensure(ctx context.Context, tx *gorm.DB) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	cp := &types.SyncCheckpoint{
		ID:              types.CheckpointSingletonID,
		LastProcessedNo: 0,
		LastUpdate:      time.Now().UTC(),
	}
	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(cp).Error; err != nil {
		return fmt.Errorf("ensure sync checkpoint: %w", err)
	}
	return nil
}

func (r *repo) Get(ctx context.Context, tx *gorm.DB) (*types.SyncCheckpoint, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var cp types.SyncCheckpoint
	err := transaction.WithContext(ctx).
		Where("id = ?", types.CheckpointSingletonID).
		First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &types.SyncCheckpoint{ID: types.CheckpointSingletonID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sync checkpoint: %w", err)
	}
	return &cp, nil
}

func (r *repo) Advance(ctx context.Context, tx *gorm.DB, no int64) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := r.Ensure(ctx, transaction); err != nil {
		return err
	}
	res := transaction.WithContext(ctx).
		Model(&types.SyncCheckpoint{}).
		Where("id = ? AND last_processed_no <= ?", types.CheckpointSingletonID, no).
		Updates(map[string]interface{}{
			"last_processed_no": no,
			"last_update":       time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("advance sync checkpoint to no=%d: %w", no, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("advance sync checkpoint to no=%d: watermark would move backwards", no)
	}
	return nil
}
