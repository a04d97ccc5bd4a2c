package source

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/threadgraph/internal/domain"
	"github.com/yungbote/threadgraph/internal/platform/logger"
)

// BoardPostRepo reads the append-only source thread. Pages are strictly
// increasing in post number; a connectivity failure surfaces as an error and is
// never collapsed into an empty page, so callers can tell "no new data" apart
// from "source unreachable".
type BoardPostRepo interface {
	ReadAfter(ctx context.Context, tx *gorm.DB, lastNo int64, limit int) ([]*types.BoardPost, error)
	ReadFromNo(ctx context.Context, tx *gorm.DB, startNo int64, limit int) ([]*types.BoardPost, error)
	MaxNo(ctx context.Context, tx *gorm.DB) (int64, error)
	CountAfter(ctx context.Context, tx *gorm.DB, lastNo int64) (int64, error)
}

type boardPostRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBoardPostRepo(db *gorm.DB, baseLog *logger.Logger) BoardPostRepo {
	return &boardPostRepo{db: db, log: baseLog.With("repo", "BoardPostRepo")}
}

func (r *boardPostRepo) ReadAfter(ctx context.Context, tx *gorm.DB, lastNo int64, limit int) ([]*types.BoardPost, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		return []*types.BoardPost{}, nil
	}
	var results []*types.BoardPost
	if err := transaction.WithContext(ctx).
		Where("no > ?", lastNo).
		Order("no ASC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("read board posts after no=%d: %w", lastNo, err)
	}
	return results, nil
}

// ReadFromNo returns posts with no >= startNo, used by the index builder when
// rebuilding windows across the incremental boundary.
func (r *boardPostRepo) ReadFromNo(ctx context.Context, tx *gorm.DB, startNo int64, limit int) ([]*types.BoardPost, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		return []*types.BoardPost{}, nil
	}
	var results []*types.BoardPost
	if err := transaction.WithContext(ctx).
		Where("no >= ?", startNo).
		Order("no ASC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("read board posts from no=%d: %w", startNo, err)
	}
	return results, nil
}

func (r *boardPostRepo) MaxNo(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var max *int64
	if err := transaction.WithContext(ctx).
		Model(&types.BoardPost{}).
		Select("MAX(no)").
		Scan(&max).Error; err != nil {
		return 0, fmt.Errorf("max board post no: %w", err)
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

func (r *boardPostRepo) CountAfter(ctx context.Context, tx *gorm.DB, lastNo int64) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.BoardPost{}).
		Where("no > ?", lastNo).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count board posts after no=%d: %w", lastNo, err)
	}
	return count, nil
}
