package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/threadgraph/internal/domain"
	pkgerr "github.com/yungbote/threadgraph/internal/pkg/errors"
	"github.com/yungbote/threadgraph/internal/platform/logger"
)

// PostRepo stores and queries graph nodes. One node exists per distinct
// source_no; re-upserting an already-synchronized post only bumps updated_at.
type PostRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, post *types.Post) error
	MaxSourceNo(ctx context.Context, tx *gorm.DB) (int64, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Post, error)
	GetBySourceNo(ctx context.Context, tx *gorm.DB, no int64) (*types.Post, error)
	GetBySourceNos(ctx context.Context, tx *gorm.DB, nos []int64) ([]*types.Post, error)
	GetRecentBefore(ctx context.Context, tx *gorm.DB, no int64, limit int) ([]*types.Post, error)
	GetFollowing(ctx context.Context, tx *gorm.DB, no int64, window int) ([]*types.Post, error)
}

type postRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostRepo(db *gorm.DB, baseLog *logger.Logger) PostRepo {
	return &postRepo{db: db, log: baseLog.With("repo", "PostRepo")}
}

func (r *postRepo) Upsert(ctx context.Context, tx *gorm.DB, post *types.Post) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if post == nil || post.ID == uuid.Nil {
		return pkgerr.ErrInvalidArgument
	}
	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_no"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"updated_at": time.Now().UTC()}),
		}).
		Create(post).Error; err != nil {
		return fmt.Errorf("upsert post no=%d: %w", post.SourceNo, err)
	}
	return nil
}

func (r *postRepo) MaxSourceNo(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var max *int64
	if err := transaction.WithContext(ctx).
		Model(&types.Post{}).
		Select("MAX(source_no)").
		Scan(&max).Error; err != nil {
		return 0, fmt.Errorf("max post source_no: %w", err)
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

func (r *postRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Post, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Post
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Order("source_no ASC").
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("posts by ids: %w", err)
	}
	return results, nil
}

func (r *postRepo) GetBySourceNo(ctx context.Context, tx *gorm.DB, no int64) (*types.Post, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var post types.Post
	err := transaction.WithContext(ctx).
		Where("source_no = ?", no).
		First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("post by source_no=%d: %w", no, err)
	}
	return &post, nil
}

func (r *postRepo) GetBySourceNos(ctx context.Context, tx *gorm.DB, nos []int64) ([]*types.Post, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Post
	if len(nos) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("source_no IN ?", nos).
		Order("source_no ASC").
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("posts by source_nos: %w", err)
	}
	return results, nil
}

// GetRecentBefore returns up to limit posts with source_no < no, newest first.
// The inference engine reverses them back into chronological order.
func (r *postRepo) GetRecentBefore(ctx context.Context, tx *gorm.DB, no int64, limit int) ([]*types.Post, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Post
	if limit <= 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("source_no < ?", no).
		Order("source_no DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("posts before no=%d: %w", no, err)
	}
	return results, nil
}

// GetFollowing returns posts with no < source_no <= no+window, ascending.
func (r *postRepo) GetFollowing(ctx context.Context, tx *gorm.DB, no int64, window int) ([]*types.Post, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Post
	if window <= 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("source_no > ? AND source_no <= ?", no, no+int64(window)).
		Order("source_no ASC").
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("posts following no=%d: %w", no, err)
	}
	return results, nil
}
