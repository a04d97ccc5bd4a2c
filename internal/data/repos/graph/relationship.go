package graph

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/threadgraph/internal/domain"
	"github.com/yungbote/threadgraph/internal/platform/logger"
)

// RelationshipRepo stores typed edges. Insertion is idempotent: a conflict on
// the (source, target, type) unique index is silently skipped.
type RelationshipRepo interface {
	Insert(ctx context.Context, tx *gorm.DB, rels []*types.Relationship) error
	GetAmong(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Relationship, error)
	GetTouching(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, relTypes []string) ([]*types.Relationship, error)
	CountByType(ctx context.Context, tx *gorm.DB, relType string) (int64, error)
}

type relationshipRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRelationshipRepo(db *gorm.DB, baseLog *logger.Logger) RelationshipRepo {
	return &relationshipRepo{db: db, log: baseLog.With("repo", "RelationshipRepo")}
}

func (r *relationshipRepo) Insert(ctx context.Context, tx *gorm.DB, rels []*types.Relationship) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rels) == 0 {
		return nil
	}
	for _, rel := range rels {
		if rel == nil || rel.SourceNodeID == uuid.Nil || rel.TargetNodeID == uuid.Nil || rel.Type == "" {
			return fmt.Errorf("insert relationships: incomplete edge")
		}
	}
	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_node_id"}, {Name: "target_node_id"}, {Name: "type"}},
			DoNothing: true,
		}).
		Create(rels).Error; err != nil {
		return fmt.Errorf("insert relationships: %w", err)
	}
	return nil
}

// GetAmong returns edges whose both endpoints are inside the given id set.
func (r *relationshipRepo) GetAmong(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Relationship, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Relationship
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("source_node_id IN ? AND target_node_id IN ?", ids, ids).
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("relationships among nodes: %w", err)
	}
	return results, nil
}

// GetTouching returns edges with either endpoint in the id set, optionally
// restricted to the given types. This is the per-layer query of the traverser.
func (r *relationshipRepo) GetTouching(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, relTypes []string) ([]*types.Relationship, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Relationship
	if len(ids) == 0 {
		return results, nil
	}
	q := transaction.WithContext(ctx).
		Where("source_node_id IN ? OR target_node_id IN ?", ids, ids)
	if len(relTypes) > 0 {
		q = q.Where("type IN ?", relTypes)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, fmt.Errorf("relationships touching nodes: %w", err)
	}
	return results, nil
}

func (r *relationshipRepo) CountByType(ctx context.Context, tx *gorm.DB, relType string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	q := transaction.WithContext(ctx).Model(&types.Relationship{})
	if relType != "" {
		q = q.Where("type = ?", relType)
	}
	if err := q.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count relationships: %w", err)
	}
	return count, nil
}
