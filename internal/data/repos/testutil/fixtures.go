package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/threadgraph/internal/domain"
)

var fixtureEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// SeedBoardPost inserts one source post; body defaults from the number.
func SeedBoardPost(tb testing.TB, ctx context.Context, tx *gorm.DB, no int64) *types.BoardPost {
	tb.Helper()
	bp := &types.BoardPost{
		No:        no,
		Author:    "anonymous",
		AuthorKey: fmt.Sprintf("ID:key%03d", no%7),
		PostedAt:  fixtureEpoch.Add(time.Duration(no) * time.Minute),
		Body:      fmt.Sprintf("post body %d", no),
	}
	if err := tx.WithContext(ctx).Create(bp).Error; err != nil {
		tb.Fatalf("seed board post %d: %v", no, err)
	}
	return bp
}

// SeedBoardPosts inserts the inclusive range [from, to].
func SeedBoardPosts(tb testing.TB, ctx context.Context, tx *gorm.DB, from, to int64) []*types.BoardPost {
	tb.Helper()
	out := make([]*types.BoardPost, 0, to-from+1)
	for no := from; no <= to; no++ {
		out = append(out, SeedBoardPost(tb, ctx, tx, no))
	}
	return out
}

func SeedPost(tb testing.TB, ctx context.Context, tx *gorm.DB, no int64) *types.Post {
	tb.Helper()
	p := &types.Post{
		ID:        uuid.New(),
		SourceNo:  no,
		Content:   fmt.Sprintf("post body %d", no),
		Timestamp: fixtureEpoch.Add(time.Duration(no) * time.Minute),
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed post %d: %v", no, err)
	}
	return p
}

func SeedRelationship(tb testing.TB, ctx context.Context, tx *gorm.DB, from, to *types.Post, relType string) *types.Relationship {
	tb.Helper()
	rel := types.NewRelationship(from.ID, to.ID, relType, map[string]any{"confidence": types.DefaultReplyConfidence})
	if err := tx.WithContext(ctx).Create(rel).Error; err != nil {
		tb.Fatalf("seed relationship %d->%d: %v", from.SourceNo, to.SourceNo, err)
	}
	return rel
}
