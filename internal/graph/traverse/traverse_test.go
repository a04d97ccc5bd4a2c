package traverse

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	graphrepo "github.com/yungbote/threadgraph/internal/data/repos/graph"
	"github.com/yungbote/threadgraph/internal/data/repos/testutil"
	types "github.com/yungbote/threadgraph/internal/domain"
)

func newTraverser(t *testing.T, gdb *gorm.DB, maxDepth, maxNodes int) *Traverser {
	t.Helper()
	log := testutil.Logger(t)
	tr, err := NewTraverser(log, graphrepo.NewPostRepo(gdb, log), graphrepo.NewRelationshipRepo(gdb, log), maxDepth, maxNodes)
	if err != nil {
		t.Fatalf("NewTraverser: %v", err)
	}
	return tr
}

func nos(posts []*types.Post) []int64 {
	out := make([]int64, len(posts))
	for i, p := range posts {
		out[i] = p.SourceNo
	}
	return out
}

func equalNos(a []int64, b ...int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRelatedPostsReplyChain(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.DB(t)

	n1 := testutil.SeedPost(t, ctx, gdb, 1)
	n3 := testutil.SeedPost(t, ctx, gdb, 3)
	n5 := testutil.SeedPost(t, ctx, gdb, 5)
	testutil.SeedRelationship(t, ctx, gdb, n5, n3, types.RelationReplyTo)
	testutil.SeedRelationship(t, ctx, gdb, n3, n1, types.RelationReplyTo)

	tr := newTraverser(t, gdb, 2, 50)
	posts, err := tr.RelatedPosts(ctx, nil, []uuid.UUID{n5.ID}, []string{types.RelationReplyTo})
	if err != nil {
		t.Fatalf("RelatedPosts: %v", err)
	}
	if got := nos(posts); !equalNos(got, 1, 3, 5) {
		t.Fatalf("depth 2: want=[1 3 5] got=%v", got)
	}

	shallow := newTraverser(t, gdb, 1, 50)
	posts, err = shallow.RelatedPosts(ctx, nil, []uuid.UUID{n5.ID}, []string{types.RelationReplyTo})
	if err != nil {
		t.Fatalf("RelatedPosts: %v", err)
	}
	if got := nos(posts); !equalNos(got, 3, 5) {
		t.Fatalf("depth 1: want=[3 5] got=%v", got)
	}
}

func TestRelatedPostsFollowsBothDirections(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.DB(t)

	n1 := testutil.SeedPost(t, ctx, gdb, 1)
	n2 := testutil.SeedPost(t, ctx, gdb, 2)
	// Edge points away from n1; traversal from n2 must still reach it.
	testutil.SeedRelationship(t, ctx, gdb, n1, n2, types.RelationReplyTo)

	tr := newTraverser(t, gdb, 1, 50)
	posts, err := tr.RelatedPosts(ctx, nil, []uuid.UUID{n2.ID}, []string{types.RelationReplyTo})
	if err != nil {
		t.Fatalf("RelatedPosts: %v", err)
	}
	if got := nos(posts); !equalNos(got, 1, 2) {
		t.Fatalf("want=[1 2] got=%v", got)
	}
}

func TestRelatedPostsTypeFilter(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.DB(t)

	n1 := testutil.SeedPost(t, ctx, gdb, 1)
	n2 := testutil.SeedPost(t, ctx, gdb, 2)
	n3 := testutil.SeedPost(t, ctx, gdb, 3)
	testutil.SeedRelationship(t, ctx, gdb, n3, n2, types.RelationReplyTo)
	testutil.SeedRelationship(t, ctx, gdb, n3, n1, types.RelationSequentialTo)

	tr := newTraverser(t, gdb, 2, 50)
	posts, err := tr.RelatedPosts(ctx, nil, []uuid.UUID{n3.ID}, []string{types.RelationReplyTo})
	if err != nil {
		t.Fatalf("RelatedPosts: %v", err)
	}
	if got := nos(posts); !equalNos(got, 2, 3) {
		t.Fatalf("reply filter: want=[2 3] got=%v", got)
	}
}

func TestRelatedPostsCycleTerminates(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.DB(t)

	n1 := testutil.SeedPost(t, ctx, gdb, 1)
	n2 := testutil.SeedPost(t, ctx, gdb, 2)
	n3 := testutil.SeedPost(t, ctx, gdb, 3)
	testutil.SeedRelationship(t, ctx, gdb, n1, n2, types.RelationReplyTo)
	testutil.SeedRelationship(t, ctx, gdb, n2, n3, types.RelationReplyTo)
	testutil.SeedRelationship(t, ctx, gdb, n3, n1, types.RelationReplyTo)

	tr := newTraverser(t, gdb, 10, 50)
	posts, err := tr.RelatedPosts(ctx, nil, []uuid.UUID{n1.ID}, []string{types.RelationReplyTo})
	if err != nil {
		t.Fatalf("RelatedPosts: %v", err)
	}
	if got := nos(posts); !equalNos(got, 1, 2, 3) {
		t.Fatalf("cycle: want=[1 2 3] got=%v", got)
	}
}

func TestRelatedPostsMaxNodesCap(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.DB(t)

	hub := testutil.SeedPost(t, ctx, gdb, 1)
	for no := int64(2); no <= 10; no++ {
		leaf := testutil.SeedPost(t, ctx, gdb, no)
		testutil.SeedRelationship(t, ctx, gdb, hub, leaf, types.RelationReplyTo)
	}

	tr := newTraverser(t, gdb, 3, 4)
	posts, err := tr.RelatedPosts(ctx, nil, []uuid.UUID{hub.ID}, []string{types.RelationReplyTo})
	if err != nil {
		t.Fatalf("RelatedPosts: %v", err)
	}
	if len(posts) != 4 {
		t.Fatalf("want 4 posts (capped), got %d", len(posts))
	}
	// Lower source numbers win the remaining slots.
	if got := nos(posts); !equalNos(got, 1, 2, 3, 4) {
		t.Fatalf("capped result: want=[1 2 3 4] got=%v", got)
	}
}

func TestRelatedPostsEmptySeeds(t *testing.T) {
	gdb := testutil.DB(t)
	tr := newTraverser(t, gdb, 3, 50)
	posts, err := tr.RelatedPosts(context.Background(), nil, nil, []string{types.RelationReplyTo})
	if err != nil {
		t.Fatalf("RelatedPosts: %v", err)
	}
	if len(posts) != 0 {
		t.Fatalf("want empty result, got %d", len(posts))
	}
}

func TestConversationContext(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.DB(t)

	n1 := testutil.SeedPost(t, ctx, gdb, 1)
	n2 := testutil.SeedPost(t, ctx, gdb, 2)
	n3 := testutil.SeedPost(t, ctx, gdb, 3)
	testutil.SeedRelationship(t, ctx, gdb, n3, n1, types.RelationReplyTo)
	testutil.SeedRelationship(t, ctx, gdb, n2, n3, types.RelationSequentialTo)

	tr := newTraverser(t, gdb, 3, 50)
	conv, err := tr.ConversationContext(ctx, nil, []uuid.UUID{n3.ID})
	if err != nil {
		t.Fatalf("ConversationContext: %v", err)
	}

	if got := nos(conv.Posts); !equalNos(got, 1, 2, 3) {
		t.Fatalf("context posts: want=[1 2 3] got=%v", got)
	}
	if conv.Stats.TotalPosts != 3 {
		t.Fatalf("stats total_posts: want=3 got=%d", conv.Stats.TotalPosts)
	}
	if conv.Stats.ReplyPosts != 2 {
		t.Fatalf("stats reply_posts: want=2 got=%d", conv.Stats.ReplyPosts)
	}
	if conv.Stats.SequentialPosts != 2 {
		t.Fatalf("stats sequential_posts: want=2 got=%d", conv.Stats.SequentialPosts)
	}
	if conv.Stats.TotalRelationships != 2 {
		t.Fatalf("stats total_relationships: want=2 got=%d", conv.Stats.TotalRelationships)
	}
}

func TestFormatContext(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.DB(t)

	n1 := testutil.SeedPost(t, ctx, gdb, 1)
	n3 := testutil.SeedPost(t, ctx, gdb, 3)
	testutil.SeedRelationship(t, ctx, gdb, n3, n1, types.RelationReplyTo)

	tr := newTraverser(t, gdb, 3, 50)
	conv, err := tr.ConversationContext(ctx, nil, []uuid.UUID{n3.ID})
	if err != nil {
		t.Fatalf("ConversationContext: %v", err)
	}

	out := FormatContext(conv)
	for _, want := range []string{
		"=== CONVERSATION CONTEXT ===",
		"No.1 (",
		"No.3 (",
		"- No.3 REPLY_TO No.1",
		"=== STATISTICS ===",
		"- total_posts: 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("formatted context missing %q:\n%s", want, out)
		}
	}
}
