package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/threadgraph/internal/data/repos/checkpoint"
	graphrepo "github.com/yungbote/threadgraph/internal/data/repos/graph"
	"github.com/yungbote/threadgraph/internal/data/repos/source"
	"github.com/yungbote/threadgraph/internal/data/repos/testutil"
	types "github.com/yungbote/threadgraph/internal/domain"
	"github.com/yungbote/threadgraph/internal/graph/infer"
)

type fakeOracle struct {
	answer    string
	failOn    int // 1-based call number that fails; 0 = never
	callCount int
}

func (f *fakeOracle) GenerateText(context.Context, string, string) (string, error) {
	f.callCount++
	if f.failOn > 0 && f.callCount == f.failOn {
		return "", errors.New("oracle unavailable")
	}
	return f.answer, nil
}

type harness struct {
	db           *gorm.DB
	orchestrator *Orchestrator
	engine       *infer.Engine
	posts        graphrepo.PostRepo
	rels         graphrepo.RelationshipRepo
	checkpoint   checkpoint.Repo
}

func newHarness(t *testing.T, oracle infer.Oracle, batchSize int) *harness {
	t.Helper()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)

	posts := graphrepo.NewPostRepo(gdb, log)
	rels := graphrepo.NewRelationshipRepo(gdb, log)
	cp := checkpoint.NewRepo(gdb, log)
	boardPosts := source.NewBoardPostRepo(gdb, log)

	engine, err := infer.NewEngine(log, posts, oracle, 50, 20)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	orch, err := NewOrchestrator(log, gdb, boardPosts, posts, rels, cp, engine, Config{
		BatchSize: batchSize,
		Interval:  time.Second,
	})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return &harness{db: gdb, orchestrator: orch, engine: engine, posts: posts, rels: rels, checkpoint: cp}
}

func (h *harness) postCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := h.db.Model(&types.Post{}).Count(&n).Error; err != nil {
		t.Fatalf("count posts: %v", err)
	}
	return n
}

func (h *harness) relCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := h.db.Model(&types.Relationship{}).Count(&n).Error; err != nil {
		t.Fatalf("count relationships: %v", err)
	}
	return n
}

func (h *harness) watermark(t *testing.T) int64 {
	t.Helper()
	cp, err := h.checkpoint.Get(context.Background(), nil)
	if err != nil {
		t.Fatalf("get checkpoint: %v", err)
	}
	return cp.LastProcessedNo
}

func TestSyncBatchProcessesNewPosts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeOracle{answer: "NONE"}, 100)
	testutil.SeedBoardPosts(t, ctx, h.db, 1, 5)

	n, err := h.orchestrator.SyncBatch(ctx)
	if err != nil {
		t.Fatalf("SyncBatch: %v", err)
	}
	if n != 5 {
		t.Fatalf("synced: want=5 got=%d", n)
	}
	if got := h.postCount(t); got != 5 {
		t.Fatalf("graph posts: want=5 got=%d", got)
	}
	if got := h.watermark(t); got != 5 {
		t.Fatalf("watermark: want=5 got=%d", got)
	}

	p, err := h.posts.GetBySourceNo(ctx, nil, 3)
	if err != nil {
		t.Fatalf("GetBySourceNo: %v", err)
	}
	if p.Content != "post body 3" {
		t.Fatalf("post content: want=%q got=%q", "post body 3", p.Content)
	}
}

func TestSyncBatchCreatesReplyEdges(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeOracle{answer: "1"}, 100)
	testutil.SeedBoardPosts(t, ctx, h.db, 1, 3)

	if _, err := h.orchestrator.SyncBatch(ctx); err != nil {
		t.Fatalf("SyncBatch: %v", err)
	}

	// Posts 2 and 3 each reply to post 1; post 1 has no context.
	replies, err := h.rels.CountByType(ctx, nil, types.RelationReplyTo)
	if err != nil {
		t.Fatalf("CountByType: %v", err)
	}
	if replies != 2 {
		t.Fatalf("reply edges: want=2 got=%d", replies)
	}
}

func TestSyncBatchNoNewDataIsNoOp(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeOracle{answer: "NONE"}, 100)
	testutil.SeedBoardPosts(t, ctx, h.db, 1, 3)

	if _, err := h.orchestrator.SyncBatch(ctx); err != nil {
		t.Fatalf("first SyncBatch: %v", err)
	}
	postsBefore, relsBefore, markBefore := h.postCount(t), h.relCount(t), h.watermark(t)

	n, err := h.orchestrator.SyncBatch(ctx)
	if err != nil {
		t.Fatalf("second SyncBatch: %v", err)
	}
	if n != 0 {
		t.Fatalf("second pass synced %d posts, want 0", n)
	}
	if h.postCount(t) != postsBefore || h.relCount(t) != relsBefore || h.watermark(t) != markBefore {
		t.Fatalf("idle pass mutated state")
	}
}

func TestSyncBatchRollsBackWholeBatchOnFailure(t *testing.T) {
	ctx := context.Background()
	// Post 1 has no context so the oracle is first called for post 2;
	// the second call (post 3) fails mid-batch.
	h := newHarness(t, &fakeOracle{answer: "NONE", failOn: 2}, 100)
	testutil.SeedBoardPosts(t, ctx, h.db, 1, 5)

	if _, err := h.orchestrator.SyncBatch(ctx); err == nil {
		t.Fatalf("expected batch failure")
	}
	if got := h.postCount(t); got != 0 {
		t.Fatalf("partial batch committed: %d posts", got)
	}
	if got := h.relCount(t); got != 0 {
		t.Fatalf("partial batch committed: %d relationships", got)
	}
	if got := h.watermark(t); got != 0 {
		t.Fatalf("watermark advanced to %d after failed batch", got)
	}
}

func TestSyncBatchRetryAfterFailureSucceeds(t *testing.T) {
	ctx := context.Background()
	oracle := &fakeOracle{answer: "NONE", failOn: 2}
	h := newHarness(t, oracle, 100)
	testutil.SeedBoardPosts(t, ctx, h.db, 1, 5)

	if _, err := h.orchestrator.SyncBatch(ctx); err == nil {
		t.Fatalf("expected batch failure")
	}

	n, err := h.orchestrator.SyncBatch(ctx)
	if err != nil {
		t.Fatalf("retry SyncBatch: %v", err)
	}
	if n != 5 {
		t.Fatalf("retry synced: want=5 got=%d", n)
	}
	if got := h.watermark(t); got != 5 {
		t.Fatalf("watermark: want=5 got=%d", got)
	}
}

func TestSyncAllDrainsSource(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeOracle{answer: "NONE"}, 2)
	testutil.SeedBoardPosts(t, ctx, h.db, 1, 5)

	total, err := h.orchestrator.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if total != 5 {
		t.Fatalf("SyncAll total: want=5 got=%d", total)
	}
	if got := h.watermark(t); got != 5 {
		t.Fatalf("watermark: want=5 got=%d", got)
	}
}

func TestReRunningInferenceDoesNotDuplicateEdges(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeOracle{answer: "1"}, 100)
	testutil.SeedBoardPosts(t, ctx, h.db, 1, 3)

	if _, err := h.orchestrator.SyncBatch(ctx); err != nil {
		t.Fatalf("SyncBatch: %v", err)
	}
	before := h.relCount(t)

	post, err := h.posts.GetBySourceNo(ctx, nil, 3)
	if err != nil {
		t.Fatalf("GetBySourceNo: %v", err)
	}
	rels, err := h.engine.InferReplyRelationships(ctx, nil, post)
	if err != nil {
		t.Fatalf("re-run inference: %v", err)
	}
	if err := h.rels.Insert(ctx, nil, rels); err != nil {
		t.Fatalf("re-insert edges: %v", err)
	}

	if got := h.relCount(t); got != before {
		t.Fatalf("duplicate edges created: before=%d after=%d", before, got)
	}
}

func TestRunContinuousStopsOnCancel(t *testing.T) {
	h := newHarness(t, &fakeOracle{answer: "NONE"}, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.orchestrator.RunContinuous(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunContinuous: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("RunContinuous did not stop after cancellation")
	}
}
