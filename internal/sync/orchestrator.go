// Package sync moves newly arrived board posts into the knowledge
// graph: one batch per pass, one transaction per batch, watermark
// advanced only with the batch that earned it.
package sync

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	datagraph "github.com/yungbote/threadgraph/internal/data/graph"
	"github.com/yungbote/threadgraph/internal/data/repos/checkpoint"
	graphrepo "github.com/yungbote/threadgraph/internal/data/repos/graph"
	"github.com/yungbote/threadgraph/internal/data/repos/source"
	types "github.com/yungbote/threadgraph/internal/domain"
	"github.com/yungbote/threadgraph/internal/graph/infer"
	"github.com/yungbote/threadgraph/internal/observability"
	"github.com/yungbote/threadgraph/internal/platform/logger"
	"github.com/yungbote/threadgraph/internal/platform/neo4jdb"
	"github.com/yungbote/threadgraph/internal/realtime/bus"
)

type Config struct {
	BatchSize int
	Interval  time.Duration
}

type Orchestrator struct {
	log        *logger.Logger
	graphDB    *gorm.DB
	source     source.BoardPostRepo
	posts      graphrepo.PostRepo
	rels       graphrepo.RelationshipRepo
	checkpoint checkpoint.Repo
	engine     *infer.Engine
	cfg        Config

	neo *neo4jdb.Client
	bus bus.Bus
}

func NewOrchestrator(
	log *logger.Logger,
	graphDB *gorm.DB,
	src source.BoardPostRepo,
	posts graphrepo.PostRepo,
	rels graphrepo.RelationshipRepo,
	cp checkpoint.Repo,
	engine *infer.Engine,
	cfg Config,
) (*Orchestrator, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if graphDB == nil {
		return nil, fmt.Errorf("graph db required")
	}
	if src == nil || posts == nil || rels == nil || cp == nil {
		return nil, fmt.Errorf("source, post, relationship and checkpoint repos required")
	}
	if engine == nil {
		return nil, fmt.Errorf("inference engine required")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	return &Orchestrator{
		log:        log.With("service", "SyncOrchestrator"),
		graphDB:    graphDB,
		source:     src,
		posts:      posts,
		rels:       rels,
		checkpoint: cp,
		engine:     engine,
		cfg:        cfg,
	}, nil
}

// WithGraphMirror enables the best-effort Neo4j projection of each
// committed batch. Nil disables it.
func (o *Orchestrator) WithGraphMirror(client *neo4jdb.Client) *Orchestrator {
	o.neo = client
	return o
}

// WithProgressBus enables progress publishing after each committed
// batch. Nil disables it.
func (o *Orchestrator) WithProgressBus(b bus.Bus) *Orchestrator {
	o.bus = b
	return o
}

// SyncBatch processes one batch of new posts. The node upserts, all
// inferred edges and the checkpoint advance commit in one transaction;
// any per-record failure rolls the whole batch back and leaves the
// watermark untouched. Returns the number of posts synced, zero when
// the source has nothing new.
func (o *Orchestrator) SyncBatch(ctx context.Context) (int, error) {
	cp, err := o.checkpoint.Get(ctx, nil)
	if err != nil {
		return 0, err
	}
	lastNo := cp.LastProcessedNo

	batch, err := o.source.ReadAfter(ctx, nil, lastNo, o.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		o.log.Info("no new posts to sync", "last_processed_no", lastNo)
		return 0, nil
	}
	o.log.Info("starting sync batch",
		"from_no", batch[0].No,
		"to_no", batch[len(batch)-1].No,
		"count", len(batch),
	)

	var syncedPosts []*types.Post
	var syncedRels []*types.Relationship

	txErr := o.graphDB.Transaction(func(tx *gorm.DB) error {
		for i, bp := range batch {
			post := types.NewPost(bp)
			if err := o.posts.Upsert(ctx, tx, post); err != nil {
				return fmt.Errorf("upsert post No.%d: %w", bp.No, err)
			}

			replyRels, err := o.engine.InferReplyRelationships(ctx, tx, post)
			if err != nil {
				return fmt.Errorf("infer replies for post No.%d: %w", bp.No, err)
			}
			seqRels, err := o.engine.SequentialRelationships(ctx, tx, post)
			if err != nil {
				return fmt.Errorf("sequential edges for post No.%d: %w", bp.No, err)
			}

			edges := append(replyRels, seqRels...)
			if err := o.rels.Insert(ctx, tx, edges); err != nil {
				return fmt.Errorf("insert edges for post No.%d: %w", bp.No, err)
			}
			syncedRels = append(syncedRels, edges...)
			syncedPosts = append(syncedPosts, post)

			if (i+1)%10 == 0 {
				o.log.Info("sync progress", "processed", i+1, "total", len(batch))
			}
		}

		return o.checkpoint.Advance(ctx, tx, batch[len(batch)-1].No)
	})
	if txErr != nil {
		if m := observability.Current(); m != nil {
			m.ObserveSyncFailure()
		}
		return 0, txErr
	}

	if m := observability.Current(); m != nil {
		m.ObserveSyncBatch(len(syncedPosts))
	}
	o.log.Info("sync batch committed",
		"posts", len(syncedPosts),
		"edges", len(syncedRels),
		"last_processed_no", batch[len(batch)-1].No,
	)

	o.mirrorBatch(ctx, syncedPosts, syncedRels)
	o.publishBatch(ctx, len(syncedPosts), batch[len(batch)-1].No)
	return len(syncedPosts), nil
}

// SyncAll drains the source, batch by batch, until no new posts remain.
func (o *Orchestrator) SyncAll(ctx context.Context) (int, error) {
	total := 0
	for {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		n, err := o.SyncBatch(ctx)
		if err != nil {
			return total, err
		}
		if n == 0 {
			o.publishComplete(ctx, total)
			return total, nil
		}
		total += n
	}
}

// RunContinuous loops until ctx is cancelled, sleeping for the
// configured interval when the source is idle and retrying after the
// same interval on error. Cancellation is honored between batches and
// during sleeps; a batch in flight runs to its commit point.
func (o *Orchestrator) RunContinuous(ctx context.Context) error {
	o.log.Info("continuous sync started",
		"batch_size", o.cfg.BatchSize,
		"interval", o.cfg.Interval.String(),
	)
	for {
		if ctx.Err() != nil {
			o.log.Info("continuous sync stopping")
			return nil
		}

		n, err := o.SyncBatch(ctx)
		switch {
		case err != nil:
			o.log.Error("sync batch failed, retrying after interval",
				"interval", o.cfg.Interval.String(),
				"error", err.Error(),
			)
		case n > 0:
			continue
		}

		select {
		case <-ctx.Done():
			o.log.Info("continuous sync stopping")
			return nil
		case <-time.After(o.cfg.Interval):
		}
	}
}

func (o *Orchestrator) mirrorBatch(ctx context.Context, posts []*types.Post, rels []*types.Relationship) {
	if o.neo == nil {
		return
	}
	if err := datagraph.UpsertThreadGraph(ctx, o.neo, o.log, posts, rels); err != nil {
		o.log.Warn("neo4j mirror failed (continuing)", "error", err.Error())
	}
}

func (o *Orchestrator) publishBatch(ctx context.Context, processed int, lastNo int64) {
	if o.bus == nil {
		return
	}
	msg := bus.Message{
		Event: bus.EventSyncBatch,
		Data: map[string]any{
			"processed":         processed,
			"last_processed_no": lastNo,
		},
	}
	if err := o.bus.Publish(ctx, msg); err != nil {
		o.log.Warn("progress publish failed (continuing)", "error", err.Error())
	}
}

func (o *Orchestrator) publishComplete(ctx context.Context, total int) {
	if o.bus == nil {
		return
	}
	msg := bus.Message{
		Event: bus.EventSyncComplete,
		Data:  map[string]any{"total": total},
	}
	if err := o.bus.Publish(ctx, msg); err != nil {
		o.log.Warn("progress publish failed (continuing)", "error", err.Error())
	}
}
