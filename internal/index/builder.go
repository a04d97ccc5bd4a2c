// Package index maintains the sliding-window document index: it reads
// the source thread, chunks it into overlapping windows, embeds them
// and upserts them into the vector store keyed by window identity so
// recomputed windows supersede stale ones.
package index

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/threadgraph/internal/chunk"
	"github.com/yungbote/threadgraph/internal/data/repos/source"
	types "github.com/yungbote/threadgraph/internal/domain"
	"github.com/yungbote/threadgraph/internal/observability"
	"github.com/yungbote/threadgraph/internal/platform/logger"
	"github.com/yungbote/threadgraph/internal/platform/vectorstore"
)

var windowPointNamespace = uuid.MustParse("6f6c3c2a-9f1d-4b9e-8a57-2b0c7a4d1e83")

// WindowPointID derives the stable vector point ID for a window from
// its identity (start_no, end_no). Re-upserting the same window span
// replaces the point instead of duplicating it.
func WindowPointID(startNo, endNo int64) string {
	return uuid.NewSHA1(windowPointNamespace, []byte(fmt.Sprintf("window|%d|%d", startNo, endNo))).String()
}

// Embedder is the embedding capability the builder needs; satisfied by
// the OpenAI client and by test fakes.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

type Config struct {
	Window       chunk.Config
	BatchSize    int // windows per embed+upsert call
	ReadPageSize int // source rows per page
	Concurrency  int // concurrent embed batches
	MetadataPath string
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.ReadPageSize <= 0 {
		c.ReadPageSize = 1000
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.MetadataPath == "" {
		c.MetadataPath = "index_metadata.json"
	}
	return c
}

type Builder struct {
	log      *logger.Logger
	source   source.BoardPostRepo
	store    vectorstore.VectorStore
	embedder Embedder
	cfg      Config
}

func NewBuilder(log *logger.Logger, src source.BoardPostRepo, store vectorstore.VectorStore, embedder Embedder, cfg Config) (*Builder, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if src == nil {
		return nil, fmt.Errorf("source repo required")
	}
	if store == nil {
		return nil, fmt.Errorf("vector store required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	if err := cfg.Window.Validate(); err != nil {
		return nil, err
	}
	return &Builder{
		log:      log.With("service", "IndexBuilder"),
		source:   src,
		store:    store,
		embedder: embedder,
		cfg:      cfg.withDefaults(),
	}, nil
}

// Rebuild drops the collection and reindexes the whole thread.
func (b *Builder) Rebuild(ctx context.Context) error {
	if err := b.store.DropCollection(ctx); err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	if err := b.store.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	records, err := b.readRecordsFrom(ctx, 0)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		b.log.Info("no source records found, nothing to index")
		return nil
	}

	windows, err := chunk.BuildWindows(records, b.cfg.Window)
	if err != nil {
		return err
	}
	b.log.Info("rebuilding index",
		"records", len(records),
		"windows", len(windows),
		"window_size", b.cfg.Window.WindowSize,
		"overlap", b.cfg.Window.Overlap,
	)

	if err := b.indexWindows(ctx, windows); err != nil {
		return err
	}

	if err := SaveMetadata(b.cfg.MetadataPath, Metadata{LastProcessedNo: records[len(records)-1].No}); err != nil {
		return err
	}
	b.log.Info("index rebuild complete", "windows", len(windows), "last_processed_no", records[len(records)-1].No)
	return nil
}

// Update reindexes incrementally: it reads one window's width before
// the last indexed post so the previously snapped trailing window is
// recomputed and superseded, then advances the metadata watermark.
func (b *Builder) Update(ctx context.Context) error {
	meta, err := LoadMetadata(b.cfg.MetadataPath)
	if err != nil {
		return err
	}

	maxNo, err := b.source.MaxNo(ctx, nil)
	if err != nil {
		return err
	}
	newCount, err := b.source.CountAfter(ctx, nil, meta.LastProcessedNo)
	if err != nil {
		return err
	}
	if newCount == 0 {
		b.log.Info("index is up to date", "last_processed_no", meta.LastProcessedNo)
		return nil
	}
	b.log.Info("updating index",
		"last_processed_no", meta.LastProcessedNo,
		"latest_no", maxNo,
		"new_records", newCount,
	)

	if err := b.store.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	from := chunk.RebuildFromNo(meta.LastProcessedNo, b.cfg.Window.WindowSize)
	records, err := b.readRecordsFrom(ctx, from)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	windows, err := chunk.BuildWindows(records, b.cfg.Window)
	if err != nil {
		return err
	}
	if err := b.indexWindows(ctx, windows); err != nil {
		return err
	}

	if err := SaveMetadata(b.cfg.MetadataPath, Metadata{LastProcessedNo: maxNo}); err != nil {
		return err
	}
	b.log.Info("index update complete", "windows", len(windows), "last_processed_no", maxNo)
	return nil
}

// SearchResult is one retrieved window with its citation metadata.
// MemberNos carries the source numbers of the member posts so callers
// can seed graph traversal from a hit.
type SearchResult struct {
	Content   string
	StartNo   int64
	EndNo     int64
	PostCount int
	Source    string
	Score     float64
	MemberNos []int64
}

func (b *Builder) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	vecs, err := b.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("expected one query embedding, got %d", len(vecs))
	}

	matches, err := b.store.Query(ctx, vecs[0], k)
	if err != nil {
		return nil, err
	}

	out := make([]SearchResult, 0, len(matches))
	for _, m := range matches {
		out = append(out, SearchResult{
			Content:   asString(m.Metadata["content"]),
			StartNo:   asInt64(m.Metadata["start_no"]),
			EndNo:     asInt64(m.Metadata["end_no"]),
			PostCount: int(asInt64(m.Metadata["post_count"])),
			Source:    asString(m.Metadata["source"]),
			Score:     m.Score,
			MemberNos: memberNos(m.Metadata["members"]),
		})
	}
	return out, nil
}

func (b *Builder) readRecordsFrom(ctx context.Context, startNo int64) ([]chunk.Record, error) {
	var records []chunk.Record
	next := startNo
	for {
		page, err := b.source.ReadFromNo(ctx, nil, next, b.cfg.ReadPageSize)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, bp := range page {
			records = append(records, boardPostRecord(bp))
		}
		next = page[len(page)-1].No + 1
	}
	return records, nil
}

func boardPostRecord(bp *types.BoardPost) chunk.Record {
	return chunk.Record{
		No:        bp.No,
		Author:    bp.Author,
		AuthorKey: bp.AuthorKey,
		Timestamp: bp.PostedAt,
		Body:      bp.Body,
	}
}

// indexWindows embeds and upserts windows in batches with bounded
// concurrency. A failed batch is logged and skipped so one flaky remote
// call does not abandon the rest of the run; the per-batch upsert is
// idempotent, so a rerun repairs any gap.
func (b *Builder) indexWindows(ctx context.Context, windows []chunk.Window) error {
	if len(windows) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)

	for start := 0; start < len(windows); start += b.cfg.BatchSize {
		end := start + b.cfg.BatchSize
		if end > len(windows) {
			end = len(windows)
		}
		batch := windows[start:end]
		batchNo := start/b.cfg.BatchSize + 1

		g.Go(func() error {
			if err := b.indexBatch(gctx, batch); err != nil {
				b.log.Warn("index batch failed, skipping",
					"batch", batchNo,
					"windows", len(batch),
					"error", err.Error(),
				)
				if m := observability.Current(); m != nil {
					m.ObserveIndexFailure()
				}
				return nil
			}
			if m := observability.Current(); m != nil {
				m.ObserveIndexWindows(len(batch))
			}
			return nil
		})
	}
	return g.Wait()
}

func (b *Builder) indexBatch(ctx context.Context, batch []chunk.Window) error {
	contents := make([]string, len(batch))
	for i, w := range batch {
		contents[i] = w.Content
	}

	vecs, err := b.embedder.Embed(ctx, contents)
	if err != nil {
		return fmt.Errorf("embed windows: %w", err)
	}
	if len(vecs) != len(batch) {
		return fmt.Errorf("embedding count mismatch: want=%d got=%d", len(batch), len(vecs))
	}

	points := make([]vectorstore.Vector, len(batch))
	for i, w := range batch {
		points[i] = vectorstore.Vector{
			ID:       WindowPointID(w.StartNo, w.EndNo),
			Values:   vecs[i],
			Metadata: windowPayload(w),
		}
	}
	return b.store.Upsert(ctx, points)
}

func windowPayload(w chunk.Window) map[string]any {
	members := make([]map[string]any, len(w.Records))
	for i, r := range w.Records {
		members[i] = map[string]any{
			"no":         r.No,
			"author":     r.Author,
			"author_key": r.AuthorKey,
			"timestamp":  r.Timestamp.UTC().Format(time.RFC3339),
		}
	}
	return map[string]any{
		"content":    w.Content,
		"start_no":   w.StartNo,
		"end_no":     w.EndNo,
		"post_count": len(w.Records),
		"source":     fmt.Sprintf("window_%d_%d", w.StartNo, w.EndNo),
		"members":    members,
	}
}

// memberNos accepts both the JSON-decoded shape ([]any) and the shape the
// payload was written with ([]map[string]any).
func memberNos(v any) []int64 {
	var items []map[string]any
	switch list := v.(type) {
	case []map[string]any:
		items = list
	case []any:
		for _, item := range list {
			if member, ok := item.(map[string]any); ok {
				items = append(items, member)
			}
		}
	default:
		return nil
	}
	nos := make([]int64, 0, len(items))
	for _, member := range items {
		if no := asInt64(member["no"]); no > 0 {
			nos = append(nos, no)
		}
	}
	return nos
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
