package graph

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	types "github.com/yungbote/threadgraph/internal/domain"
	"github.com/yungbote/threadgraph/internal/platform/logger"
	"github.com/yungbote/threadgraph/internal/platform/neo4jdb"
)

// UpsertThreadGraph mirrors a synced batch of posts and relationships
// into Neo4j. The relational store stays the source of truth; this is a
// best-effort projection for graph tooling, so a nil client is a no-op.
func UpsertThreadGraph(ctx context.Context, client *neo4jdb.Client, log *logger.Logger, posts []*types.Post, rels []*types.Relationship) error {
	if client == nil || client.Driver == nil {
		return nil
	}
	if len(posts) == 0 && len(rels) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	nodes := make([]map[string]any, 0, len(posts))
	for _, p := range posts {
		if p == nil || p.ID == uuid.Nil {
			continue
		}
		nodes = append(nodes, map[string]any{
			"id":        p.ID.String(),
			"source_no": p.SourceNo,
			"content":   p.Content,
			"timestamp": p.Timestamp.UTC().Format(time.RFC3339Nano),
			"synced_at": now,
		})
	}

	replyRels := make([]map[string]any, 0, len(rels))
	seqRels := make([]map[string]any, 0, len(rels))
	for _, r := range rels {
		if r == nil || r.SourceNodeID == uuid.Nil || r.TargetNodeID == uuid.Nil {
			continue
		}
		rec := map[string]any{
			"id":              r.ID.String(),
			"from_id":         r.SourceNodeID.String(),
			"to_id":           r.TargetNodeID.String(),
			"properties_json": string(r.Properties),
			"synced_at":       now,
		}
		switch r.Type {
		case types.RelationReplyTo:
			replyRels = append(replyRels, rec)
		case types.RelationSequentialTo:
			seqRels = append(seqRels, rec)
		}
	}

	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	// Schema helpers are best-effort; restricted users may not be able
	// to create constraints.
	if res, err := session.Run(ctx, `CREATE CONSTRAINT post_id_unique IF NOT EXISTS FOR (p:Post) REQUIRE p.id IS UNIQUE`, nil); err != nil {
		if log != nil {
			log.Warn("neo4j schema init failed (continuing)", "error", err)
		}
	} else {
		_, _ = res.Consume(ctx)
	}
	if res, err := session.Run(ctx, `CREATE INDEX post_source_no_idx IF NOT EXISTS FOR (p:Post) ON (p.source_no)`, nil); err != nil {
		if log != nil {
			log.Warn("neo4j schema init failed (continuing)", "error", err)
		}
	} else {
		_, _ = res.Consume(ctx)
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if len(nodes) > 0 {
			res, err := tx.Run(ctx, `
UNWIND $nodes AS n
MERGE (p:Post {id: n.id})
SET p += n
`, map[string]any{"nodes": nodes})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}

		if len(replyRels) > 0 {
			res, err := tx.Run(ctx, `
UNWIND $rels AS r
MATCH (a:Post {id: r.from_id})
MATCH (b:Post {id: r.to_id})
MERGE (a)-[e:REPLY_TO]->(b)
SET e.id = r.id,
    e.properties_json = r.properties_json,
    e.synced_at = r.synced_at
`, map[string]any{"rels": replyRels})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}

		if len(seqRels) > 0 {
			res, err := tx.Run(ctx, `
UNWIND $rels AS r
MATCH (a:Post {id: r.from_id})
MATCH (b:Post {id: r.to_id})
MERGE (a)-[e:SEQUENTIAL_TO]->(b)
SET e.id = r.id,
    e.properties_json = r.properties_json,
    e.synced_at = r.synced_at
`, map[string]any{"rels": seqRels})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}

		return nil, nil
	})
	return err
}
