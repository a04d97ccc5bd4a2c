// Package traverse walks the post graph breadth-first to assemble
// conversation context around a set of seed posts.
package traverse

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	graphrepo "github.com/yungbote/threadgraph/internal/data/repos/graph"
	types "github.com/yungbote/threadgraph/internal/domain"
	"github.com/yungbote/threadgraph/internal/platform/logger"
)

type Traverser struct {
	log      *logger.Logger
	posts    graphrepo.PostRepo
	rels     graphrepo.RelationshipRepo
	maxDepth int
	maxNodes int
}

func NewTraverser(log *logger.Logger, posts graphrepo.PostRepo, rels graphrepo.RelationshipRepo, maxDepth, maxNodes int) (*Traverser, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if posts == nil || rels == nil {
		return nil, fmt.Errorf("post and relationship repos required")
	}
	if maxDepth < 0 {
		return nil, fmt.Errorf("max depth must be non-negative, got %d", maxDepth)
	}
	if maxNodes <= 0 {
		return nil, fmt.Errorf("max nodes must be positive, got %d", maxNodes)
	}
	return &Traverser{
		log:      log.With("service", "GraphTraverser"),
		posts:    posts,
		rels:     rels,
		maxDepth: maxDepth,
		maxNodes: maxNodes,
	}, nil
}

// RelatedPosts expands breadth-first from the seeds, following edges of
// the given types in either direction, one relationship query per
// layer. Each frontier node carries the path that reached it so no path
// revisits a node. Results are ordered by source number ascending and
// capped at maxNodes; within a layer, lower source numbers win the
// remaining slots.
func (t *Traverser) RelatedPosts(ctx context.Context, tx *gorm.DB, seedIDs []uuid.UUID, relTypes []string) ([]*types.Post, error) {
	if len(seedIDs) == 0 {
		return nil, nil
	}

	collected := make(map[uuid.UUID]*types.Post)
	var ordered []*types.Post

	seeds, err := t.posts.GetByIDs(ctx, tx, seedIDs)
	if err != nil {
		return nil, fmt.Errorf("load seed posts: %w", err)
	}

	// frontier maps each node awaiting expansion to the set of node
	// ids on the path that reached it.
	frontier := make(map[uuid.UUID]map[uuid.UUID]struct{}, len(seeds))
	for _, p := range seeds {
		if len(collected) >= t.maxNodes {
			break
		}
		if _, dup := collected[p.ID]; dup {
			continue
		}
		collected[p.ID] = p
		ordered = append(ordered, p)
		frontier[p.ID] = map[uuid.UUID]struct{}{p.ID: {}}
	}

	for depth := 0; depth < t.maxDepth && len(frontier) > 0 && len(collected) < t.maxNodes; depth++ {
		frontierIDs := make([]uuid.UUID, 0, len(frontier))
		for id := range frontier {
			frontierIDs = append(frontierIDs, id)
		}

		edges, err := t.rels.GetTouching(ctx, tx, frontierIDs, relTypes)
		if err != nil {
			return nil, fmt.Errorf("load edges at depth %d: %w", depth, err)
		}

		// Candidate neighbors for the next layer, each with the
		// shortest path that reached it.
		candidates := make(map[uuid.UUID]map[uuid.UUID]struct{})
		for _, e := range edges {
			for _, hop := range [][2]uuid.UUID{{e.SourceNodeID, e.TargetNodeID}, {e.TargetNodeID, e.SourceNodeID}} {
				from, to := hop[0], hop[1]
				path, inFrontier := frontier[from]
				if !inFrontier {
					continue
				}
				if _, onPath := path[to]; onPath {
					continue
				}
				if _, already := collected[to]; already {
					continue
				}
				if _, queued := candidates[to]; queued {
					continue
				}
				next := make(map[uuid.UUID]struct{}, len(path)+1)
				for id := range path {
					next[id] = struct{}{}
				}
				next[to] = struct{}{}
				candidates[to] = next
			}
		}
		if len(candidates) == 0 {
			break
		}

		candidateIDs := make([]uuid.UUID, 0, len(candidates))
		for id := range candidates {
			candidateIDs = append(candidateIDs, id)
		}
		neighbors, err := t.posts.GetByIDs(ctx, tx, candidateIDs)
		if err != nil {
			return nil, fmt.Errorf("load neighbor posts: %w", err)
		}

		frontier = make(map[uuid.UUID]map[uuid.UUID]struct{}, len(neighbors))
		for _, p := range neighbors {
			if len(collected) >= t.maxNodes {
				break
			}
			collected[p.ID] = p
			ordered = append(ordered, p)
			frontier[p.ID] = candidates[p.ID]
		}
	}

	sort.Slice(ordered, func(i, j int) bool { return ordered[i].SourceNo < ordered[j].SourceNo })
	return ordered, nil
}

// Context is the combined conversation neighborhood around a seed set:
// the union of reply-reachable and sequence-reachable posts, plus the
// relationships among only those posts.
type Context struct {
	Posts         []*types.Post
	Relationships []*types.Relationship
	Stats         Stats
}

type Stats struct {
	TotalPosts         int
	ReplyPosts         int
	SequentialPosts    int
	TotalRelationships int
}

func (t *Traverser) ConversationContext(ctx context.Context, tx *gorm.DB, seedIDs []uuid.UUID) (*Context, error) {
	replyPosts, err := t.RelatedPosts(ctx, tx, seedIDs, []string{types.RelationReplyTo})
	if err != nil {
		return nil, err
	}
	seqPosts, err := t.RelatedPosts(ctx, tx, seedIDs, []string{types.RelationSequentialTo})
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]struct{}, len(replyPosts)+len(seqPosts))
	var combined []*types.Post
	for _, p := range append(append([]*types.Post{}, replyPosts...), seqPosts...) {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		combined = append(combined, p)
	}
	sort.Slice(combined, func(i, j int) bool { return combined[i].SourceNo < combined[j].SourceNo })

	var rels []*types.Relationship
	if len(combined) > 0 {
		ids := make([]uuid.UUID, len(combined))
		for i, p := range combined {
			ids[i] = p.ID
		}
		rels, err = t.rels.GetAmong(ctx, tx, ids)
		if err != nil {
			return nil, fmt.Errorf("load relationships among context posts: %w", err)
		}
	}

	return &Context{
		Posts:         combined,
		Relationships: rels,
		Stats: Stats{
			TotalPosts:         len(combined),
			ReplyPosts:         len(replyPosts),
			SequentialPosts:    len(seqPosts),
			TotalRelationships: len(rels),
		},
	}, nil
}

// FormatContext renders a Context as a prompt-ready block.
func FormatContext(c *Context) string {
	if c == nil {
		return ""
	}

	idToNo := make(map[uuid.UUID]int64, len(c.Posts))
	for _, p := range c.Posts {
		idToNo[p.ID] = p.SourceNo
	}

	formattedPosts := make([]string, 0, len(c.Posts))
	for _, p := range c.Posts {
		formattedPosts = append(formattedPosts, fmt.Sprintf(
			"No.%d (%s):\n%s\n",
			p.SourceNo, p.Timestamp.Format("2006-01-02 15:04:05"), p.Content,
		))
	}

	formattedRels := make([]string, 0, len(c.Relationships))
	for _, r := range c.Relationships {
		formattedRels = append(formattedRels, fmt.Sprintf(
			"- No.%s %s No.%s",
			noOrUnknown(idToNo, r.SourceNodeID), r.Type, noOrUnknown(idToNo, r.TargetNodeID),
		))
	}

	var b strings.Builder
	b.WriteString("=== CONVERSATION CONTEXT ===\n\n")
	b.WriteString("Posts:\n")
	b.WriteString(strings.Join(formattedPosts, "\n---\n"))

	if len(formattedRels) > 0 {
		b.WriteString("\n\n=== RELATIONSHIPS ===\n")
		b.WriteString(strings.Join(formattedRels, "\n"))
	}

	b.WriteString("\n\n=== STATISTICS ===\n")
	fmt.Fprintf(&b, "- total_posts: %d\n", c.Stats.TotalPosts)
	fmt.Fprintf(&b, "- reply_posts: %d\n", c.Stats.ReplyPosts)
	fmt.Fprintf(&b, "- sequential_posts: %d\n", c.Stats.SequentialPosts)
	fmt.Fprintf(&b, "- total_relationships: %d\n", c.Stats.TotalRelationships)
	return b.String()
}

func noOrUnknown(idToNo map[uuid.UUID]int64, id uuid.UUID) string {
	if no, ok := idToNo[id]; ok {
		return fmt.Sprintf("%d", no)
	}
	return "?"
}
