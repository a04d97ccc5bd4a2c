// Package infer derives relationships for newly synced posts: REPLY_TO
// edges proposed by a language-model oracle, and SEQUENTIAL_TO edges
// computed from post-number proximity.
package infer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"

	graphrepo "github.com/yungbote/threadgraph/internal/data/repos/graph"
	types "github.com/yungbote/threadgraph/internal/domain"
	"github.com/yungbote/threadgraph/internal/platform/logger"
)

const contextBodyLimit = 200

// Oracle is the text-generation capability used to propose reply
// targets. Satisfied by the OpenAI client and by test fakes.
type Oracle interface {
	GenerateText(ctx context.Context, system string, user string) (string, error)
}

type Engine struct {
	log              *logger.Logger
	posts            graphrepo.PostRepo
	oracle           Oracle
	contextWindow    int
	sequentialWindow int
}

func NewEngine(log *logger.Logger, posts graphrepo.PostRepo, oracle Oracle, contextWindow, sequentialWindow int) (*Engine, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if posts == nil {
		return nil, fmt.Errorf("post repo required")
	}
	if contextWindow <= 0 {
		return nil, fmt.Errorf("context window must be positive, got %d", contextWindow)
	}
	if sequentialWindow <= 0 {
		return nil, fmt.Errorf("sequential window must be positive, got %d", sequentialWindow)
	}
	return &Engine{
		log:              log.With("service", "InferenceEngine"),
		posts:            posts,
		oracle:           oracle,
		contextWindow:    contextWindow,
		sequentialWindow: sequentialWindow,
	}, nil
}

const replySystemPrompt = "You identify reply relationships between numbered forum posts. Answer only in the requested format."

// InferReplyRelationships asks the oracle which prior posts the new
// post replies to. An unparseable answer degrades to no edges; targets
// the oracle names that were not in its context are discarded.
func (e *Engine) InferReplyRelationships(ctx context.Context, tx *gorm.DB, post *types.Post) ([]*types.Relationship, error) {
	if post == nil {
		return nil, fmt.Errorf("post required")
	}
	if e.oracle == nil {
		return nil, nil
	}

	recent, err := e.posts.GetRecentBefore(ctx, tx, post.SourceNo, e.contextWindow)
	if err != nil {
		return nil, fmt.Errorf("load context posts: %w", err)
	}
	if len(recent) == 0 {
		return nil, nil
	}

	// GetRecentBefore returns newest first; the oracle reads the
	// conversation in chronological order.
	byNo := make(map[int64]*types.Post, len(recent))
	lines := make([]string, len(recent))
	for i, p := range recent {
		byNo[p.SourceNo] = p
		lines[len(recent)-1-i] = fmt.Sprintf("No.%d: %s...", p.SourceNo, truncateBody(p.Content, contextBodyLimit))
	}

	prompt := fmt.Sprintf(`Given the following conversation context, identify which post numbers (if any) the new post No.%d is replying to.

Context:
%s

New post No.%d:
%s

Return only the post numbers that this post is directly replying to, separated by commas. If it's not replying to any specific post, return "NONE".
Example valid responses: "123,145" or "NONE"`,
		post.SourceNo, strings.Join(lines, "\n"), post.SourceNo, post.Content)

	answer, err := e.oracle.GenerateText(ctx, replySystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("oracle call for post No.%d: %w", post.SourceNo, err)
	}

	targetNos, ok := parseReplyAnswer(answer)
	if !ok {
		e.log.Warn("unparseable oracle reply answer, skipping reply edges",
			"source_no", post.SourceNo,
			"answer", logger.Trunc(answer, 120),
		)
		return nil, nil
	}

	var rels []*types.Relationship
	for _, no := range targetNos {
		target, present := byNo[no]
		if !present {
			e.log.Warn("oracle named post outside context, discarding",
				"source_no", post.SourceNo,
				"target_no", no,
			)
			continue
		}
		rels = append(rels, types.NewRelationship(post.ID, target.ID, types.RelationReplyTo, map[string]any{
			"confidence": types.DefaultReplyConfidence,
		}))
	}
	return rels, nil
}

// SequentialRelationships links the new post forward to every already
// stored post within the proximity window, recording the distance.
func (e *Engine) SequentialRelationships(ctx context.Context, tx *gorm.DB, post *types.Post) ([]*types.Relationship, error) {
	if post == nil {
		return nil, fmt.Errorf("post required")
	}

	following, err := e.posts.GetFollowing(ctx, tx, post.SourceNo, e.sequentialWindow)
	if err != nil {
		return nil, fmt.Errorf("load following posts: %w", err)
	}

	rels := make([]*types.Relationship, 0, len(following))
	for _, m := range following {
		rels = append(rels, types.NewRelationship(post.ID, m.ID, types.RelationSequentialTo, map[string]any{
			"distance": m.SourceNo - post.SourceNo,
		}))
	}
	return rels, nil
}

// parseReplyAnswer returns the listed post numbers, or ok=false when
// the answer is not the sentinel and not a clean comma-separated list.
func parseReplyAnswer(answer string) ([]int64, bool) {
	trimmed := strings.TrimSpace(strings.Trim(strings.TrimSpace(answer), `"`))
	if trimmed == "" || strings.EqualFold(trimmed, "NONE") {
		return nil, true
	}

	parts := strings.Split(trimmed, ",")
	nos := make([]int64, 0, len(parts))
	seen := make(map[int64]struct{}, len(parts))
	for _, part := range parts {
		no, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, false
		}
		if _, dup := seen[no]; dup {
			continue
		}
		seen[no] = struct{}{}
		nos = append(nos, no)
	}
	return nos, true
}

func truncateBody(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
