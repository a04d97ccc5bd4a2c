package infer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	graphrepo "github.com/yungbote/threadgraph/internal/data/repos/graph"
	"github.com/yungbote/threadgraph/internal/data/repos/testutil"
	types "github.com/yungbote/threadgraph/internal/domain"
)

type fakeOracle struct {
	answer  string
	err     error
	prompts []string
}

func (f *fakeOracle) GenerateText(_ context.Context, _ string, user string) (string, error) {
	f.prompts = append(f.prompts, user)
	return f.answer, f.err
}

func props(t *testing.T, rel *types.Relationship) map[string]any {
	t.Helper()
	out := map[string]any{}
	if err := json.Unmarshal(rel.Properties, &out); err != nil {
		t.Fatalf("unmarshal properties: %v", err)
	}
	return out
}

func TestInferReplyRelationships(t *testing.T) {
	ctx := context.Background()
	oracle := &fakeOracle{answer: "3,5"}

	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	posts := graphrepo.NewPostRepo(gdb, log)
	engine, err := NewEngine(log, posts, oracle, 50, 20)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	seeded := map[int64]*types.Post{}
	for no := int64(1); no <= 5; no++ {
		seeded[no] = testutil.SeedPost(t, ctx, gdb, no)
	}
	newPost := testutil.SeedPost(t, ctx, gdb, 6)

	rels, err := engine.InferReplyRelationships(ctx, nil, newPost)
	if err != nil {
		t.Fatalf("InferReplyRelationships: %v", err)
	}
	if len(rels) != 2 {
		t.Fatalf("want 2 reply edges, got %d", len(rels))
	}
	wantTargets := map[int64]bool{3: false, 5: false}
	for _, rel := range rels {
		if rel.SourceNodeID != newPost.ID {
			t.Fatalf("edge source is not the new post")
		}
		if rel.Type != types.RelationReplyTo {
			t.Fatalf("edge type: want=%s got=%s", types.RelationReplyTo, rel.Type)
		}
		p := props(t, rel)
		if p["confidence"] != 0.8 {
			t.Fatalf("edge confidence: want=0.8 got=%v", p["confidence"])
		}
		for no, post := range seeded {
			if rel.TargetNodeID == post.ID {
				wantTargets[no] = true
			}
		}
	}
	for no, hit := range wantTargets {
		if !hit {
			t.Fatalf("missing edge to post No.%d", no)
		}
	}

	if len(oracle.prompts) != 1 {
		t.Fatalf("oracle called %d times, want 1", len(oracle.prompts))
	}
	prompt := oracle.prompts[0]
	if !strings.Contains(prompt, "new post No.6") {
		t.Fatalf("prompt does not name the new post:\n%s", prompt)
	}
	// Context must be chronological: No.1 before No.5.
	if strings.Index(prompt, "No.1:") > strings.Index(prompt, "No.5:") {
		t.Fatalf("context not in chronological order:\n%s", prompt)
	}
}

func TestInferReplyRelationshipsNoneSentinel(t *testing.T) {
	ctx := context.Background()
	for _, answer := range []string{"NONE", "none", `"NONE"`, "  NONE  ", ""} {
		oracle := &fakeOracle{answer: answer}
		gdb := testutil.DB(t)
		log := testutil.Logger(t)
		posts := graphrepo.NewPostRepo(gdb, log)
		engine, err := NewEngine(log, posts, oracle, 50, 20)
		if err != nil {
			t.Fatalf("NewEngine: %v", err)
		}
		testutil.SeedPost(t, ctx, gdb, 1)
		newPost := testutil.SeedPost(t, ctx, gdb, 2)

		rels, err := engine.InferReplyRelationships(ctx, nil, newPost)
		if err != nil {
			t.Fatalf("answer=%q: %v", answer, err)
		}
		if len(rels) != 0 {
			t.Fatalf("answer=%q: want no edges, got %d", answer, len(rels))
		}
	}
}

func TestInferReplyRelationshipsMalformedAnswerDegrades(t *testing.T) {
	ctx := context.Background()
	oracle := &fakeOracle{answer: "probably replying to post 3"}
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	posts := graphrepo.NewPostRepo(gdb, log)
	engine, err := NewEngine(log, posts, oracle, 50, 20)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	testutil.SeedPost(t, ctx, gdb, 3)
	newPost := testutil.SeedPost(t, ctx, gdb, 4)

	rels, err := engine.InferReplyRelationships(ctx, nil, newPost)
	if err != nil {
		t.Fatalf("malformed answer must not fail the record: %v", err)
	}
	if len(rels) != 0 {
		t.Fatalf("want no edges from malformed answer, got %d", len(rels))
	}
}

func TestInferReplyRelationshipsDiscardsTargetsOutsideContext(t *testing.T) {
	ctx := context.Background()
	oracle := &fakeOracle{answer: "3,999"}
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	posts := graphrepo.NewPostRepo(gdb, log)
	engine, err := NewEngine(log, posts, oracle, 50, 20)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	target := testutil.SeedPost(t, ctx, gdb, 3)
	newPost := testutil.SeedPost(t, ctx, gdb, 4)

	rels, err := engine.InferReplyRelationships(ctx, nil, newPost)
	if err != nil {
		t.Fatalf("InferReplyRelationships: %v", err)
	}
	if len(rels) != 1 {
		t.Fatalf("want 1 edge (hallucinated target dropped), got %d", len(rels))
	}
	if rels[0].TargetNodeID != target.ID {
		t.Fatalf("edge target is not post No.3")
	}
}

func TestInferReplyRelationshipsEmptyContextSkipsOracle(t *testing.T) {
	ctx := context.Background()
	oracle := &fakeOracle{answer: "1"}
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	posts := graphrepo.NewPostRepo(gdb, log)
	engine, err := NewEngine(log, posts, oracle, 50, 20)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	newPost := testutil.SeedPost(t, ctx, gdb, 1)

	rels, err := engine.InferReplyRelationships(ctx, nil, newPost)
	if err != nil {
		t.Fatalf("InferReplyRelationships: %v", err)
	}
	if len(rels) != 0 {
		t.Fatalf("want no edges for the first post, got %d", len(rels))
	}
	if len(oracle.prompts) != 0 {
		t.Fatalf("oracle must not be called without context posts")
	}
}

func TestInferReplyRelationshipsOracleErrorPropagates(t *testing.T) {
	ctx := context.Background()
	oracle := &fakeOracle{err: errors.New("oracle unavailable")}
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	posts := graphrepo.NewPostRepo(gdb, log)
	engine, err := NewEngine(log, posts, oracle, 50, 20)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	testutil.SeedPost(t, ctx, gdb, 1)
	newPost := testutil.SeedPost(t, ctx, gdb, 2)

	if _, err := engine.InferReplyRelationships(ctx, nil, newPost); err == nil {
		t.Fatalf("transport failure must propagate so the batch rolls back")
	}
}

func TestInferReplyRelationshipsNilOracle(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	posts := graphrepo.NewPostRepo(gdb, log)
	engine, err := NewEngine(log, posts, nil, 50, 20)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	testutil.SeedPost(t, ctx, gdb, 1)
	newPost := testutil.SeedPost(t, ctx, gdb, 2)

	rels, err := engine.InferReplyRelationships(ctx, nil, newPost)
	if err != nil {
		t.Fatalf("InferReplyRelationships: %v", err)
	}
	if len(rels) != 0 {
		t.Fatalf("nil oracle should yield no edges, got %d", len(rels))
	}
}

func TestSequentialRelationships(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	posts := graphrepo.NewPostRepo(gdb, log)
	engine, err := NewEngine(log, posts, nil, 50, 20)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	newPost := testutil.SeedPost(t, ctx, gdb, 6)
	near1 := testutil.SeedPost(t, ctx, gdb, 7)
	near2 := testutil.SeedPost(t, ctx, gdb, 8)
	testutil.SeedPost(t, ctx, gdb, 30) // outside the window of 20

	rels, err := engine.SequentialRelationships(ctx, nil, newPost)
	if err != nil {
		t.Fatalf("SequentialRelationships: %v", err)
	}
	if len(rels) != 2 {
		t.Fatalf("want 2 sequential edges, got %d", len(rels))
	}

	wantDistance := map[string]float64{
		near1.ID.String(): 1,
		near2.ID.String(): 2,
	}
	for _, rel := range rels {
		if rel.Type != types.RelationSequentialTo {
			t.Fatalf("edge type: want=%s got=%s", types.RelationSequentialTo, rel.Type)
		}
		if rel.SourceNodeID != newPost.ID {
			t.Fatalf("edge source is not the new post")
		}
		want, ok := wantDistance[rel.TargetNodeID.String()]
		if !ok {
			t.Fatalf("unexpected edge target %s", rel.TargetNodeID)
		}
		if got := props(t, rel)["distance"]; got != want {
			t.Fatalf("distance to %s: want=%v got=%v", rel.TargetNodeID, want, got)
		}
	}
}

func TestParseReplyAnswer(t *testing.T) {
	cases := []struct {
		in     string
		want   []int64
		wantOK bool
	}{
		{"NONE", nil, true},
		{"123,145", []int64{123, 145}, true},
		{" 3 , 5 ", []int64{3, 5}, true},
		{"3,3,5", []int64{3, 5}, true},
		{"3; 5", nil, false},
		{"the answer is 3", nil, false},
	}
	for _, tc := range cases {
		got, ok := parseReplyAnswer(tc.in)
		if ok != tc.wantOK {
			t.Fatalf("parseReplyAnswer(%q): ok want=%v got=%v", tc.in, tc.wantOK, ok)
		}
		if len(got) != len(tc.want) {
			t.Fatalf("parseReplyAnswer(%q): want=%v got=%v", tc.in, tc.want, got)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("parseReplyAnswer(%q): want=%v got=%v", tc.in, tc.want, got)
			}
		}
	}
}
