package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/threadgraph/internal/app"
	"github.com/yungbote/threadgraph/internal/graph/traverse"
)

func main() {
	var k int
	var withContext bool
	flag.IntVar(&k, "k", 0, "number of windows to retrieve (default from SEARCH_K)")
	flag.BoolVar(&withContext, "context", false, "expand hits into conversation context via the graph")
	flag.Parse()

	query := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if query == "" {
		fmt.Println("usage: search [-k N] [-context] <query>")
		os.Exit(1)
	}

	application, err := app.New(app.Options{NeedVectorStore: true})
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close(context.Background())

	ctx := context.Background()
	if k <= 0 {
		k = application.Config.SearchK
	}

	results, err := application.Builder.Search(ctx, query, k)
	if err != nil {
		fmt.Printf("search failed: %v\n", err)
		os.Exit(1)
	}
	if len(results) == 0 {
		fmt.Println("no results")
		return
	}

	for i, r := range results {
		fmt.Printf("--- %d. %s (score=%.4f, posts %d-%d)\n", i+1, r.Source, r.Score, r.StartNo, r.EndNo)
		fmt.Println(r.Content)
		fmt.Println()
	}

	if !withContext {
		return
	}

	// Seed graph traversal from member posts of the retrieved windows.
	seenNos := make(map[int64]struct{})
	var nos []int64
	for _, r := range results {
		for _, no := range r.MemberNos {
			if _, dup := seenNos[no]; dup {
				continue
			}
			seenNos[no] = struct{}{}
			nos = append(nos, no)
		}
	}
	posts, err := application.Posts.GetBySourceNos(ctx, nil, nos)
	if err != nil {
		fmt.Printf("load seed posts: %v\n", err)
		os.Exit(1)
	}
	seeds := make([]uuid.UUID, len(posts))
	for i, p := range posts {
		seeds[i] = p.ID
	}

	conv, err := application.Traverser.ConversationContext(ctx, nil, seeds)
	if err != nil {
		fmt.Printf("graph traversal failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(traverse.FormatContext(conv))
}
