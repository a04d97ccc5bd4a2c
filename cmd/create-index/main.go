package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yungbote/threadgraph/internal/app"
	"github.com/yungbote/threadgraph/internal/realtime/bus"
)

func main() {
	var incremental bool
	var windowSize int
	var overlap int
	flag.BoolVar(&incremental, "incremental", false, "only index windows touched by new posts")
	flag.IntVar(&windowSize, "window-size", 0, "posts per window (default from INDEX_WINDOW_SIZE)")
	flag.IntVar(&overlap, "overlap", 0, "posts shared between adjacent windows (default from INDEX_OVERLAP)")
	flag.Parse()

	application, err := app.New(app.Options{
		NeedVectorStore: true,
		ConfigOverride: func(cfg *app.Config) {
			if windowSize > 0 {
				cfg.WindowSize = windowSize
			}
			if overlap > 0 {
				cfg.Overlap = overlap
			}
		},
	})
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer application.Close(context.Background())

	event := bus.EventIndexRebuilt
	if incremental {
		event = bus.EventIndexUpdated
		err = application.Builder.Update(ctx)
	} else {
		err = application.Builder.Rebuild(ctx)
	}
	if err != nil {
		fmt.Printf("index build failed: %v\n", err)
		os.Exit(1)
	}

	if application.Bus != nil {
		_ = application.Bus.Publish(ctx, bus.Message{Event: event})
	}
	fmt.Println("index build completed")
}
