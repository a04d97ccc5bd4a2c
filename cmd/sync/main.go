package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yungbote/threadgraph/internal/app"
)

func main() {
	var batchSize int
	var intervalSec int
	var once bool
	var all bool
	flag.IntVar(&batchSize, "batch-size", 0, "posts per batch (default from SYNC_BATCH_SIZE)")
	flag.IntVar(&intervalSec, "interval", 0, "seconds between batches in continuous mode (default from SYNC_INTERVAL_SECONDS)")
	flag.BoolVar(&once, "once", false, "sync a single batch and exit")
	flag.BoolVar(&all, "all", false, "sync until the source is drained and exit")
	flag.Parse()

	application, err := app.New(app.Options{
		NeedOracle: true,
		ConfigOverride: func(cfg *app.Config) {
			if batchSize > 0 {
				cfg.SyncBatchSize = batchSize
			}
			if intervalSec > 0 {
				cfg.SyncInterval = time.Duration(intervalSec) * time.Second
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

	switch {
	case once:
		n, err := application.Orchestrator.SyncBatch(ctx)
		if err != nil {
			fmt.Printf("sync batch failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("synced %d posts\n", n)
	case all:
		n, err := application.Orchestrator.SyncAll(ctx)
		if err != nil {
			fmt.Printf("sync failed after %d posts: %v\n", n, err)
			os.Exit(1)
		}
		fmt.Printf("synced %d posts\n", n)
	default:
		if err := application.Orchestrator.RunContinuous(ctx); err != nil {
			fmt.Printf("continuous sync failed: %v\n", err)
			os.Exit(1)
		}
	}
}
