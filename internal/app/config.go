package app

import (
	"time"

	"github.com/yungbote/threadgraph/internal/chunk"
	"github.com/yungbote/threadgraph/internal/platform/logger"
	"github.com/yungbote/threadgraph/internal/utils"
)

// Config collects the pipeline tunables. Everything has a sane default
// so a bare environment runs against local services.
type Config struct {
	Mode string

	SyncBatchSize    int
	SyncInterval     time.Duration
	ContextWindow    int
	SequentialWindow int

	WindowSize       int
	Overlap          int
	IndexBatchSize   int
	IndexConcurrency int
	IndexMetadata    string

	TraverseMaxDepth int
	TraverseMaxNodes int
	SearchK          int
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		Mode: utils.GetEnv("APP_ENV", "development", log),

		SyncBatchSize:    utils.GetEnvAsInt("SYNC_BATCH_SIZE", 100, log),
		SyncInterval:     time.Duration(utils.GetEnvAsInt("SYNC_INTERVAL_SECONDS", 60, log)) * time.Second,
		ContextWindow:    utils.GetEnvAsInt("INFER_CONTEXT_WINDOW", 50, log),
		SequentialWindow: utils.GetEnvAsInt("INFER_SEQUENTIAL_WINDOW", 20, log),

		WindowSize:       utils.GetEnvAsInt("INDEX_WINDOW_SIZE", 50, log),
		Overlap:          utils.GetEnvAsInt("INDEX_OVERLAP", 20, log),
		IndexBatchSize:   utils.GetEnvAsInt("INDEX_BATCH_SIZE", 10, log),
		IndexConcurrency: utils.GetEnvAsInt("INDEX_CONCURRENCY", 4, log),
		IndexMetadata:    utils.GetEnv("INDEX_METADATA_FILE", "index_metadata.json", log),

		TraverseMaxDepth: utils.GetEnvAsInt("TRAVERSE_MAX_DEPTH", 3, log),
		TraverseMaxNodes: utils.GetEnvAsInt("TRAVERSE_MAX_NODES", 50, log),
		SearchK:          utils.GetEnvAsInt("SEARCH_K", 5, log),
	}
}

func (c Config) WindowConfig() chunk.Config {
	return chunk.Config{WindowSize: c.WindowSize, Overlap: c.Overlap}
}
