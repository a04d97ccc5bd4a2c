// Package app wires the pipeline together: config, logging, databases,
// clients, repos and the services built on top of them.
package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/threadgraph/internal/data/repos/checkpoint"
	graphrepo "github.com/yungbote/threadgraph/internal/data/repos/graph"
	"github.com/yungbote/threadgraph/internal/data/repos/source"
	"github.com/yungbote/threadgraph/internal/db"
	"github.com/yungbote/threadgraph/internal/graph/infer"
	"github.com/yungbote/threadgraph/internal/graph/traverse"
	"github.com/yungbote/threadgraph/internal/index"
	"github.com/yungbote/threadgraph/internal/observability"
	"github.com/yungbote/threadgraph/internal/platform/logger"
	"github.com/yungbote/threadgraph/internal/platform/neo4jdb"
	"github.com/yungbote/threadgraph/internal/platform/openai"
	"github.com/yungbote/threadgraph/internal/platform/qdrant"
	"github.com/yungbote/threadgraph/internal/platform/vectorstore"
	"github.com/yungbote/threadgraph/internal/realtime/bus"
	syncsvc "github.com/yungbote/threadgraph/internal/sync"
)

type App struct {
	Log    *logger.Logger
	Config Config

	Graph  *db.PostgresService
	Source *gorm.DB

	BoardPosts    source.BoardPostRepo
	Posts         graphrepo.PostRepo
	Relationships graphrepo.RelationshipRepo
	Checkpoint    checkpoint.Repo

	OpenAI       openai.Client
	VectorStore  vectorstore.VectorStore
	Engine       *infer.Engine
	Orchestrator *syncsvc.Orchestrator
	Builder      *index.Builder
	Traverser    *traverse.Traverser

	Neo *neo4jdb.Client
	Bus bus.Bus

	otelShutdown func(context.Context) error
}

// Options selects which optional subsystems New should bring up, so the
// init-db tool does not require an OpenAI key or a running Qdrant.
type Options struct {
	NeedOracle      bool
	NeedVectorStore bool

	// ConfigOverride lets a command apply its flags on top of the
	// environment config before anything is wired.
	ConfigOverride func(*Config)
}

func New(opts Options) (*App, error) {
	bootstrapLog, err := logger.New("development")
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	cfg := LoadConfig(bootstrapLog)
	if opts.ConfigOverride != nil {
		opts.ConfigOverride(&cfg)
	}

	log, err := logger.New(cfg.Mode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &App{Log: log, Config: cfg}

	observability.Init(log)
	a.otelShutdown = observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "threadgraph",
		Environment: cfg.Mode,
	})

	a.Graph, err = db.NewPostgresService(log)
	if err != nil {
		return nil, err
	}
	a.Source, err = db.NewSourceDB(log)
	if err != nil {
		return nil, err
	}

	a.BoardPosts = source.NewBoardPostRepo(a.Source, log)
	a.Posts = graphrepo.NewPostRepo(a.Graph.DB(), log)
	a.Relationships = graphrepo.NewRelationshipRepo(a.Graph.DB(), log)
	a.Checkpoint = checkpoint.NewRepo(a.Graph.DB(), log)

	if opts.NeedOracle || opts.NeedVectorStore {
		a.OpenAI, err = openai.NewClient(log)
		if err != nil {
			return nil, err
		}
	}

	var oracle infer.Oracle
	if opts.NeedOracle {
		oracle = a.OpenAI
	}
	a.Engine, err = infer.NewEngine(log, a.Posts, oracle, cfg.ContextWindow, cfg.SequentialWindow)
	if err != nil {
		return nil, err
	}

	a.Traverser, err = traverse.NewTraverser(log, a.Posts, a.Relationships, cfg.TraverseMaxDepth, cfg.TraverseMaxNodes)
	if err != nil {
		return nil, err
	}

	a.Orchestrator, err = syncsvc.NewOrchestrator(
		log, a.Graph.DB(), a.BoardPosts, a.Posts, a.Relationships, a.Checkpoint, a.Engine,
		syncsvc.Config{BatchSize: cfg.SyncBatchSize, Interval: cfg.SyncInterval},
	)
	if err != nil {
		return nil, err
	}

	a.Neo, err = neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Warn("neo4j mirror unavailable (continuing)", "error", err.Error())
	} else if a.Neo != nil {
		a.Orchestrator.WithGraphMirror(a.Neo)
	}

	a.Bus, err = bus.NewFromEnv(log)
	if err != nil {
		log.Warn("progress bus unavailable (continuing)", "error", err.Error())
	} else if a.Bus != nil {
		a.Orchestrator.WithProgressBus(a.Bus)
	}

	if opts.NeedVectorStore {
		qcfg, err := qdrant.ResolveConfigFromEnv()
		if err != nil {
			return nil, err
		}
		a.VectorStore, err = qdrant.NewVectorStore(log, qcfg)
		if err != nil {
			return nil, err
		}
		a.Builder, err = index.NewBuilder(log, a.BoardPosts, a.VectorStore, a.OpenAI, index.Config{
			Window:       cfg.WindowConfig(),
			BatchSize:    cfg.IndexBatchSize,
			Concurrency:  cfg.IndexConcurrency,
			MetadataPath: cfg.IndexMetadata,
		})
		if err != nil {
			return nil, err
		}
	}

	return a, nil
}

func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.Bus != nil {
		_ = a.Bus.Close()
	}
	if a.Neo != nil {
		_ = a.Neo.Close(ctx)
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(ctx)
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
