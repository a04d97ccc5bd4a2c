package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	types "github.com/yungbote/threadgraph/internal/domain"
	"github.com/yungbote/threadgraph/internal/platform/logger"
	"github.com/yungbote/threadgraph/internal/utils"
)

// PostgresService owns the graph database connection: posts, relationships and
// the sync checkpoint live here.
type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	host := utils.GetEnv("GRAPH_POSTGRES_HOST", "localhost", log)
	port := utils.GetEnv("GRAPH_POSTGRES_PORT", "5432", log)
	user := utils.GetEnv("GRAPH_POSTGRES_USER", "postgres", log)
	password := utils.GetEnv("GRAPH_POSTGRES_PASSWORD", "", log)
	name := utils.GetEnv("GRAPH_POSTGRES_NAME", "threadgraph", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)

	serviceLog.Info("Connecting to graph Postgres...")
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		serviceLog.Error("Failed to connect to graph Postgres", "error", err)
		return nil, fmt.Errorf("connect to graph postgres: %w", err)
	}
	return &PostgresService{db: gdb, log: serviceLog}, nil
}

// AutoMigrateAll creates the graph-side tables. The board_post source table is
// owned by the board ingest process and is never migrated from here.
func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating graph tables...")
	if err := s.db.AutoMigrate(
		&types.Post{},
		&types.Relationship{},
		&types.SyncCheckpoint{},
	); err != nil {
		s.log.Error("Auto migration failed for graph tables", "error", err)
		return err
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}

// NewSourceDB opens a read-only style connection to the board database that
// holds the append-only board_post table.
func NewSourceDB(log *logger.Logger) (*gorm.DB, error) {
	serviceLog := log.With("service", "SourcePostgres")

	host := utils.GetEnv("SOURCE_POSTGRES_HOST", "localhost", log)
	port := utils.GetEnv("SOURCE_POSTGRES_PORT", "5432", log)
	user := utils.GetEnv("SOURCE_POSTGRES_USER", "postgres", log)
	password := utils.GetEnv("SOURCE_POSTGRES_PASSWORD", "", log)
	name := utils.GetEnv("SOURCE_POSTGRES_NAME", "board", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)

	serviceLog.Info("Connecting to source Postgres...")
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		serviceLog.Error("Failed to connect to source Postgres", "error", err)
		return nil, fmt.Errorf("connect to source postgres: %w", err)
	}
	return gdb, nil
}
