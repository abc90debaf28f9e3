package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/engine/internal"
	"github.com/jackc/pgx/v5/pgxpool"
)

func New(databaseUrl string, customizers ...func(*Options)) (engine.Engine, error) {
	if databaseUrl == "" {
		return nil, errors.New("database URL is empty")
	}

	options := NewOptions()
	for _, customizer := range customizers {
		customizer(&options)
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}

	pgPoolConfig, err := pgxpool.ParseConfig(databaseUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %v", err)
	}

	if _, ok := pgPoolConfig.ConnConfig.RuntimeParams["application_name"]; !ok {
		pgPoolConfig.ConnConfig.RuntimeParams["application_name"] = options.Common.EngineId
	}

	if databaseSchema, ok := pgPoolConfig.ConnConfig.RuntimeParams["search_path"]; ok {
		options.databaseSchema = databaseSchema
	}

	pgPoolCtx, pgPoolCancel := context.WithTimeout(context.Background(), options.Timeout)
	defer pgPoolCancel()

	pgPool, err := pgxpool.NewWithConfig(pgPoolCtx, pgPoolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %v", err)
	}

	store := newPgStore(pgPool, options.Timeout)

	if err := store.migrateDatabase(options.databaseSchema); err != nil {
		pgPool.Close()
		return nil, fmt.Errorf("failed to migrate database: %v", err)
	}

	e, err := internal.NewRuntime(options.Common, store)
	if err != nil {
		pgPool.Close()
		return nil, err
	}

	return e, nil
}

func NewOptions() Options {
	return Options{
		Common:  engine.NewOptions(),
		Timeout: 30 * time.Second,

		databaseSchema: "public",
	}
}

type Options struct {
	Common engine.Options // Common engine options.

	Timeout time.Duration // Time limit for database transactions.

	databaseSchema string // derived from database URL - see runtime parameter "search_path"
}

func (o Options) Validate() error {
	if o.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	return o.Common.Validate()
}

func newPgStore(pgPool *pgxpool.Pool, timeout time.Duration) *pgStore {
	return &pgStore{
		pgPool:  pgPool,
		timeout: timeout,

		processInstances: &snapshotRepository{
			pgPool:       pgPool,
			timeout:      timeout,
			kind:         "process instance",
			table:        "process_instance",
			archiveTable: "process_instance_archive",
		},
		userTasks: &snapshotRepository{
			pgPool:       pgPool,
			timeout:      timeout,
			kind:         "user task",
			table:        "user_task",
			archiveTable: "user_task_archive",
		},
	}
}

// pgStore stores snapshots in PostgreSQL. Each repository call is executed in its own transaction.
type pgStore struct {
	pgPool  *pgxpool.Pool
	timeout time.Duration

	processInstances *snapshotRepository
	userTasks        *snapshotRepository
}

func (s *pgStore) ProcessInstances() internal.SnapshotRepository {
	return s.processInstances
}

func (s *pgStore) UserTasks() internal.SnapshotRepository {
	return s.userTasks
}

func (s *pgStore) Close() error {
	s.pgPool.Close()
	return nil
}
