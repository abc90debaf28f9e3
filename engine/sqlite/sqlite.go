package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/engine/internal"
	_ "modernc.org/sqlite"
)

// Tables of a sqlite engine.
var Tables = []string{
	"process_instance",
	"process_instance_archive",
	"user_task",
	"user_task_archive",
}

const createTable = `
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	parent_id TEXT NOT NULL,
	process_id TEXT NOT NULL,
	state TEXT NOT NULL,
	revision INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	data BLOB NOT NULL
)`

func New(dataSourceName string, customizers ...func(*Options)) (engine.Engine, error) {
	if dataSourceName == "" {
		return nil, errors.New("data source name is empty")
	}

	options := NewOptions()
	for _, customizer := range customizers {
		customizer(&options)
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}

	store, err := openSqliteStore(dataSourceName, options.Timeout)
	if err != nil {
		return nil, err
	}

	e, err := internal.NewRuntime(options.Common, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return e, nil
}

func NewOptions() Options {
	return Options{
		Common:  engine.NewOptions(),
		Timeout: 30 * time.Second,
	}
}

type Options struct {
	Common engine.Options // Common engine options.

	Timeout time.Duration // Time limit for database transactions.
}

func (o Options) Validate() error {
	if o.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	return o.Common.Validate()
}

func openSqliteStore(dataSourceName string, timeout time.Duration) (*sqliteStore, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %v", dataSourceName, err)
	}

	// SQLite serializes writers, a single connection also keeps an in-memory database alive
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for _, table := range Tables {
		if _, err := db.ExecContext(ctx, fmt.Sprintf(createTable, table)); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create table %s: %v", table, err)
		}
	}

	return &sqliteStore{
		db: db,

		processInstances: &snapshotRepository{
			db:           db,
			timeout:      timeout,
			kind:         "process instance",
			table:        "process_instance",
			archiveTable: "process_instance_archive",
		},
		userTasks: &snapshotRepository{
			db:           db,
			timeout:      timeout,
			kind:         "user task",
			table:        "user_task",
			archiveTable: "user_task_archive",
		},
	}, nil
}

type sqliteStore struct {
	db *sql.DB

	processInstances *snapshotRepository
	userTasks        *snapshotRepository
}

func (s *sqliteStore) ProcessInstances() internal.SnapshotRepository {
	return s.processInstances
}

func (s *sqliteStore) UserTasks() internal.SnapshotRepository {
	return s.userTasks
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
