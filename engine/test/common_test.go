package test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/engine/bolt"
	"github.com/gclaussn/go-procengine/engine/mem"
	"github.com/gclaussn/go-procengine/engine/pg"
	"github.com/gclaussn/go-procengine/engine/sqlite"
	"github.com/gclaussn/go-procengine/model"
	"github.com/jackc/pgx/v5"
)

var databaseSchema string

// mustCreateEngines creates an engine per backend. A pg engine is only created, when a test database is available.
func mustCreateEngines(t *testing.T) ([]engine.Engine, []string) {
	encryptionKey, err := engine.NewEncryptionKey()
	if err != nil {
		t.Fatalf("failed to create encryption key: %v", err)
	}

	encryption, err := engine.NewEncryption(encryptionKey)
	if err != nil {
		t.Fatalf("failed to create encryption: %v", err)
	}

	var engines []engine.Engine
	var engineTypes []string

	// create mem engine
	memEngine, err := mem.New(func(o *mem.Options) {
		o.Common.Encryption = encryption
	})
	if err != nil {
		t.Fatalf("failed to create mem engine: %v", err)
	}

	engines = append(engines, memEngine)
	engineTypes = append(engineTypes, "mem_")

	// create bolt engine
	boltEngine, err := bolt.New(filepath.Join(t.TempDir(), "test.db"), func(o *bolt.Options) {
		o.Common.Encryption = encryption
		o.Common.JobExecutorEnabled = false
	})
	if err != nil {
		t.Fatalf("failed to create bolt engine: %v", err)
	}

	engines = append(engines, boltEngine)
	engineTypes = append(engineTypes, "bolt_")

	// create sqlite engine
	sqliteEngine, err := sqlite.New(":memory:", func(o *sqlite.Options) {
		o.Common.Encryption = encryption
		o.Common.JobExecutorEnabled = false
	})
	if err != nil {
		t.Fatalf("failed to create sqlite engine: %v", err)
	}

	engines = append(engines, sqliteEngine)
	engineTypes = append(engineTypes, "sqlite_")

	t.Cleanup(func() {
		for _, e := range engines {
			e.Shutdown()
		}
	})

	databaseUrl := lookUpDatabaseUrl()
	if testing.Short() || databaseUrl == "" {
		return engines, engineTypes
	}

	// create pg engine
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, databaseUrl)
	if err != nil {
		t.Fatalf("failed to establish database connection: %v", err)
	}

	defer conn.Close(ctx)

	if databaseSchema == "" {
		databaseSchema = fmt.Sprintf("test_%s", strings.Replace(time.Now().Format("20060102150405.000"), ".", "", 1))
		_, err = conn.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", databaseSchema))
		if err != nil {
			t.Fatalf("failed to create database schema: %v", err)
		}
	} else {
		for _, table := range pg.Tables {
			_, err = conn.Exec(ctx, fmt.Sprintf("TRUNCATE %s.%s", databaseSchema, table))
			if err != nil {
				t.Fatalf("failed to truncate table %s: %v", table, err)
			}
		}
	}

	pgEngine, err := pg.New(fmt.Sprintf("%s?search_path=%s", databaseUrl, databaseSchema), func(o *pg.Options) {
		o.Common.Encryption = encryption
		o.Common.JobExecutorEnabled = false
	})
	if err != nil {
		t.Fatalf("failed to create pg engine: %v", err)
	}

	t.Cleanup(pgEngine.Shutdown)

	engines = append(engines, pgEngine)
	engineTypes = append(engineTypes, "pg_")

	return engines, engineTypes
}

func mustCreateProcess(t *testing.T, e engine.Engine, definition *model.Process) engine.Process {
	process, err := e.CreateProcess(context.Background(), engine.CreateProcessCmd{Definition: definition})
	if err != nil {
		t.Fatalf("failed to create process %s: %v", definition, err)
	}
	return process
}

func mustGetProcessInstance(t *testing.T, e engine.Engine, id string) engine.ProcessInstance {
	processInstance, err := e.GetProcessInstance(context.Background(), engine.GetProcessInstanceCmd{Id: id})
	if err != nil {
		t.Fatalf("failed to get process instance %s: %v", id, err)
	}
	return processInstance
}

func lookUpDatabaseUrl() string {
	return os.Getenv("GO_PROCENGINE_TEST_DATABASE_URL")
}
