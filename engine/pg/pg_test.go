package pg

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/engine/internal"
	"github.com/gclaussn/go-procengine/engine/internal/storetest"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func TestStore(t *testing.T) {
	databaseUrl := mustCreateDatabaseSchema(t)

	suite.Run(t, &storetest.StoreSuite{
		NewStore: func() (internal.Store, error) {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			pgPool, err := pgxpool.New(ctx, databaseUrl)
			if err != nil {
				return nil, err
			}

			store := newPgStore(pgPool, 15*time.Second)
			if err := store.migrateDatabase(searchPath(databaseUrl)); err != nil {
				pgPool.Close()
				return nil, err
			}

			for _, table := range Tables {
				if _, err := pgPool.Exec(ctx, "TRUNCATE "+table); err != nil {
					pgPool.Close()
					return nil, err
				}
			}

			return store, nil
		},
	})
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	t.Run("returns error when database URL is empty", func(t *testing.T) {
		_, err := New("")
		assert.NotNil(err)
	})

	t.Run("returns error when timeout is not positive", func(t *testing.T) {
		_, err := New("postgres://localhost:5432/test", func(o *Options) {
			o.Timeout = 0
		})
		assert.NotNil(err)
	})

	t.Run("migrate existing schema", func(t *testing.T) {
		databaseUrl := mustCreateDatabaseSchema(t)

		customizer := func(o *Options) {
			o.Common.JobExecutorEnabled = false
		}

		e1, err := New(databaseUrl, customizer)
		if err != nil {
			t.Fatalf("failed to create engine: %v", err)
		}
		e1.Shutdown()

		e2, err := New(databaseUrl, customizer)
		assert.Nil(err)

		if e2 != nil {
			e2.Shutdown()
		}
	})
}

func TestSetTime(t *testing.T) {
	assert := assert.New(t)

	databaseUrl := mustCreateDatabaseSchema(t)

	e, err := New(databaseUrl, func(o *Options) {
		o.Common.JobExecutorEnabled = false
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer e.Shutdown()

	err = e.SetTime(context.Background(), engine.SetTimeCmd{Time: time.Now().Add(time.Hour)})
	assert.Nil(err)
}

// mustCreateDatabaseSchema creates a new database schema and returns a database URL, which uses the schema.
func mustCreateDatabaseSchema(t *testing.T) string {
	if testing.Short() {
		t.Skip()
	}

	databaseUrl := lookUpDatabaseUrl()
	if databaseUrl == "" {
		t.Skip("GO_PROCENGINE_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, databaseUrl)
	if err != nil {
		t.Fatalf("failed to establish database connection: %v", err)
	}

	defer conn.Close(ctx)

	databaseSchema := fmt.Sprintf("test_pg_%s", strings.Replace(time.Now().Format("20060102150405.000000"), ".", "", 1))
	_, err = conn.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", databaseSchema))
	if err != nil {
		t.Fatalf("failed to create database schema: %v", err)
	}

	return fmt.Sprintf("%s?search_path=%s", databaseUrl, databaseSchema)
}

func lookUpDatabaseUrl() string {
	return os.Getenv("GO_PROCENGINE_TEST_DATABASE_URL")
}

func searchPath(databaseUrl string) string {
	_, searchPath, _ := strings.Cut(databaseUrl, "search_path=")
	return searchPath
}
