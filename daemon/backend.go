package daemon

import (
	"fmt"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/engine/bolt"
	"github.com/gclaussn/go-procengine/engine/mem"
	"github.com/gclaussn/go-procengine/engine/pg"
	"github.com/gclaussn/go-procengine/engine/sqlite"
)

// newEngine creates an engine of the configured backend.
func newEngine(options Options, common engine.Options) (engine.Engine, error) {
	switch options.Backend {
	case backendBolt:
		return bolt.New(options.BoltPath, func(o *bolt.Options) {
			o.Common = common
		})
	case backendMem:
		return mem.New(func(o *mem.Options) {
			o.Common = common
		})
	case backendPg:
		return pg.New(options.PgDatabaseUrl, func(o *pg.Options) {
			o.Common = common
		})
	case backendSqlite:
		return sqlite.New(options.SqliteDataSourceName, func(o *sqlite.Options) {
			o.Common = common
		})
	default:
		return nil, fmt.Errorf("unsupported backend %q", options.Backend)
	}
}

// requireBackendOption marks the option of the selected backend as erroneous, when it is empty.
func requireBackendOption(conf *conf, options Options) {
	var key, value string
	switch options.Backend {
	case backendBolt:
		key, value = optBoltPath, options.BoltPath
	case backendPg:
		key, value = optPgDatabaseUrl, options.PgDatabaseUrl
	case backendSqlite:
		key, value = optSqliteDataSourceName, options.SqliteDataSourceName
	default:
		return
	}

	if value == "" {
		conf.opts[key].err = fmt.Errorf("is empty, but required by backend %s", options.Backend)
	}
}
