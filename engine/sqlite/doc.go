// Package sqlite implements a process engine, which stores snapshots in a SQLite database.
/*
sqlite provides a full implementation of the [engine.Engine] interface, using the pure Go driver [modernc.org/sqlite].

Create an Engine

A sqlite engine requires a data source name - e.g. a file name or ":memory:" for an in-memory database.

	e, err := sqlite.New("file:procengine.db?_pragma=journal_mode(WAL)", func(o *sqlite.Options) {
		o.Common.EngineId = "my-sqlite-engine"
	})
	if err != nil {
		log.Fatalf("failed to create sqlite engine: %v", err)
	}

	defer e.Shutdown()
*/
package sqlite
