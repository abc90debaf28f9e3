// Package bolt implements a process engine, which stores snapshots in a bbolt database file.
/*
bolt provides a full implementation of the [engine.Engine] interface, using [go.etcd.io/bbolt].

Create an Engine

A bolt engine requires the path of a database file, which is created if it does not exist.
Since bbolt obtains an exclusive file lock, only one engine can use a database file at a time.

	e, err := bolt.New("procengine.db", func(o *bolt.Options) {
		o.Common.EngineId = "my-bolt-engine"
	})
	if err != nil {
		log.Fatalf("failed to create bolt engine: %v", err)
	}

	defer e.Shutdown()

Active process instances are recovered, when an engine is created: timers are registered again and correlations are restored.
*/
package bolt
