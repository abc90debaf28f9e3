// Package mem implements an in-memory process engine, used for testing purposes.
/*
mem provides a full implementation of the [engine.Engine] interface.
Snapshots of active and ended process instances and user tasks are kept in memory and are lost, when the engine is shut down.

Create an Engine

Since testing must be deterministic, a mem engine is created with a disabled job executor, not running a goroutine.
Due timers are fired by calling [engine.Engine.ExecuteJobs].
If a job executor is needed, it can be configured via [mem.Options].Common.JobExecutorEnabled.

	e, err := mem.New(func(o *mem.Options) {
		o.Common.EngineId = "my-mem-engine"
	})
	if err != nil {
		log.Fatalf("failed to create mem engine: %v", err)
	}

	defer e.Shutdown()
*/
package mem
