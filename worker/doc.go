// Package worker provides a SDK to implement task handlers.
/*
A worker maps typed Go values to engine variables and back. Its task handlers are passed to an engine, when the engine is created.

Create a Worker

	w, err := worker.New()
	if err != nil {
		log.Fatalf("failed to create worker: %v", err)
	}

Implement a Task Handler

A task handler is registered by name - the name, a task node refers to via its handler attribute.

	err := w.Register("charge", func(tc worker.TaskContext) error {
		var amount int
		if err := tc.Variable("amount", &amount); err != nil {
			return err
		}

		// ...

		tc.Outcome().Put("receipt", receipt)
		return nil
	})
	if err != nil {
		log.Fatalf("failed to register task handler: %v", err)
	}

Create an Engine

	e, err := mem.New(func(o *mem.Options) {
		o.Common.TaskHandlers = w.TaskHandlers()
	})

Start a Process Instance

Variables can be used to start a process instance with typed values.

	variables := worker.Variables{}
	variables.Put("amount", 100)

	processInstance, err := w.StartProcessInstance(ctx, e, engine.StartProcessInstanceCmd{ProcessId: "order"}, variables)
	if err != nil {
		log.Printf("failed to start process instance: %v", err)
	}
*/
package worker
