// Package queue is a small persistent-task queue: an Enqueuer writes typed
// JSON payloads as tasks, and a Worker claims them with a lock, dispatches
// them to the Handler registered for the payload type, and records success,
// retry or dead-lettering.
//
//	type SendReport struct{ TenantID string }
//
//	store := queue.NewMemoryStorage()
//	enq, _ := queue.NewEnqueuer(store)
//	id, err := enq.Enqueue(ctx, SendReport{TenantID: "t1"}, queue.WithMaxRetries(0))
//
//	w, _ := queue.NewWorker(store)
//	w.RegisterHandlers(queue.NewTaskHandler(func(ctx context.Context, p SendReport) error {
//		return nil
//	}))
//	g.Go(w.Run(ctx))
//
// Task status is observable through the storage (MemoryStorage.GetTask),
// which is what makes fire-and-forget work pollable.
package queue
