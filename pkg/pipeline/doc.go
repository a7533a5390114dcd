// Package pipeline dispatches inbound event batches to a handler with bounded
// concurrency and fixed-delay retry.
//
// Batches flow one way: Submit -> Queue -> Dispatcher -> Invoker -> Handler.
// The Processor owns all of it and gates intake on its lifecycle state.
//
// Delivery is at-least-once: a failed handler call is retried with the same
// payload, up to Options.MaxRetries times, Options.RetryDelay apart. A batch
// that still fails is logged and dropped; it never stops the batches behind
// it. At most Options.Concurrency handler calls run at a time, and a retry
// keeps the slot of its first attempt.
//
// Logging, clock and tsmon state come from the context passed to Mount, so
// install them there:
//
//	ctx = gologger.StdConfig.Use(ctx)
//	p, err := pipeline.New(pipeline.Options{})
//	...
//	err = p.Mount(ctx, func(ctx context.Context, b pipeline.Payload, settings any) error {
//		return deliver(ctx, b.Messages)
//	})
//	...
//	err = p.Submit(ctx, pipeline.Payload{Messages: msgs, Type: pipeline.TypeNotify}, nil)
//	...
//	p.Shutdown(ctx)
//	_ = p.Wait(ctx)
package pipeline
