// Package olakai wraps AI/LLM call sites with pre-call policy gating,
// best-effort usage monitoring, and optional input/output sanitization.
//
// A Client owns one Config, one batch queue, one transport, and one
// background worker pool. Supervise (or its alias SuperviseSync) wraps a
// typed function so every call is gated by a remote control decision before
// it runs, and reported to a remote monitoring endpoint afterward:
//
//	client, err := olakai.NewClient(apiKey, domain)
//	wrapped := olakai.Supervise(client, myFunc, olakai.MonitorOptions{Sanitize: true})
//	result, err := wrapped(ctx, args)
//
// See [github.com/joeycumines/go-microbatch] for the batching pattern this
// SDK's queue manager generalizes, and
// [github.com/joeycumines/logiface] for the structured logging sink every
// subsystem here writes through.
package olakai
