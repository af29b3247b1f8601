// Package spantree is an execution-tracing SDK: programs mark nested units of
// work (spans) that form a tree rooted at the first span entered, the current
// span follows the work across goroutine, worker-pool, and process boundaries,
// and the resulting tree is persisted to one of several interchangeable
// backends for later inspection.
//
// # Quick Start
//
// Open a backend, start a tracing, and create spans as work nests:
//
//	tracing, _ := sqlite.NewTracing("trace.db", "root")
//	ctx, _ := tracing.Start(ctx)
//	defer tracing.End(ctx)
//
//	ctx, scope, _ := spantree.StartSpan(ctx, "load", map[string]any{"file": path})
//	defer scope.End(ctx)
//
// # Core Interfaces
//
// The root package defines the contracts that all backends implement:
//
//   - [Span] — a writable node: identity, name, merge-patched data, children
//   - [Tree] — the read-only children-navigable view of persisted spans
//   - [Tracing] — owner of one trace's root span and its active lifecycle
//   - [Ref] — a serializable span reference that crosses process boundaries
//
// # Included Backends
//
// Storage: memory (in-process tree), jsonlog (append-only log with offline
// reconstruction), store/sqlite (durable reference backend), remote (HTTP
// client/server pair over the sqlite backend, for cross-process traces).
// The propagate package carries the current span across goroutines, bounded
// worker pools, and spawned processes. The liveview package pushes the live
// tree to browsers over a websocket.
//
// See cmd/spantreed for the standalone server daemon.
package spantree
