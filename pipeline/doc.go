// Package pipeline maps named actions to ordered handler sets and executes
// them under explicit priority, continuation, and guard rules.
//
// # Architecture
//
// The engine is built from four pieces:
//
//  1. Handler table: per-action-key ordered buckets of handler entries,
//     always sorted by (priority descending, registration order ascending).
//     This ordering is the single source of truth for execution order.
//
//  2. Guard bank: per-key mutable guard state (debounce timers, throttle
//     windows, block gates) that may suppress, defer, or coalesce dispatch
//     attempts before any handler runs. Checks evaluate in the fixed order
//     Block, Throttle, Debounce.
//
//  3. Executor: walks a key's entry snapshot for one dispatch, honoring the
//     blocking flag and per-invocation continuation controllers.
//
//  4. Collector: wraps the executor for DispatchWithResult, running the
//     filtered selection in sequential, parallel, or race mode and shaping
//     outcomes with a result strategy (all, first, last, merge).
//
// # Dispatch
//
// When an action is dispatched:
//
//  1. Per-call options are validated; invalid options return a ConfigError
//  2. The guard bank decides allow, reject, or defer
//  3. On allow, the executor walks the entry snapshot taken at dispatch
//     start; concurrent register/unregister never affects an in-flight walk
//  4. Handler failures are recorded and the walk continues; failures are
//     isolated per handler
//  5. Deferred calls execute later from a guard timer with the most recent
//     payload
//
// # Priority
//
// Higher priority values run earlier. Entries with equal priority run in
// registration order.
package pipeline
