// Package handler provides the handler entry, continuation controller, and
// result types for the action pipeline.
//
// A handler is a function registered against an action key. The pipeline
// invokes handlers in table order (priority descending, registration order
// ascending) and uses a Controller per invocation to decide whether the walk
// continues to the next entry.
//
// # Continuation
//
// Each invocation receives a fresh Controller. The continuation rules are:
//
//   - A blocking handler is awaited; the walk continues after it returns
//     unless the handler called Stop.
//   - A non-blocking handler runs without being awaited, but must call Next
//     before returning for the walk to proceed. Returning without a verdict
//     halts the walk, which is how "first matching handler wins" patterns
//     are built.
//
// # Outcomes
//
// Result collection wraps each handler execution in an Outcome and the whole
// dispatch in an Envelope. Outcomes are constructed once per execution and
// never mutated after the envelope is returned.
package handler
