// Package guard suppresses or defers excess dispatches per action key.
//
// A guard Spec configures up to three checks for a key: a block gate, a
// throttle window, and a debounce delay. The bank evaluates configured
// checks in the fixed order Block, Throttle, Debounce, short-circuiting on
// the first rejection.
//
// Guard state is created lazily on the first guarded dispatch for a key and
// owned exclusively by the Bank. Every timer the bank schedules is tracked
// per key; dropping a key or calling ResetAll cancels outstanding timers so
// no trailing execution fires against an unregistered pipeline.
//
// Mutation of one key's state is serialized by a per-key mutex; dispatches
// on different keys never block each other.
package guard
