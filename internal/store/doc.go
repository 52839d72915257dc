// Package store persists content and publication records in SQLite and
// enforces their status state machines.
//
// Every cross-stage signal in the pipeline is a guarded status write
// followed by a poll or a task enqueue; stages never call each other
// directly. Transitions not present in the transition tables are rejected
// before any database statement runs, and the UPDATE itself is guarded by
// the source status so concurrent writers lose races silently (zero
// affected rows) instead of corrupting state.
package store
