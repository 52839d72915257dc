// Package watcher schedules production runs against a fixed concurrency
// budget. It is the only consumer of produce tasks: each poll cycle claims
// up to the free capacity, guards against double-starting a content id,
// heartbeats every in-flight claim, and reclaims claims whose consumer died.
// Shutdown is a cooperative drain, never a hard abort.
package watcher
