// Package daemon wires the background stages into a single supervised
// process: the produce watcher, the planner poll loop, and the shared
// store. A file lock guarantees only one daemon instance runs against a
// given data directory.
package daemon
