// Package taskqueue implements the durable work queue stages use to signal
// each other. Claims are exclusive: a task is handed to exactly one consumer
// and never transitions backward from a terminal state.
package taskqueue
