// Package main hosts the Clipforge CLI entrypoint and command graph.
//
// The Cobra-based command tree covers production runs (single item, batch,
// dry-run), task queue maintenance, content lifecycle inspection, plan
// approval, component inventory listing, and configuration scaffolding. It
// centralizes configuration resolution and database access so subcommands
// can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
