// Package production drives one content item from planned to ready.
//
// The orchestrator owns the producing window of a content item's lifetime:
// it claims the item with a guarded status transition, uploads the shared
// character asset once, fans out the per-section generation pipeline
// (media generation and voice synthesis concurrently, then lip sync, then
// download), assembles the sections in index order, auto-corrects a leading
// artifact with one trim and one re-check, uploads every artifact, and
// persists the result. Any failure is converted into a persisted error
// status with the original error re-raised to the scheduler.
package production
