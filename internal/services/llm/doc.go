// Package llm provides the chat-completion client behind planning approval.
//
// The planner treats the model as an opaque decision function: a plan
// description in, a structured approve/reject decision out. Malformed model
// output, an unreachable endpoint, or a missing API key never block the
// pipeline; they resolve to the configured fallback decision instead.
//
// The client retries HTTP 408/429/5xx responses and network timeouts with
// increasing delays (2s, 5s, 10s). Context cancellation aborts retries
// immediately and is the only failure Decide surfaces as an error.
package llm
