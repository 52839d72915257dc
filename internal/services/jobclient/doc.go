// Package jobclient implements the submit-and-poll HTTP contract shared by
// every external generation capability (media generation, voice synthesis,
// lip sync). A job is POSTed, polled until terminal, and resolved to an
// artifact reference; transient failures are retried against a bounded
// backoff ladder while client-side rejections propagate immediately.
package jobclient
