// Package notifications delivers pipeline event notifications via ntfy.
//
// The service is optional: when no ntfy topic is configured, NewService
// returns a noop implementation so callers never need nil checks. Event
// categories (production, queue, errors) can be toggled independently in
// configuration.
package notifications
