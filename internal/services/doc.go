// Package services holds the shared error taxonomy and context plumbing
// used by the external API clients and the production pipeline.
package services
