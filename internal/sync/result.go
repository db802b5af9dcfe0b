// Package sync replays offline actions against the remote LMS. It provides
// per-entity locking with join semantics, last-sync throttling, ordered
// replay with partial-failure handling, and a site-wide sweep orchestrator.
package sync

// SyncResult is the outcome of one entity sync run. Joiners of an
// in-flight run receive the same result as the initiator.
type SyncResult struct {
	// Updated reports whether any local state changed during the run,
	// including discards of rejected actions.
	Updated bool `json:"updated"`

	// Warnings are user-visible messages for actions whose offline data
	// was discarded.
	Warnings []string `json:"warnings"`
}
