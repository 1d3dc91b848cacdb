// Package registry is the source of truth consumers read unit/route state
// from. It polls the REST collaborator for authoritative route snapshots on
// a fixed interval, merges push-channel deltas last-writer-wins by
// timestamp, and publishes the merged view to subscribers on every refresh.
package registry
