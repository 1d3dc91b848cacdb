// Package snap projects noisy GPS fixes onto indexed routes and advises
// whether to trust the fix or the snap.
//
// Results are cached per (route, quantized position) in a capacity-bounded
// FIFO with a TTL check on read. Eviction is oldest-first by insertion, not
// least-recently-used.
package snap
