// Package progress drives per-route animation clocks so a unit's displayed
// position keeps advancing between (or in the absence of) live fixes.
//
// Each animation runs idle -> running -> {paused <-> running} ->
// {completed | cancelled}. Progress is monotonically non-decreasing while
// running and never exceeds 1; completion invokes the caller's callback
// exactly once.
package progress
