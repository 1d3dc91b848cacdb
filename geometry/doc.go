// Package geometry turns routing-service polylines into distance-addressable
// paths.
//
// This package handles:
// - Building per-segment cumulative distances from an ordered polyline
// - Interpolating position and heading at a distance along a route
// - Projecting arbitrary points onto the nearest route segment
//
// The Index type owns all processed routes; a route is immutable after
// ProcessRoute and disappears entirely on RemoveRoute.
package geometry
