package geometry

import (
	"math"
	"sync"
)

// Index stores processed routes in memory for fast lookups. Safe for
// concurrent use; routes are immutable once stored.
type Index struct {
	mu     sync.RWMutex
	routes map[string]*Route
}

// NewIndex creates an empty route index.
func NewIndex() *Index {
	return &Index{routes: map[string]*Route{}}
}

// ProcessRoute builds a distance-indexed route from a polyline and stores it
// under routeID, replacing any previous geometry for that ID.
func (ix *Index) ProcessRoute(polyline []Coordinate, routeID, vehicleType string) (*Route, error) {
	r, err := buildRoute(polyline, routeID, vehicleType)
	if err != nil {
		return nil, err
	}
	ix.mu.Lock()
	ix.routes[routeID] = r
	ix.mu.Unlock()
	return r, nil
}

// Route returns the stored route for routeID.
func (ix *Index) Route(routeID string) (*Route, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	r, ok := ix.routes[routeID]
	return r, ok
}

// HasRoute reports whether routeID is indexed.
func (ix *Index) HasRoute(routeID string) bool {
	_, ok := ix.Route(routeID)
	return ok
}

// RemoveRoute purges the route and all derived state.
func (ix *Index) RemoveRoute(routeID string) {
	ix.mu.Lock()
	delete(ix.routes, routeID)
	ix.mu.Unlock()
}

// RouteCount returns the number of indexed routes.
func (ix *Index) RouteCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.routes)
}

// PositionAtDistance returns the interpolated point at meters along the
// route. The distance is clamped to [0, TotalDistanceMeters]. The second
// return is false for unknown routes.
func (ix *Index) PositionAtDistance(routeID string, meters float64) (Coordinate, bool) {
	r, ok := ix.Route(routeID)
	if !ok {
		return Coordinate{}, false
	}
	seg, t := r.segmentAtDistance(meters)
	return Coordinate{
		Lat: seg.Start.Lat + t*(seg.End.Lat-seg.Start.Lat),
		Lng: seg.Start.Lng + t*(seg.End.Lng-seg.Start.Lng),
	}, true
}

// HeadingAtDistance returns the bearing of the segment enclosing the given
// distance along the route.
func (ix *Index) HeadingAtDistance(routeID string, meters float64) (float64, bool) {
	r, ok := ix.Route(routeID)
	if !ok {
		return 0, false
	}
	seg, _ := r.segmentAtDistance(meters)
	return BearingDegrees(seg.Start, seg.End), true
}

// segmentAtDistance finds the segment containing meters and the in-segment
// parameter t. Distances beyond either end clamp to the boundary segments.
func (r *Route) segmentAtDistance(meters float64) (Segment, float64) {
	if meters <= 0 {
		return r.Segments[0], 0
	}
	if meters >= r.TotalDistanceMeters {
		return r.Segments[len(r.Segments)-1], 1
	}
	for _, seg := range r.Segments {
		if meters < seg.CumulativeStartMeters+seg.DistanceMeters {
			t := 0.0
			if seg.DistanceMeters > 0 {
				t = (meters - seg.CumulativeStartMeters) / seg.DistanceMeters
			}
			return seg, t
		}
	}
	return r.Segments[len(r.Segments)-1], 1
}

// Projection is the closest point on a route to a query point.
type Projection struct {
	Point              Coordinate
	SegmentIndex       int
	T                  float64 // parametric position within the segment, [0,1]
	DistanceMeters     float64 // great-circle distance from query to Point
	AlongSegmentMeters float64
}

// NearestPointTo scans all segments and returns the minimum-distance
// clamped projection of p onto the route. Linear scan; routes are tens to
// low hundreds of points.
func NearestPointTo(p Coordinate, r *Route) Projection {
	best := Projection{DistanceMeters: math.MaxFloat64}
	for i, seg := range r.Segments {
		pt, t := closestPointOnSegment(p, seg.Start, seg.End)
		d := HaversineMeters(p.Lat, p.Lng, pt.Lat, pt.Lng)
		if d < best.DistanceMeters {
			best = Projection{
				Point:              pt,
				SegmentIndex:       i,
				T:                  t,
				DistanceMeters:     d,
				AlongSegmentMeters: t * seg.DistanceMeters,
			}
		}
	}
	return best
}

// closestPointOnSegment projects p onto the segment a-b in coordinate space
// and clamps the projection parameter to the segment.
func closestPointOnSegment(p, a, b Coordinate) (Coordinate, float64) {
	vx := b.Lat - a.Lat
	vy := b.Lng - a.Lng
	wx := p.Lat - a.Lat
	wy := p.Lng - a.Lng

	denom := vx*vx + vy*vy
	t := 0.0
	if denom > 0 {
		t = (wx*vx + wy*vy) / denom
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
	}
	return Coordinate{Lat: a.Lat + t*vx, Lng: a.Lng + t*vy}, t
}
