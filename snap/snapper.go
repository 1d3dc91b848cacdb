package snap

import (
	"time"

	"github.com/khushalp2004/eros-tracking/geometry"
)

// Reason tags a Result with why the snap decision came out the way it did.
type Reason string

const (
	ReasonGood    Reason = "good"
	ReasonTooFar  Reason = "too_far"
	ReasonNoRoute Reason = "no_route"
)

// Options holds snapping thresholds. Zero values fall back to defaults per
// field, so callers can override a single threshold per call.
type Options struct {
	MaxSnapDistanceMeters      float64
	GPSAccuracyThresholdMeters float64
	OffRouteThresholdMeters    float64
	CacheCapacity              int
	CacheTTL                   time.Duration
}

// DefaultOptions returns the reference thresholds.
func DefaultOptions() Options {
	return Options{
		MaxSnapDistanceMeters:      50,
		GPSAccuracyThresholdMeters: 15,
		OffRouteThresholdMeters:    100,
		CacheCapacity:              1000,
		CacheTTL:                   30 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxSnapDistanceMeters <= 0 {
		o.MaxSnapDistanceMeters = d.MaxSnapDistanceMeters
	}
	if o.GPSAccuracyThresholdMeters <= 0 {
		o.GPSAccuracyThresholdMeters = d.GPSAccuracyThresholdMeters
	}
	if o.OffRouteThresholdMeters <= 0 {
		o.OffRouteThresholdMeters = d.OffRouteThresholdMeters
	}
	if o.CacheCapacity <= 0 {
		o.CacheCapacity = d.CacheCapacity
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = d.CacheTTL
	}
	return o
}

// Result is the outcome of projecting a fix onto a route.
type Result struct {
	Position             geometry.Coordinate
	Snapped              bool
	DistanceMeters       float64 // fix-to-route distance; 0 when no route
	SegmentIndex         int
	ProgressAlongSegment float64
	ProgressAlongRoute   float64
	Reason               Reason
}

// Snapper projects raw GPS fixes onto indexed routes, with a bounded
// FIFO+TTL result cache.
type Snapper struct {
	index *geometry.Index
	opts  Options
	cache *fifoCache
}

// NewSnapper creates a Snapper over the given route index.
func NewSnapper(index *geometry.Index, opts Options) *Snapper {
	opts = opts.withDefaults()
	return &Snapper{
		index: index,
		opts:  opts,
		cache: newFIFOCache(opts.CacheCapacity, opts.CacheTTL),
	}
}

// Snap projects (lat, lng) onto routeID using the Snapper's options.
func (s *Snapper) Snap(lat, lng float64, routeID string) Result {
	return s.SnapWithOptions(lat, lng, routeID, s.opts)
}

// SnapWithOptions is Snap with per-call threshold overrides. An unknown
// route is a non-fatal condition and yields an unsnapped Result.
func (s *Snapper) SnapWithOptions(lat, lng float64, routeID string, opts Options) Result {
	opts = opts.withDefaults()

	route, ok := s.index.Route(routeID)
	if !ok {
		return Result{
			Position: geometry.Coordinate{Lat: lat, Lng: lng},
			Reason:   ReasonNoRoute,
		}
	}

	key := cacheKey(routeID, lat, lng)
	if cached, hit := s.cache.get(key); hit {
		return cached
	}

	proj := geometry.NearestPointTo(geometry.Coordinate{Lat: lat, Lng: lng}, route)

	var res Result
	if proj.DistanceMeters > opts.MaxSnapDistanceMeters {
		res = Result{
			Position:             geometry.Coordinate{Lat: lat, Lng: lng},
			Snapped:              false,
			DistanceMeters:       proj.DistanceMeters,
			SegmentIndex:         proj.SegmentIndex,
			ProgressAlongSegment: proj.T,
			Reason:               ReasonTooFar,
		}
	} else {
		seg := route.Segments[proj.SegmentIndex]
		progress := 0.0
		if route.TotalDistanceMeters > 0 {
			progress = (seg.CumulativeStartMeters + seg.DistanceMeters*proj.T) / route.TotalDistanceMeters
		}
		res = Result{
			Position:             proj.Point,
			Snapped:              true,
			DistanceMeters:       proj.DistanceMeters,
			SegmentIndex:         proj.SegmentIndex,
			ProgressAlongSegment: proj.T,
			ProgressAlongRoute:   progress,
			Reason:               ReasonGood,
		}
	}
	s.cache.put(key, res)
	return res
}

// BatchSnap applies Snap over a sequence of points. Calls are independent
// apart from the shared cache.
func (s *Snapper) BatchSnap(points []geometry.Coordinate, routeID string) []Result {
	out := make([]Result, len(points))
	for i, p := range points {
		out[i] = s.Snap(p.Lat, p.Lng, routeID)
	}
	return out
}

// PurgeRoute drops cached results for a removed route.
func (s *Snapper) PurgeRoute(routeID string) {
	s.cache.purgePrefix(routeID + "|")
}
