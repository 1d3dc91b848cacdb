package geometry

import "errors"

// ErrInvalidGeometry is returned when a polyline has fewer than two coordinates.
var ErrInvalidGeometry = errors.New("invalid geometry: route needs at least 2 coordinates")

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64
	Lng float64
}

// Segment is one leg of a route between two consecutive polyline points.
type Segment struct {
	Start                 Coordinate
	End                   Coordinate
	DistanceMeters        float64
	CumulativeStartMeters float64
}

// Route is a distance-indexed representation of a polyline. Immutable once
// built; removal from the Index is the only lifecycle event after creation.
type Route struct {
	ID                  string
	Coordinates         []Coordinate
	Segments            []Segment
	TotalDistanceMeters float64
	VehicleType         string
}

func buildRoute(polyline []Coordinate, routeID, vehicleType string) (*Route, error) {
	if len(polyline) < 2 {
		return nil, ErrInvalidGeometry
	}
	coords := make([]Coordinate, len(polyline))
	copy(coords, polyline)

	segments := make([]Segment, 0, len(coords)-1)
	cum := 0.0
	for i := 0; i < len(coords)-1; i++ {
		d := HaversineMeters(coords[i].Lat, coords[i].Lng, coords[i+1].Lat, coords[i+1].Lng)
		segments = append(segments, Segment{
			Start:                 coords[i],
			End:                   coords[i+1],
			DistanceMeters:        d,
			CumulativeStartMeters: cum,
		})
		cum += d
	}
	return &Route{
		ID:                  routeID,
		Coordinates:         coords,
		Segments:            segments,
		TotalDistanceMeters: cum,
		VehicleType:         vehicleType,
	}, nil
}
