package snap

// Fix is a single raw GPS reading.
type Fix struct {
	Latitude       float64
	Longitude      float64
	AccuracyMeters float64
	TimestampMS    int64
}

// Advice is the outcome of the snap-vs-raw policy. Advisory only; the
// caller decides what to render.
type Advice struct {
	UseSnapped bool
	Reason     string
	Confidence float64
}

// ShouldUseSnappedPosition decides whether a consumer should trust the
// snapped position over the raw fix. A fix far off the route wins over any
// accuracy reading; a poor accuracy reading wins over a nearby fix.
func ShouldUseSnappedPosition(fix Fix, res Result, opts Options) Advice {
	opts = opts.withDefaults()

	if res.Reason == ReasonNoRoute {
		return Advice{UseSnapped: false, Reason: "no_route", Confidence: 1}
	}
	if res.DistanceMeters > opts.OffRouteThresholdMeters {
		return Advice{UseSnapped: true, Reason: "off_route", Confidence: confidence(res.DistanceMeters, opts.OffRouteThresholdMeters)}
	}
	if fix.AccuracyMeters > opts.GPSAccuracyThresholdMeters {
		return Advice{UseSnapped: true, Reason: "poor_gps_accuracy", Confidence: confidence(fix.AccuracyMeters, opts.GPSAccuracyThresholdMeters)}
	}
	return Advice{UseSnapped: false, Reason: "accurate_gps", Confidence: 1}
}

// confidence grows toward 1 the further the observed value exceeds its
// threshold.
func confidence(value, threshold float64) float64 {
	if threshold <= 0 || value <= threshold {
		return 0.5
	}
	c := 1 - threshold/value
	if c < 0.5 {
		return 0.5
	}
	return c
}
