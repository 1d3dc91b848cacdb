package snap

import "testing"

func TestShouldUseSnappedPosition(t *testing.T) {
	opts := DefaultOptions()

	tests := []struct {
		name       string
		fix        Fix
		res        Result
		wantUse    bool
		wantReason string
	}{
		{
			name:       "accurate fix near route keeps raw",
			fix:        Fix{AccuracyMeters: 5},
			res:        Result{Snapped: true, DistanceMeters: 10, Reason: ReasonGood},
			wantUse:    false,
			wantReason: "accurate_gps",
		},
		{
			name:       "poor accuracy prefers snapped",
			fix:        Fix{AccuracyMeters: 20},
			res:        Result{Snapped: true, DistanceMeters: 10, Reason: ReasonGood},
			wantUse:    true,
			wantReason: "poor_gps_accuracy",
		},
		{
			name:       "far off route prefers snapped even with good accuracy",
			fix:        Fix{AccuracyMeters: 5},
			res:        Result{Snapped: false, DistanceMeters: 200, Reason: ReasonTooFar},
			wantUse:    true,
			wantReason: "off_route",
		},
		{
			name:       "far off route with poor accuracy still reports off_route",
			fix:        Fix{AccuracyMeters: 40},
			res:        Result{Snapped: false, DistanceMeters: 200, Reason: ReasonTooFar},
			wantUse:    true,
			wantReason: "off_route",
		},
		{
			name:       "no route keeps raw",
			fix:        Fix{AccuracyMeters: 50},
			res:        Result{Reason: ReasonNoRoute},
			wantUse:    false,
			wantReason: "no_route",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adv := ShouldUseSnappedPosition(tt.fix, tt.res, opts)
			if adv.UseSnapped != tt.wantUse {
				t.Errorf("UseSnapped = %v, want %v", adv.UseSnapped, tt.wantUse)
			}
			if adv.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", adv.Reason, tt.wantReason)
			}
			if adv.Confidence < 0.5 || adv.Confidence > 1 {
				t.Errorf("Confidence out of range: %f", adv.Confidence)
			}
		})
	}
}

func TestConfidenceGrowsWithExcess(t *testing.T) {
	near := confidence(110, 100)
	far := confidence(1000, 100)
	if near >= far {
		t.Errorf("confidence should grow with distance past threshold: %f vs %f", near, far)
	}
	if got := confidence(50, 100); got != 0.5 {
		t.Errorf("value under threshold should floor at 0.5, got %f", got)
	}
	if far > 1 {
		t.Errorf("confidence exceeded 1: %f", far)
	}
}
