package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Position is a WGS84 point as the collaborator serializes it.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// RouteSnapshot is the backend-authoritative view of one dispatched route.
type RouteSnapshot struct {
	Positions         []Position `json:"positions"`
	TotalDistance     float64    `json:"total_distance"`     // meters
	EstimatedDuration float64    `json:"estimated_duration"` // seconds
	Progress          float64    `json:"progress"`
	CurrentPosition   Position   `json:"current_position"`
}

// UnitInfo is the unit summary attached to an active route.
type UnitInfo struct {
	ServiceType string `json:"service_type"`
	Status      string `json:"status"`
}

// ActiveRoute pairs a unit with its dispatched route and progress.
type ActiveRoute struct {
	UnitID      string        `json:"unit_id"`
	EmergencyID string        `json:"emergency_id"`
	Route       RouteSnapshot `json:"route"`
	Unit        UnitInfo      `json:"unit"`
}

// UnitLocation is one entry of the startup location bootstrap.
type UnitLocation struct {
	UnitID      string   `json:"unit_id"`
	Location    Position `json:"location"`
	ServiceType string   `json:"service_type"`
	Status      string   `json:"status"`
}

// CalculateRouteRequest asks the collaborator to compute a route from the
// unit's current position to a destination.
type CalculateRouteRequest struct {
	UnitID       string  `json:"unit_id"`
	EndLatitude  float64 `json:"end_latitude"`
	EndLongitude float64 `json:"end_longitude"`
	Profile      string  `json:"profile,omitempty"`
}

// Client talks to the REST collaborator that owns route snapshots.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client for baseURL. A zero timeout defaults to 30s.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ActiveUnitRoutes fetches the authoritative {unit, route, progress}
// snapshots.
func (c *Client) ActiveUnitRoutes(ctx context.Context) ([]ActiveRoute, error) {
	var out struct {
		ActiveRoutes []ActiveRoute `json:"active_routes"`
	}
	if err := c.getJSON(ctx, "/active-unit-routes", &out); err != nil {
		return nil, err
	}
	return out.ActiveRoutes, nil
}

// AllUnitLocations fetches the startup location bootstrap consumed once by
// the registry's cold path.
func (c *Client) AllUnitLocations(ctx context.Context) ([]UnitLocation, error) {
	var out struct {
		Units []UnitLocation `json:"units"`
		Count int            `json:"count"`
	}
	if err := c.getJSON(ctx, "/location/units/all", &out); err != nil {
		return nil, err
	}
	return out.Units, nil
}

// Units fetches the unit roster.
func (c *Client) Units(ctx context.Context) ([]UnitInfo, error) {
	var out struct {
		Units []UnitInfo `json:"units"`
	}
	if err := c.getJSON(ctx, "/units", &out); err != nil {
		return nil, err
	}
	return out.Units, nil
}

// CalculateRoute requests an on-demand route computation.
func (c *Client) CalculateRoute(ctx context.Context, req CalculateRouteRequest) (RouteSnapshot, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return RouteSnapshot{}, fmt.Errorf("marshal route request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/route/calculate", bytes.NewReader(body))
	if err != nil {
		return RouteSnapshot{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return RouteSnapshot{}, fmt.Errorf("route calculate: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return RouteSnapshot{}, fmt.Errorf("HTTP %d from /route/calculate", resp.StatusCode)
	}
	var out struct {
		Route RouteSnapshot `json:"route"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return RouteSnapshot{}, fmt.Errorf("decode route response: %w", err)
	}
	return out.Route, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, path)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
