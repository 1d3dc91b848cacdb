package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCalculateRoute(t *testing.T) {
	var gotBody CalculateRouteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/route/calculate" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"route": RouteSnapshot{TotalDistance: 2500, EstimatedDuration: 480, Progress: 0},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	route, err := c.CalculateRoute(context.Background(), CalculateRouteRequest{
		UnitID:       "u1",
		EndLatitude:  19.08,
		EndLongitude: 72.88,
		Profile:      "driving",
	})
	if err != nil {
		t.Fatalf("CalculateRoute failed: %v", err)
	}
	if route.TotalDistance != 2500 || route.EstimatedDuration != 480 {
		t.Errorf("unexpected route %+v", route)
	}
	if gotBody.UnitID != "u1" || gotBody.Profile != "driving" {
		t.Errorf("request body mangled: %+v", gotBody)
	}
}

func TestClientNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if _, err := c.ActiveUnitRoutes(context.Background()); err == nil {
		t.Errorf("expected error on HTTP 500")
	} else if !strings.Contains(err.Error(), "500") {
		t.Errorf("error should carry the status code: %v", err)
	}
}

func TestClientDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if _, err := c.AllUnitLocations(context.Background()); err == nil {
		t.Errorf("expected decode error")
	}
}
