package eta

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-booking/internal/models"
)

var (
	sf     = models.Coordinate{Latitude: 37.7, Longitude: -122.4}
	marina = models.Coordinate{Latitude: 37.8, Longitude: -122.5}
)

func TestGoogleDirections_TravelTime(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		want     time.Duration
		wantKind ErrorKind
	}{
		{
			name:   "ok",
			status: http.StatusOK,
			body:   `{"status":"OK","routes":[{"legs":[{"duration":{"value":400,"text":"7 mins"}}]}]}`,
			want:   400 * time.Second,
		},
		{
			name:     "zero results",
			status:   http.StatusOK,
			body:     `{"status":"ZERO_RESULTS","routes":[]}`,
			wantKind: NoRoute,
		},
		{
			name:     "request denied",
			status:   http.StatusOK,
			body:     `{"status":"REQUEST_DENIED","error_message":"bad key"}`,
			wantKind: NoRoute,
		},
		{
			name:     "ok without routes",
			status:   http.StatusOK,
			body:     `{"status":"OK","routes":[]}`,
			wantKind: NoRoute,
		},
		{
			name:     "ok without legs",
			status:   http.StatusOK,
			body:     `{"status":"OK","routes":[{"legs":[]}]}`,
			wantKind: NoRoute,
		},
		{
			name:     "missing duration value",
			status:   http.StatusOK,
			body:     `{"status":"OK","routes":[{"legs":[{"duration":{}}]}]}`,
			wantKind: Unavailable,
		},
		{
			name:     "malformed json",
			status:   http.StatusOK,
			body:     `<html>oops</html>`,
			wantKind: Unavailable,
		},
		{
			name:     "server error",
			status:   http.StatusInternalServerError,
			body:     `{}`,
			wantKind: Unavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/maps/api/directions/json", r.URL.Path)
				assert.Equal(t, sf.String(), r.URL.Query().Get("origin"))
				assert.Equal(t, marina.String(), r.URL.Query().Get("destination"))
				assert.Equal(t, "test-key", r.URL.Query().Get("key"))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			g := NewGoogleDirections(GoogleConfig{APIKey: "test-key", BaseURL: server.URL})
			got, err := g.TravelTime(context.Background(), sf, marina)

			if tt.wantKind == 0 {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}
			var rerr *RouteError
			require.True(t, errors.As(err, &rerr), "expected *RouteError, got %T", err)
			assert.Equal(t, tt.wantKind, rerr.Kind)
		})
	}
}

func TestGoogleDirections_NetworkFailureIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	g := NewGoogleDirections(GoogleConfig{APIKey: "k", BaseURL: url, Timeout: 200 * time.Millisecond})
	_, err := g.TravelTime(context.Background(), sf, marina)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.False(t, errors.Is(err, ErrNoRoute))
}

func TestRouteErrorIs(t *testing.T) {
	err := noRoute("NOT_FOUND")
	assert.ErrorIs(t, err, ErrNoRoute)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "NOT_FOUND")
}
