package eta

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/example/ride-booking/internal/models"
)

// OSRMClient performs route lookups against an OSRM HTTP server.
type OSRMClient struct {
	Endpoint string
	Client   *http.Client
}

func NewOSRMClient(endpoint string) *OSRMClient {
	return &OSRMClient{Endpoint: strings.TrimRight(endpoint, "/"), Client: &http.Client{Timeout: 2 * time.Second}}
}

// TravelTime queries OSRM /route between points.
func (o *OSRMClient) TravelTime(ctx context.Context, from, to models.Coordinate) (time.Duration, error) {
	// OSRM wants lon,lat order: /route/v1/driving/{lon1},{lat1};{lon2},{lat2}?overview=false
	u := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=false", o.Endpoint, from.Longitude, from.Latitude, to.Longitude, to.Latitude)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, unavailable("build request: %w", err)
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return 0, unavailable("osrm request: %w", err)
	}
	defer resp.Body.Close()
	var out struct {
		Routes []struct {
			Duration *float64 `json:"duration"`
		} `json:"routes"`
		Code string `json:"code"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return 0, unavailable("decode osrm: %w", err)
	}
	// OSRM reports NoRoute with a 400, so the code is checked before the HTTP status.
	if out.Code != "" && out.Code != "Ok" {
		return 0, noRoute(out.Code)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, unavailable("osrm http status %d", resp.StatusCode)
	}
	if len(out.Routes) == 0 {
		return 0, noRoute(out.Code)
	}
	if out.Routes[0].Duration == nil || *out.Routes[0].Duration < 0 {
		return 0, unavailable("osrm route without a usable duration")
	}
	return time.Duration(*out.Routes[0].Duration * float64(time.Second)), nil
}
