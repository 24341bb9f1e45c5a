package eta

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/ride-booking/internal/models"
)

const (
	defaultDirectionsBaseURL = "https://maps.googleapis.com"
	maxResponseBytes         = 1 << 20
)

type GoogleConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// GoogleDirections looks up driving durations with the Directions API.
type GoogleDirections struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewGoogleDirections(cfg GoogleConfig) *GoogleDirections {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultDirectionsBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	return &GoogleDirections{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

type directionsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	Routes       []struct {
		Legs []struct {
			Duration struct {
				Value *float64 `json:"value"`
			} `json:"duration"`
		} `json:"legs"`
	} `json:"routes"`
}

func (g *GoogleDirections) TravelTime(ctx context.Context, from, to models.Coordinate) (time.Duration, error) {
	q := url.Values{}
	q.Set("origin", from.String())
	q.Set("destination", to.String())
	q.Set("key", g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/maps/api/directions/json?"+q.Encode(), nil)
	if err != nil {
		return 0, unavailable("build request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return 0, unavailable("directions request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, unavailable("directions http status %d", resp.StatusCode)
	}

	var out directionsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return 0, unavailable("decode directions: %w", err)
	}
	if out.Status != "OK" || len(out.Routes) == 0 || len(out.Routes[0].Legs) == 0 {
		return 0, noRoute(out.Status)
	}
	v := out.Routes[0].Legs[0].Duration.Value
	if v == nil || *v < 0 {
		return 0, unavailable("directions leg without a usable duration")
	}
	return time.Duration(*v * float64(time.Second)), nil
}
