package ranker

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-booking/internal/eta"
	"github.com/example/ride-booking/internal/models"
)

var (
	rider       = models.Coordinate{Latitude: 37.7, Longitude: -122.4}
	destination = models.Coordinate{Latitude: 37.8, Longitude: -122.5}
)

// fakeRoutes answers per origin; the rider->destination leg is keyed by the rider position.
type fakeRoutes struct {
	mu    sync.Mutex
	calls map[models.Coordinate]int
	fn    func(from, to models.Coordinate) (time.Duration, error)
}

func newFakeRoutes(fn func(from, to models.Coordinate) (time.Duration, error)) *fakeRoutes {
	return &fakeRoutes{calls: make(map[models.Coordinate]int), fn: fn}
}

func (f *fakeRoutes) TravelTime(_ context.Context, from, to models.Coordinate) (time.Duration, error) {
	f.mu.Lock()
	f.calls[from]++
	f.mu.Unlock()
	return f.fn(from, to)
}

func (f *fakeRoutes) callsFrom(c models.Coordinate) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[c]
}

func cand(id int64, lat, lon float64) Candidate {
	return Candidate{
		Driver:   models.Driver{ID: id, FirstName: "Driver", LastName: "Test", CarSeats: 4, Rating: 4.8},
		Position: models.Coordinate{Latitude: lat, Longitude: lon},
	}
}

func TestRankDrivers_FixedDurations(t *testing.T) {
	routes := newFakeRoutes(func(from, to models.Coordinate) (time.Duration, error) {
		if from == rider {
			return 500 * time.Second, nil
		}
		return 400 * time.Second, nil
	})
	s := New(routes, nil, 4)

	offers := s.RankDrivers(context.Background(), []Candidate{cand(1, 37.71, -122.41)}, rider, destination)
	require.Len(t, offers, 1)
	assert.Equal(t, int64(1), offers[0].Driver.ID)
	assert.InDelta(t, 15.0, offers[0].ETAMinutes, 1e-9)
	assert.Equal(t, 7.50, offers[0].PriceEstimate)
	assert.False(t, offers[0].Fallback)
}

func TestRankDrivers_PreservesOrderAndPrices(t *testing.T) {
	cands := []Candidate{
		cand(7, 37.75, -122.45),
		cand(3, 37.71, -122.41),
		cand(9, 37.60, -122.30),
		cand(1, 37.70, -122.39),
	}
	pickup := map[models.Coordinate]time.Duration{
		cands[0].Position: 1234 * time.Second,
		cands[1].Position: 61 * time.Second,
		cands[2].Position: 2000 * time.Second,
		cands[3].Position: 7 * time.Second,
	}
	routes := newFakeRoutes(func(from, to models.Coordinate) (time.Duration, error) {
		if from == rider {
			return 777 * time.Second, nil
		}
		return pickup[from], nil
	})

	offers := New(routes, nil, 2).RankDrivers(context.Background(), cands, rider, destination)
	require.Len(t, offers, len(cands))
	for i, o := range offers {
		assert.Equal(t, cands[i].Driver.ID, o.Driver.ID, "offer %d out of order", i)
		assert.Equal(t, cands[i].Position, o.Position)
		wantMinutes := (pickup[cands[i].Position] + 777*time.Second).Seconds() / 60
		assert.InDelta(t, wantMinutes, o.ETAMinutes, 1e-9)
		assert.Equal(t, math.Round(o.ETAMinutes*0.5*100)/100, o.PriceEstimate)
	}
	assert.Equal(t, 1, routes.callsFrom(rider), "trip leg must be looked up once per call")
}

func TestRankDrivers_RouteErrorsUseLegFallbacks(t *testing.T) {
	tests := []struct {
		name        string
		pickupErr   error
		tripErr     error
		wantMinutes float64
	}{
		{name: "pickup no route", pickupErr: &eta.RouteError{Kind: eta.NoRoute, Status: "ZERO_RESULTS"}, wantMinutes: (300 + 120) / 60.0},
		{name: "trip unavailable", tripErr: &eta.RouteError{Kind: eta.Unavailable}, wantMinutes: (60 + 600) / 60.0},
		{name: "both fail", pickupErr: &eta.RouteError{Kind: eta.NoRoute}, tripErr: &eta.RouteError{Kind: eta.NoRoute}, wantMinutes: 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			routes := newFakeRoutes(func(from, to models.Coordinate) (time.Duration, error) {
				if from == rider {
					return 120 * time.Second, tt.tripErr
				}
				return 60 * time.Second, tt.pickupErr
			})
			offers := New(routes, nil, 0).RankDrivers(context.Background(), []Candidate{cand(1, 37.71, -122.41), cand(2, 37.72, -122.42)}, rider, destination)
			require.Len(t, offers, 2)
			for _, o := range offers {
				assert.InDelta(t, tt.wantMinutes, o.ETAMinutes, 1e-9)
				assert.Equal(t, Price(tt.wantMinutes), o.PriceEstimate)
				assert.False(t, o.Fallback)
			}
		})
	}
}

func TestRankDrivers_EveryLookupFails(t *testing.T) {
	routes := newFakeRoutes(func(from, to models.Coordinate) (time.Duration, error) {
		return 0, &eta.RouteError{Kind: eta.Unavailable, Err: errors.New("dial tcp: refused")}
	})
	cands := []Candidate{cand(1, 37.71, -122.41), cand(2, 37.72, -122.42), cand(3, 37.73, -122.43)}

	offers := New(routes, nil, 0).RankDrivers(context.Background(), cands, rider, destination)
	require.Len(t, offers, 3)
	for i, o := range offers {
		assert.Equal(t, cands[i].Driver.ID, o.Driver.ID)
		assert.InDelta(t, 15.0, o.ETAMinutes, 1e-9)
		assert.Equal(t, 7.50, o.PriceEstimate)
	}
}

func TestRankDrivers_UnexpectedFailureIsIsolated(t *testing.T) {
	broken := cand(2, 37.72, -122.42)
	panicky := cand(3, 37.73, -122.43)
	routes := newFakeRoutes(func(from, to models.Coordinate) (time.Duration, error) {
		switch from {
		case rider:
			return 600 * time.Second, nil
		case broken.Position:
			return 0, errors.New("provider exploded")
		case panicky.Position:
			panic("nil map")
		}
		return 300 * time.Second, nil
	})
	invalid := cand(4, 123, -122.4)
	cands := []Candidate{cand(1, 37.71, -122.41), broken, panicky, invalid}

	offers := New(routes, nil, 0).RankDrivers(context.Background(), cands, rider, destination)
	require.Len(t, offers, 4)

	assert.False(t, offers[0].Fallback)
	assert.InDelta(t, 15.0, offers[0].ETAMinutes, 1e-9)

	for _, o := range offers[1:] {
		assert.True(t, o.Fallback, "driver %d", o.Driver.ID)
		assert.Equal(t, FallbackETAMinutes, o.ETAMinutes)
		assert.Equal(t, FallbackPrice, o.PriceEstimate)
	}
	assert.Zero(t, routes.callsFrom(invalid.Position), "invalid positions are not sent to the provider")
}

func TestRankDrivers_TripLegUnexpectedFailure(t *testing.T) {
	routes := newFakeRoutes(func(from, to models.Coordinate) (time.Duration, error) {
		if from == rider {
			return 0, errors.New("boom")
		}
		return time.Minute, nil
	})
	offers := New(routes, nil, 0).RankDrivers(context.Background(), []Candidate{cand(1, 37.71, -122.41)}, rider, destination)
	require.Len(t, offers, 1)
	assert.True(t, offers[0].Fallback)
	assert.Equal(t, FallbackPrice, offers[0].PriceEstimate)
}

func TestRankDrivers_CancelledContextStillAnswers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	routes := newFakeRoutes(func(from, to models.Coordinate) (time.Duration, error) {
		return 0, &eta.RouteError{Kind: eta.Unavailable, Err: context.Canceled}
	})
	cands := []Candidate{cand(1, 37.71, -122.41), cand(2, 37.72, -122.42)}

	offers := New(routes, nil, 1).RankDrivers(ctx, cands, rider, destination)
	require.Len(t, offers, 2)
	for i, o := range offers {
		assert.Equal(t, cands[i].Driver.ID, o.Driver.ID)
		assert.InDelta(t, 15.0, o.ETAMinutes, 1e-9)
	}
}

func TestRankDrivers_Empty(t *testing.T) {
	routes := newFakeRoutes(func(from, to models.Coordinate) (time.Duration, error) { return time.Minute, nil })
	offers := New(routes, nil, 0).RankDrivers(context.Background(), nil, rider, destination)
	assert.Empty(t, offers)
	assert.Zero(t, routes.callsFrom(rider))
}

func TestPrice(t *testing.T) {
	assert.Equal(t, 7.5, Price(15))
	assert.Equal(t, 0.0, Price(0))
	assert.Equal(t, 3.46, Price(6.916666))
	assert.Equal(t, 12.34, Price(24.68))
}

func TestCheckOffer(t *testing.T) {
	tests := []struct {
		name  string
		offer models.DriverOffer
		ok    bool
	}{
		{"formula", models.DriverOffer{ETAMinutes: 15.4, PriceEstimate: 7.7}, true},
		{"fallback pair", models.DriverOffer{ETAMinutes: FallbackETAMinutes, PriceEstimate: FallbackPrice, Fallback: true}, true},
		{"tampered price", models.DriverOffer{ETAMinutes: 60, PriceEstimate: 0.01}, false},
		{"negative eta", models.DriverOffer{ETAMinutes: -2, PriceEstimate: -1}, false},
		{"nan eta", models.DriverOffer{ETAMinutes: math.NaN(), PriceEstimate: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckOffer(tt.offer)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
