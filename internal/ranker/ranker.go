// Package ranker turns a driver list into priced, ETA-annotated offers.
package ranker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/example/ride-booking/internal/eta"
	"github.com/example/ride-booking/internal/logging"
	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/observability"
)

const (
	PickupFallback = 300 * time.Second
	TripFallback   = 600 * time.Second

	// Used when a driver's estimate fails for a reason other than a route error.
	FallbackETAMinutes = 15.0
	FallbackPrice      = 7.50

	PricePerMinute = 0.5

	defaultMaxConcurrency = 16
)

// Candidate joins a driver with its current position.
type Candidate struct {
	Driver   models.Driver
	Position models.Coordinate
}

type Service struct {
	Routes         eta.Provider
	Logger         *slog.Logger
	MaxConcurrency int
}

func New(routes eta.Provider, logger *slog.Logger, maxConcurrency int) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}
	return &Service{Routes: routes, Logger: logger, MaxConcurrency: maxConcurrency}
}

// Price is the fare for a trip of the given length, rounded to cents.
func Price(etaMinutes float64) float64 {
	return math.Round(etaMinutes*PricePerMinute*100) / 100
}

// RankDrivers returns exactly one offer per candidate, in input order. It never
// fails: route errors fall back to fixed leg durations and any other failure
// falls back to a fixed ETA and price for that driver only.
func (s *Service) RankDrivers(ctx context.Context, cands []Candidate, rider, destination models.Coordinate) []models.DriverOffer {
	start := time.Now()
	defer func() { observability.RankingLatency.Observe(time.Since(start).Seconds()) }()

	offers := make([]models.DriverOffer, len(cands))
	if len(cands) == 0 {
		return offers
	}

	trip := &sharedLeg{done: make(chan struct{})}
	go func() {
		defer close(trip.done)
		trip.d, trip.err = s.lookup(ctx, "trip", rider, destination, TripFallback)
	}()

	sem := make(chan struct{}, s.MaxConcurrency)
	var wg sync.WaitGroup
	for i, c := range cands {
		i, c := i, c
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
				offers[i] = s.rankOne(ctx, c, rider, trip)
			case <-ctx.Done():
				offers[i] = s.fallbackOffer(c, ctx.Err())
			}
		}()
	}
	wg.Wait()

	for _, o := range offers {
		observability.OffersTotal.WithLabelValues(strconv.FormatBool(o.Fallback)).Inc()
	}
	return offers
}

// sharedLeg is the rider-to-destination leg, computed once per ranking call.
type sharedLeg struct {
	done chan struct{}
	d    time.Duration
	err  error
}

func (l *sharedLeg) wait() (time.Duration, error) {
	<-l.done
	return l.d, l.err
}

func (s *Service) rankOne(ctx context.Context, c Candidate, rider models.Coordinate, trip *sharedLeg) (offer models.DriverOffer) {
	defer func() {
		if r := recover(); r != nil {
			offer = s.fallbackOffer(c, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := c.Position.Validate(); err != nil {
		return s.fallbackOffer(c, fmt.Errorf("driver position: %w", err))
	}
	pickup, err := s.lookup(ctx, "pickup", c.Position, rider, PickupFallback)
	if err != nil {
		return s.fallbackOffer(c, err)
	}
	tripDur, err := trip.wait()
	if err != nil {
		return s.fallbackOffer(c, err)
	}
	minutes := (pickup + tripDur).Seconds() / 60
	return models.DriverOffer{
		Driver:        c.Driver,
		Position:      c.Position,
		ETAMinutes:    minutes,
		PriceEstimate: Price(minutes),
	}
}

// lookup substitutes fallback for route errors and returns any other failure.
func (s *Service) lookup(ctx context.Context, leg string, from, to models.Coordinate, fallback time.Duration) (d time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			observability.RouteLookupsTotal.WithLabelValues(leg, "panic").Inc()
			d, err = 0, fmt.Errorf("%s lookup panic: %v", leg, r)
		}
	}()
	d, err = s.Routes.TravelTime(ctx, from, to)
	if err == nil {
		if d < 0 {
			observability.RouteLookupsTotal.WithLabelValues(leg, "invalid").Inc()
			return 0, fmt.Errorf("%s lookup returned negative duration %s", leg, d)
		}
		observability.RouteLookupsTotal.WithLabelValues(leg, "ok").Inc()
		return d, nil
	}
	var rerr *eta.RouteError
	if errors.As(err, &rerr) {
		observability.RouteLookupsTotal.WithLabelValues(leg, rerr.Kind.String()).Inc()
		s.Logger.Warn("route lookup failed, using fallback",
			"leg", leg, "error", err, "fallback_seconds", fallback.Seconds())
		return fallback, nil
	}
	observability.RouteLookupsTotal.WithLabelValues(leg, "error").Inc()
	return 0, fmt.Errorf("%s lookup: %w", leg, err)
}

func (s *Service) fallbackOffer(c Candidate, cause error) models.DriverOffer {
	s.Logger.Error("driver estimate failed, using fixed offer", "driver_id", c.Driver.ID, "error", cause)
	return models.DriverOffer{
		Driver:        c.Driver,
		Position:      c.Position,
		ETAMinutes:    FallbackETAMinutes,
		PriceEstimate: FallbackPrice,
		Fallback:      true,
	}
}

// CheckOffer reports whether an offer carries a fare this package could have
// produced: the formula price for its ETA, or the fixed fallback pair.
func CheckOffer(o models.DriverOffer) error {
	if math.IsNaN(o.ETAMinutes) || math.IsInf(o.ETAMinutes, 0) || o.ETAMinutes < 0 {
		return fmt.Errorf("eta_minutes %v must be a non-negative number", o.ETAMinutes)
	}
	if o.ETAMinutes == FallbackETAMinutes && o.PriceCents() == cents(FallbackPrice) {
		return nil
	}
	if want := cents(Price(o.ETAMinutes)); o.PriceCents() != want {
		return fmt.Errorf("price_estimate %.2f does not match %.2f for %.2f minutes", o.PriceEstimate, float64(want)/100, o.ETAMinutes)
	}
	return nil
}

func cents(v float64) int64 { return int64(math.Round(v * 100)) }
