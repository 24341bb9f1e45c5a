// Package geo tracks the last reported position of each driver.
package geo

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/example/ride-booking/internal/models"
)

// ScatterRadius is the max offset in degrees used to place a driver pin near
// the rider when no live position is known.
const ScatterRadius = 0.005

// Locator is what the HTTP layer and the location consumer need.
type Locator interface {
	Upsert(ctx context.Context, loc models.DriverLocation) error
	// Positions returns the known positions for the given ids; unknown ids are absent.
	Positions(ctx context.Context, driverIDs []int64) (map[int64]models.Coordinate, error)
}

type Index struct {
	mu      sync.RWMutex
	drivers map[int64]models.DriverLocation
	now     func() time.Time
}

func NewIndex() *Index {
	return &Index{drivers: make(map[int64]models.DriverLocation), now: time.Now}
}

func (g *Index) Upsert(_ context.Context, loc models.DriverLocation) error {
	if err := loc.Position.Validate(); err != nil {
		return err
	}
	if loc.Timestamp.IsZero() {
		loc.Timestamp = g.now()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	// out-of-order updates never move a driver back in time
	if cur, ok := g.drivers[loc.DriverID]; ok && cur.Timestamp.After(loc.Timestamp) {
		return nil
	}
	g.drivers[loc.DriverID] = loc
	return nil
}

func (g *Index) Positions(_ context.Context, driverIDs []int64) (map[int64]models.Coordinate, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[int64]models.Coordinate, len(driverIDs))
	for _, id := range driverIDs {
		if loc, ok := g.drivers[id]; ok {
			out[id] = loc.Position
		}
	}
	return out, nil
}

// Scatter returns a point within ScatterRadius degrees of center on each axis.
func Scatter(center models.Coordinate, rnd *rand.Rand) models.Coordinate {
	p := models.Coordinate{
		Latitude:  center.Latitude + (rnd.Float64()*2-1)*ScatterRadius,
		Longitude: center.Longitude + (rnd.Float64()*2-1)*ScatterRadius,
	}
	if p.Latitude > 90 {
		p.Latitude = 90
	} else if p.Latitude < -90 {
		p.Latitude = -90
	}
	return p
}
