package storage

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/example/ride-booking/internal/models"
)

// RideStore persists finalized rides. It is append-only.
type RideStore interface {
	Insert(ctx context.Context, draft models.RideRecordDraft) (models.RideRecord, error)
}

// DriverDirectory lists the drivers that can be offered to riders.
type DriverDirectory interface {
	ListDrivers(ctx context.Context) ([]models.Driver, error)
}

// ValidateDraft checks a draft before it reaches any backend.
func ValidateDraft(d models.RideRecordDraft) error {
	var bad []string
	if strings.TrimSpace(d.OriginAddress) == "" {
		bad = append(bad, "origin_address")
	}
	if strings.TrimSpace(d.DestinationAddress) == "" {
		bad = append(bad, "destination_address")
	}
	if d.Origin.Validate() != nil {
		bad = append(bad, "origin")
	}
	if d.Destination.Validate() != nil {
		bad = append(bad, "destination")
	}
	if d.RideTimeMinutes < 0 {
		bad = append(bad, "ride_time")
	}
	if d.FarePriceCents < 0 {
		bad = append(bad, "fare_price")
	}
	if !d.PaymentStatus.Valid() {
		bad = append(bad, "payment_status")
	}
	if d.DriverID <= 0 {
		bad = append(bad, "driver_id")
	}
	if strings.TrimSpace(d.UserID) == "" {
		bad = append(bad, "user_id")
	}
	if len(bad) > 0 {
		return &StoreError{Kind: Validation, Fields: bad}
	}
	return nil
}

type MemoryStore struct {
	mu      sync.RWMutex
	rides   []models.RideRecord
	drivers []models.Driver
	nextID  int64
	now     func() time.Time
}

func NewMemoryStore(drivers ...models.Driver) *MemoryStore {
	return &MemoryStore{drivers: drivers, nextID: 1, now: time.Now}
}

func (m *MemoryStore) Insert(_ context.Context, d models.RideRecordDraft) (models.RideRecord, error) {
	if err := ValidateDraft(d); err != nil {
		return models.RideRecord{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := models.RideRecord{RideID: m.nextID, RideRecordDraft: d, CreatedAt: m.now().UTC()}
	m.nextID++
	m.rides = append(m.rides, r)
	return r, nil
}

// Rides returns a snapshot of everything inserted so far.
func (m *MemoryStore) Rides() []models.RideRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.RideRecord(nil), m.rides...)
}

func (m *MemoryStore) ListDrivers(_ context.Context) ([]models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Driver(nil), m.drivers...), nil
}

// SampleDrivers is the seed set served when no database is configured.
func SampleDrivers() []models.Driver {
	img := func(s string) *string { return &s }
	return []models.Driver{
		{ID: 1, FirstName: "John", LastName: "Doe", ProfileImageURL: img("https://example.com/john.jpg"), CarImageURL: img("https://example.com/car1.jpg"), CarSeats: 4, Rating: 4.8},
		{ID: 2, FirstName: "Jane", LastName: "Smith", ProfileImageURL: img("https://example.com/jane.jpg"), CarImageURL: img("https://example.com/car2.jpg"), CarSeats: 4, Rating: 4.9},
		{ID: 3, FirstName: "Mike", LastName: "Johnson", ProfileImageURL: img("https://example.com/mike.jpg"), CarImageURL: img("https://example.com/car3.jpg"), CarSeats: 6, Rating: 4.7},
	}
}
