package models

import (
	"fmt"
	"math"
	"time"
)

// Coordinate is an immutable WGS84 point.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate reports whether the coordinate lies within the valid lat/lon range.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Latitude) || c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range [-90,90]", c.Latitude)
	}
	if math.IsNaN(c.Longitude) || c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range [-180,180]", c.Longitude)
	}
	return nil
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Latitude, c.Longitude)
}

type Driver struct {
	ID              int64   `json:"id"`
	FirstName       string  `json:"first_name"`
	LastName        string  `json:"last_name"`
	ProfileImageURL *string `json:"profile_image_url,omitempty"`
	CarImageURL     *string `json:"car_image_url,omitempty"`
	CarSeats        int     `json:"car_seats"`
	Rating          float64 `json:"rating"` // 0..5
}

func (d Driver) FullName() string { return d.FirstName + " " + d.LastName }

// DriverOffer is a priced, ETA-annotated driver candidate. It lives for the
// duration of a single ranking call and is never persisted.
type DriverOffer struct {
	Driver        Driver     `json:"driver"`
	Position      Coordinate `json:"position"`
	ETAMinutes    float64    `json:"eta_minutes"`
	PriceEstimate float64    `json:"price_estimate"`
	Fallback      bool       `json:"fallback,omitempty"`
}

// PriceCents returns the price estimate in minor currency units.
func (o DriverOffer) PriceCents() int64 {
	return int64(math.Round(o.PriceEstimate * 100))
}

// PaymentIntent is the processor-side handle for one booking attempt.
type PaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	AmountCents  int64  `json:"amount_cents"`
	Currency     string `json:"currency"`
	CustomerID   string `json:"customer_id"`
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

func (s PaymentStatus) Valid() bool {
	return s == PaymentPending || s == PaymentPaid
}

// RideRecordDraft carries everything needed to persist a ride; the store
// assigns RideID and CreatedAt.
type RideRecordDraft struct {
	OriginAddress      string        `json:"origin_address"`
	DestinationAddress string        `json:"destination_address"`
	Origin             Coordinate    `json:"origin"`
	Destination        Coordinate    `json:"destination"`
	RideTimeMinutes    int           `json:"ride_time"`
	FarePriceCents     int64         `json:"fare_price"`
	PaymentStatus      PaymentStatus `json:"payment_status"`
	DriverID           int64         `json:"driver_id"`
	UserID             string        `json:"user_id"`
}

// RideRecord is append-only: created once by the booking saga, never mutated.
type RideRecord struct {
	RideID int64 `json:"ride_id"`
	RideRecordDraft
	CreatedAt time.Time `json:"created_at"`
}

// RiderContext is what the booking saga knows about the rider and the trip.
type RiderContext struct {
	UserID             string     `json:"user_id"`
	FullName           string     `json:"full_name"`
	Email              string     `json:"email"`
	Origin             Coordinate `json:"origin"`
	Destination        Coordinate `json:"destination"`
	OriginAddress      string     `json:"origin_address"`
	DestinationAddress string     `json:"destination_address"`
}

// DisplayName falls back to the local part of the email like the payment sheet does.
func (r RiderContext) DisplayName() string {
	if r.FullName != "" {
		return r.FullName
	}
	for i := 0; i < len(r.Email); i++ {
		if r.Email[i] == '@' {
			return r.Email[:i]
		}
	}
	return r.Email
}

// DriverLocation is the payload drivers push and the consumer ingests.
type DriverLocation struct {
	DriverID  int64      `json:"driver_id"`
	Position  Coordinate `json:"position"`
	Timestamp time.Time  `json:"timestamp"`
}

// BookingEvent is emitted once per booking attempt when it reaches a terminal state.
type BookingEvent struct {
	AttemptID   string    `json:"attempt_id"`
	State       string    `json:"state"`
	RideID      int64     `json:"ride_id,omitempty"`
	DriverID    int64     `json:"driver_id"`
	UserID      string    `json:"user_id"`
	IntentID    string    `json:"payment_intent_id,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	Error       string    `json:"error,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}
