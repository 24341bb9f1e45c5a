// Package dispatch pushes booked rides to connected driver apps.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-booking/internal/logging"
	"github.com/example/ride-booking/internal/models"
)

const writeWait = 5 * time.Second

var ErrNoSession = errors.New("no ws session for driver")

// Assignment is the message a driver receives when a rider books them.
type Assignment struct {
	Type string            `json:"type"`
	Ride models.RideRecord `json:"ride"`
}

// WSSession represents a connected driver session
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

// WSRegistry holds driver sessions
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[int64]*WSSession
	logger   *slog.Logger
}

func NewWSRegistry(logger *slog.Logger) *WSRegistry {
	if logger == nil {
		logger = logging.Discard()
	}
	return &WSRegistry{sessions: make(map[int64]*WSSession), logger: logger}
}

// Add registers conn for the driver, closing any previous session.
func (r *WSRegistry) Add(driverID int64, conn *websocket.Conn) {
	r.mu.Lock()
	prev := r.sessions[driverID]
	r.sessions[driverID] = &WSSession{conn: conn}
	r.mu.Unlock()
	if prev != nil {
		_ = prev.conn.Close()
	}
}

// Remove drops the session only if it still belongs to conn.
func (r *WSRegistry) Remove(driverID int64, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[driverID]; ok && s.conn == conn {
		delete(r.sessions, driverID)
	}
}

func (r *WSRegistry) Connected(driverID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[driverID]
	return ok
}

func (r *WSRegistry) Notify(driverID int64, a Assignment) error {
	r.mu.RLock()
	s, ok := r.sessions[driverID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return s.send(a)
}

// RideBooked has the shape of booking.BookedFunc. A driver without a live
// session simply misses the push.
func (r *WSRegistry) RideBooked(_ context.Context, ride models.RideRecord) {
	err := r.Notify(ride.DriverID, Assignment{Type: "ride_booked", Ride: ride})
	switch {
	case err == nil:
		r.logger.Info("driver notified", "driver_id", ride.DriverID, "ride_id", ride.RideID)
	case errors.Is(err, ErrNoSession):
		r.logger.Debug("driver not connected", "driver_id", ride.DriverID, "ride_id", ride.RideID)
	default:
		r.logger.Warn("ws send failed", "driver_id", ride.DriverID, "error", err)
	}
}
