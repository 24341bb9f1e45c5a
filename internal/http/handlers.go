package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-booking/internal/booking"
	"github.com/example/ride-booking/internal/dispatch"
	"github.com/example/ride-booking/internal/geo"
	"github.com/example/ride-booking/internal/logging"
	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/observability"
	"github.com/example/ride-booking/internal/ranker"
	"github.com/example/ride-booking/internal/storage"
)

const maxBodyBytes = 1 << 20

type Ranker interface {
	RankDrivers(ctx context.Context, cands []ranker.Candidate, rider, destination models.Coordinate) []models.DriverOffer
}

type Booker interface {
	Book(ctx context.Context, req booking.Request) (models.RideRecord, error)
}

type LocationPublisher interface {
	PublishLocation(ctx context.Context, loc models.DriverLocation) error
}

// Deps wires the API. Locations, WS and Ready are optional.
type Deps struct {
	Drivers   storage.DriverDirectory
	Ranker    Ranker
	Booker    Booker
	Geo       geo.Locator
	Locations LocationPublisher
	WS        *dispatch.WSRegistry
	Ready     func(ctx context.Context) error
	Logger    *slog.Logger
	// Rand seeds pin scatter; nil uses a time-seeded source.
	Rand *rand.Rand
}

type Server struct {
	deps   Deps
	logger *slog.Logger
	mux    *mux.Router

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	rnd := d.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	s := &Server{deps: d, logger: logger, mux: mux.NewRouter(), rnd: rnd}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.registerMiddleware()
	s.mux.HandleFunc("/api/v1/drivers", s.handleListDrivers).Methods(http.MethodGet)
	s.mux.HandleFunc("/api/v1/offers", s.handleOffers).Methods(http.MethodPost)
	s.mux.HandleFunc("/api/v1/bookings", s.handleBooking).Methods(http.MethodPost)
	s.mux.HandleFunc("/internal/driver/locations", s.handleDriverLocation).Methods(http.MethodPost)
	s.mux.HandleFunc("/ws/{driver_id}", s.handleWS).Methods(http.MethodGet)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	s.mux.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleListDrivers(w http.ResponseWriter, r *http.Request) {
	drivers, err := s.deps.Drivers.ListDrivers(r.Context())
	if err != nil {
		s.logger.Error("list drivers failed", "error", err, "request_id", requestIDFromContext(r.Context()))
		writeError(w, r, http.StatusServiceUnavailable, "drivers_unavailable", "driver list is unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"drivers": drivers})
}

type offersRequest struct {
	Rider       models.Coordinate `json:"rider"`
	Destination models.Coordinate `json:"destination"`
}

func (s *Server) handleOffers(w http.ResponseWriter, r *http.Request) {
	var req offersRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Rider.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_rider", err.Error())
		return
	}
	if err := req.Destination.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_destination", err.Error())
		return
	}
	ctx := r.Context()
	drivers, err := s.deps.Drivers.ListDrivers(ctx)
	if err != nil {
		s.logger.Error("list drivers failed", "error", err, "request_id", requestIDFromContext(ctx))
		writeError(w, r, http.StatusServiceUnavailable, "drivers_unavailable", "driver list is unavailable")
		return
	}
	cands := s.candidates(ctx, drivers, req.Rider)
	offers := s.deps.Ranker.RankDrivers(ctx, cands, req.Rider, req.Destination)
	writeJSON(w, http.StatusOK, map[string]any{"offers": offers})
}

// candidates pairs drivers with their live position, or a pin scattered near
// the rider when none is known.
func (s *Server) candidates(ctx context.Context, drivers []models.Driver, rider models.Coordinate) []ranker.Candidate {
	ids := make([]int64, len(drivers))
	for i, d := range drivers {
		ids[i] = d.ID
	}
	var known map[int64]models.Coordinate
	if s.deps.Geo != nil {
		var err error
		known, err = s.deps.Geo.Positions(ctx, ids)
		if err != nil {
			s.logger.Warn("driver positions unavailable; scattering", "error", err)
		}
	}
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	out := make([]ranker.Candidate, len(drivers))
	for i, d := range drivers {
		pos, ok := known[d.ID]
		if !ok {
			pos = geo.Scatter(rider, s.rnd)
		}
		out[i] = ranker.Candidate{Driver: d, Position: pos}
	}
	return out
}

type bookingRequest struct {
	Rider           models.RiderContext `json:"rider"`
	Offer           models.DriverOffer  `json:"offer"`
	PaymentMethodID string              `json:"payment_method_id"`
	IdempotencyKey  string              `json:"idempotency_key"`
}

func (s *Server) handleBooking(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if !decode(w, r, &req) {
		return
	}
	if msg := validateBooking(req); msg != "" {
		writeError(w, r, http.StatusBadRequest, "invalid_booking", msg)
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}
	ride, err := s.deps.Booker.Book(r.Context(), booking.Request{
		Rider:           req.Rider,
		Offer:           req.Offer,
		PaymentMethodID: req.PaymentMethodID,
		IdempotencyKey:  req.IdempotencyKey,
	})
	if err != nil {
		status, code, msg := bookingFailure(err)
		writeError(w, r, status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ride": ride})
}

func validateBooking(req bookingRequest) string {
	var problems []string
	if err := req.Rider.Origin.Validate(); err != nil {
		problems = append(problems, "origin: "+err.Error())
	}
	if err := req.Rider.Destination.Validate(); err != nil {
		problems = append(problems, "destination: "+err.Error())
	}
	if strings.TrimSpace(req.Rider.OriginAddress) == "" || strings.TrimSpace(req.Rider.DestinationAddress) == "" {
		problems = append(problems, "origin_address and destination_address are required")
	}
	if strings.TrimSpace(req.Rider.UserID) == "" {
		problems = append(problems, "user_id is required")
	}
	if req.Offer.Driver.ID <= 0 {
		problems = append(problems, "offer.driver.id is required")
	}
	if req.Offer.PriceCents() <= 0 {
		problems = append(problems, "offer price must be positive")
	} else if err := ranker.CheckOffer(req.Offer); err != nil {
		problems = append(problems, "offer: "+err.Error())
	}
	if strings.TrimSpace(req.Rider.Email) == "" && strings.TrimSpace(req.Rider.FullName) == "" {
		problems = append(problems, "rider email or full_name is required")
	}
	if strings.TrimSpace(req.PaymentMethodID) == "" {
		problems = append(problems, "payment_method_id is required")
	}
	return strings.Join(problems, "; ")
}

func bookingFailure(err error) (int, string, string) {
	switch {
	case errors.Is(err, booking.ErrIntentCreation):
		return http.StatusBadGateway, "intent_creation_failed", "could not start the payment; you were not charged"
	case errors.Is(err, booking.ErrPaymentConfirmation):
		return http.StatusPaymentRequired, "payment_confirmation_failed", "payment was not confirmed; you were not charged"
	case errors.Is(err, booking.ErrRideCreation):
		return http.StatusInternalServerError, "ride_creation_failed", "payment succeeded but the ride could not be saved; contact support"
	default:
		return http.StatusInternalServerError, "internal_error", "booking failed"
	}
}

func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	var loc models.DriverLocation
	if !decode(w, r, &loc) {
		return
	}
	if loc.DriverID <= 0 {
		writeError(w, r, http.StatusBadRequest, "invalid_location", "driver_id is required")
		return
	}
	if err := loc.Position.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_location", err.Error())
		return
	}
	if loc.Timestamp.IsZero() {
		loc.Timestamp = time.Now().UTC()
	}
	if s.deps.Geo == nil {
		writeError(w, r, http.StatusServiceUnavailable, "geo_unavailable", "driver positions are not tracked")
		return
	}
	ctx := r.Context()
	if err := s.deps.Geo.Upsert(ctx, loc); err != nil {
		s.logger.Error("geo upsert failed", "driver_id", loc.DriverID, "error", err)
		writeError(w, r, http.StatusServiceUnavailable, "geo_unavailable", "location not stored")
		return
	}
	if s.deps.Locations != nil {
		if err := s.deps.Locations.PublishLocation(ctx, loc); err != nil {
			s.logger.Warn("publish location failed", "driver_id", loc.DriverID, "error", err)
		}
	}
	observability.DriverLocationsTotal.Inc()
	w.WriteHeader(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.deps.WS == nil {
		writeError(w, r, http.StatusNotFound, "not_found", "websocket dispatch disabled")
		return
	}
	id, err := strconv.ParseInt(mux.Vars(r)["driver_id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, "invalid_driver_id", "driver_id must be a positive integer")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the response
		return
	}
	s.deps.WS.Add(id, conn)
	defer func() {
		s.deps.WS.Remove(id, conn)
		_ = conn.Close()
	}()
	// drain control frames until the driver disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(r.Context()); err != nil {
			writeError(w, r, http.StatusServiceUnavailable, "not_ready", err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, map[string]string{
		"error":      code,
		"message":    msg,
		"request_id": requestIDFromContext(r.Context()),
	})
}
