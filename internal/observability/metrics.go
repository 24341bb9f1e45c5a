package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RouteLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_booking", Name: "route_lookups_total", Help: "Route provider lookups by leg and result"},
		[]string{"leg", "result"},
	)
	RankingLatency = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "ride_booking", Name: "ranking_latency_seconds", Help: "Time to rank one driver list"})
	OffersTotal    = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_booking", Name: "offers_total", Help: "Driver offers produced, split by whether the full fallback was used"},
		[]string{"fallback"},
	)

	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_booking", Name: "bookings_total", Help: "Booking saga attempts by terminal state"},
		[]string{"state"},
	)
	BookingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ride_booking",
		Name:      "booking_duration_seconds",
		Help:      "Booking saga duration from intent creation to terminal state",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
	})

	DriverLocationsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_booking", Name: "driver_locations_total", Help: "Driver location updates accepted"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_booking", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_booking",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
