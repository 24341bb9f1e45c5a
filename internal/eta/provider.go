package eta

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/ride-booking/internal/models"
)

// Provider returns the travel time between two coordinates. Implementations
// make exactly one outbound call per invocation and report every failure as
// a *RouteError.
type Provider interface {
	TravelTime(ctx context.Context, from, to models.Coordinate) (time.Duration, error)
}

// ProviderFunc adapts a plain function to Provider.
type ProviderFunc func(ctx context.Context, from, to models.Coordinate) (time.Duration, error)

func (f ProviderFunc) TravelTime(ctx context.Context, from, to models.Coordinate) (time.Duration, error) {
	return f(ctx, from, to)
}

type ErrorKind int

const (
	// NoRoute: the provider answered but had no usable route.
	NoRoute ErrorKind = iota + 1
	// Unavailable: the provider could not be reached or its answer could not be read.
	Unavailable
)

func (k ErrorKind) String() string {
	switch k {
	case NoRoute:
		return "no_route"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

var (
	ErrNoRoute     = errors.New("no route")
	ErrUnavailable = errors.New("route provider unavailable")
)

type RouteError struct {
	Kind   ErrorKind
	Status string // provider status string, when one was returned
	Err    error
}

func (e *RouteError) Error() string {
	msg := "route " + e.Kind.String()
	if e.Status != "" {
		msg += fmt.Sprintf(" (status=%s)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RouteError) Unwrap() error { return e.Err }

func (e *RouteError) Is(target error) bool {
	switch target {
	case ErrNoRoute:
		return e.Kind == NoRoute
	case ErrUnavailable:
		return e.Kind == Unavailable
	}
	return false
}

func noRoute(status string) error {
	return &RouteError{Kind: NoRoute, Status: status}
}

func unavailable(format string, args ...any) error {
	return &RouteError{Kind: Unavailable, Err: fmt.Errorf(format, args...)}
}
