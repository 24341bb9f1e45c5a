package storage

import (
	"errors"
	"strings"
)

type ErrorKind int

const (
	Validation ErrorKind = iota + 1
	Unavailable
)

func (k ErrorKind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

var (
	ErrValidation  = errors.New("ride record invalid")
	ErrUnavailable = errors.New("ride store unavailable")
)

// StoreError is returned by every RideStore and DriverDirectory operation.
type StoreError struct {
	Kind   ErrorKind
	Fields []string // offending fields, for Validation
	Err    error
}

func (e *StoreError) Error() string {
	switch {
	case e.Kind == Validation && len(e.Fields) > 0:
		return "store validation: missing or invalid fields: " + strings.Join(e.Fields, ", ")
	case e.Err != nil:
		return "store " + e.Kind.String() + ": " + e.Err.Error()
	default:
		return "store " + e.Kind.String()
	}
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == Validation
	case ErrUnavailable:
		return e.Kind == Unavailable
	}
	return false
}
