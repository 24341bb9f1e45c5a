package booking

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	// IntentCreation: nothing was charged, safe to retry.
	IntentCreation ErrorKind = iota + 1
	// PaymentConfirmation: the intent exists but no funds were secured.
	PaymentConfirmation
	// RideCreation: the payment succeeded but no ride was stored.
	RideCreation
)

func (k ErrorKind) String() string {
	switch k {
	case IntentCreation:
		return "intent_creation"
	case PaymentConfirmation:
		return "payment_confirmation"
	case RideCreation:
		return "ride_creation"
	default:
		return "unknown"
	}
}

var (
	ErrIntentCreation      = errors.New("payment intent creation failed")
	ErrPaymentConfirmation = errors.New("payment confirmation failed")
	ErrRideCreation        = errors.New("ride creation failed after successful payment")

	ErrAttemptUsed = errors.New("booking attempt already run; start a new attempt")
)

type SagaError struct {
	Kind     ErrorKind
	IntentID string
	Err      error
}

func (e *SagaError) Error() string {
	msg := fmt.Sprintf("booking %s failed", e.Kind)
	if e.IntentID != "" {
		msg += " (intent " + e.IntentID + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SagaError) Unwrap() error { return e.Err }

func (e *SagaError) Is(target error) bool {
	switch target {
	case ErrIntentCreation:
		return e.Kind == IntentCreation
	case ErrPaymentConfirmation:
		return e.Kind == PaymentConfirmation
	case ErrRideCreation:
		return e.Kind == RideCreation
	}
	return false
}

// PaidButUnbooked reports whether err means the rider was charged without a ride.
func PaidButUnbooked(err error) bool { return errors.Is(err, ErrRideCreation) }
