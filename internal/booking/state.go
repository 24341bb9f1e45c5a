package booking

// State is the position of one booking attempt in the saga.
type State int

const (
	Idle State = iota
	IntentCreated
	PaymentConfirmed
	RideCreated

	IntentCreationFailed
	PaymentConfirmationFailed
	RideCreationFailed
)

var stateNames = map[State]string{
	Idle:                      "idle",
	IntentCreated:             "intent_created",
	PaymentConfirmed:          "payment_confirmed",
	RideCreated:               "ride_created",
	IntentCreationFailed:      "intent_creation_failed",
	PaymentConfirmationFailed: "payment_confirmation_failed",
	RideCreationFailed:        "ride_creation_failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Terminal states end an attempt; a new attempt is needed to try again.
func (s State) Terminal() bool {
	switch s {
	case RideCreated, IntentCreationFailed, PaymentConfirmationFailed, RideCreationFailed:
		return true
	}
	return false
}

var allowedTransitions = map[State][]State{
	Idle:             {IntentCreated, IntentCreationFailed},
	IntentCreated:    {PaymentConfirmed, PaymentConfirmationFailed},
	PaymentConfirmed: {RideCreated, RideCreationFailed},
}

func (s State) CanTransitionTo(next State) bool {
	for _, candidate := range allowedTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}
