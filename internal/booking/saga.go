// Package booking chains payment-intent creation, payment confirmation and
// ride persistence into one booking attempt with per-step failure classification.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-booking/internal/logging"
	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/observability"
	"github.com/example/ride-booking/internal/payments"
	"github.com/example/ride-booking/internal/storage"
)

// Processor is the payment side of the saga.
type Processor interface {
	CreateIntent(ctx context.Context, req payments.CreateIntentRequest) (models.PaymentIntent, error)
	Confirm(ctx context.Context, req payments.ConfirmRequest) (payments.ConfirmResult, error)
}

// Canceler is optional; processors that implement it get unconfirmed intents cancelled.
type Canceler interface {
	Cancel(ctx context.Context, paymentIntentID string) error
}

type EventPublisher interface {
	PublishBooking(ctx context.Context, ev models.BookingEvent) error
}

// BookedFunc runs after the ride record is stored and never before.
type BookedFunc func(ctx context.Context, ride models.RideRecord)

type Config struct {
	// Timeout bounds a whole attempt. The caller's cancellation is ignored
	// once an attempt starts, so this is the only way it ends early.
	Timeout                time.Duration
	CancelOnConfirmFailure bool
}

type Saga struct {
	processor Processor
	canceler  Canceler
	store     storage.RideStore
	events    EventPublisher
	onBooked  []BookedFunc
	logger    *slog.Logger
	cfg       Config
	now       func() time.Time
}

type Option func(*Saga)

func WithLogger(l *slog.Logger) Option { return func(s *Saga) { s.logger = l } }

func WithEvents(p EventPublisher) Option { return func(s *Saga) { s.events = p } }

func WithOnBooked(fn BookedFunc) Option {
	return func(s *Saga) { s.onBooked = append(s.onBooked, fn) }
}

func New(processor Processor, store storage.RideStore, cfg Config, opts ...Option) *Saga {
	s := &Saga{
		processor: processor,
		store:     store,
		cfg:       cfg,
		logger:    logging.Discard(),
		now:       time.Now,
	}
	if c, ok := processor.(Canceler); ok {
		s.canceler = c
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Request is everything one attempt needs. IdempotencyKey is optional and is
// only forwarded to the processor.
type Request struct {
	Rider           models.RiderContext
	Offer           models.DriverOffer
	PaymentMethodID string
	IdempotencyKey  string
}

// BookRide runs a fresh attempt to a terminal state.
func (s *Saga) BookRide(ctx context.Context, rider models.RiderContext, offer models.DriverOffer, paymentMethodID string) (models.RideRecord, error) {
	return s.NewAttempt(Request{Rider: rider, Offer: offer, PaymentMethodID: paymentMethodID}).Run(ctx)
}

func (s *Saga) Book(ctx context.Context, req Request) (models.RideRecord, error) {
	return s.NewAttempt(req).Run(ctx)
}

// Attempt is a single pass through the saga. It can be run once.
type Attempt struct {
	ID   string
	saga *Saga
	req  Request

	mu      sync.Mutex
	started bool
	state   State
	intent  models.PaymentIntent
}

func (s *Saga) NewAttempt(req Request) *Attempt {
	return &Attempt{ID: uuid.NewString(), saga: s, req: req, state: Idle}
}

func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Attempt) advance(next State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.state.CanTransitionTo(next) {
		// programming error: steps are strictly sequential
		panic("booking: invalid transition " + a.state.String() + " -> " + next.String())
	}
	a.state = next
}

// Run executes create intent -> confirm payment -> persist ride. Each step only
// starts after the previous one succeeded.
func (a *Attempt) Run(ctx context.Context) (models.RideRecord, error) {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return models.RideRecord{}, ErrAttemptUsed
	}
	a.started = true
	a.mu.Unlock()

	s := a.saga
	ctx = context.WithoutCancel(ctx)
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	start := s.now()
	log := s.logger.With("attempt_id", a.ID, "driver_id", a.req.Offer.Driver.ID, "user_id", a.req.Rider.UserID)

	ride, err := a.run(ctx, log)

	state := a.State()
	observability.BookingsTotal.WithLabelValues(state.String()).Inc()
	observability.BookingDuration.Observe(s.now().Sub(start).Seconds())
	if err != nil {
		if PaidButUnbooked(err) {
			log.Error("payment captured but ride not stored", "state", state.String(), "intent_id", a.intent.ID, "error", err)
		} else {
			log.Warn("booking failed", "state", state.String(), "error", err)
		}
	} else {
		log.Info("ride booked", "ride_id", ride.RideID, "intent_id", a.intent.ID)
	}
	a.publish(ctx, log, state, ride, err)
	if err != nil {
		return models.RideRecord{}, err
	}
	for _, fn := range s.onBooked {
		fn(ctx, ride)
	}
	return ride, nil
}

func (a *Attempt) run(ctx context.Context, log *slog.Logger) (models.RideRecord, error) {
	s := a.saga
	amount := a.req.Offer.PriceCents()

	draft := models.RideRecordDraft{
		OriginAddress:      a.req.Rider.OriginAddress,
		DestinationAddress: a.req.Rider.DestinationAddress,
		Origin:             a.req.Rider.Origin,
		Destination:        a.req.Rider.Destination,
		RideTimeMinutes:    int(math.Round(a.req.Offer.ETAMinutes)),
		FarePriceCents:     amount,
		PaymentStatus:      models.PaymentPaid,
		DriverID:           a.req.Offer.Driver.ID,
		UserID:             a.req.Rider.UserID,
	}

	// 1. create intent; a draft the store would reject must never be charged
	if err := a.checkRequest(amount, draft); err != nil {
		a.advance(IntentCreationFailed)
		return models.RideRecord{}, &SagaError{Kind: IntentCreation, Err: err}
	}
	intent, err := s.processor.CreateIntent(ctx, payments.CreateIntentRequest{
		Name:            a.req.Rider.DisplayName(),
		Email:           a.req.Rider.Email,
		AmountCents:     amount,
		PaymentMethodID: a.req.PaymentMethodID,
		IdempotencyKey:  a.req.IdempotencyKey,
	})
	if err == nil && (intent.ID == "" || intent.ClientSecret == "") {
		err = errors.New("processor returned an intent without id or client secret")
	}
	if err != nil {
		a.advance(IntentCreationFailed)
		return models.RideRecord{}, &SagaError{Kind: IntentCreation, Err: err}
	}
	a.intent = intent
	a.advance(IntentCreated)
	log.Debug("payment intent created", "intent_id", intent.ID, "amount_cents", amount)

	// 2. confirm payment
	res, err := s.processor.Confirm(ctx, payments.ConfirmRequest{
		PaymentMethodID: a.req.PaymentMethodID,
		PaymentIntentID: intent.ID,
		CustomerID:      intent.CustomerID,
		ClientSecret:    intent.ClientSecret,
		IdempotencyKey:  a.req.IdempotencyKey,
	})
	if err == nil && res.ClientSecret == "" {
		err = errors.New("processor confirmed without a client secret")
	}
	if err != nil {
		a.advance(PaymentConfirmationFailed)
		a.compensate(ctx, log)
		return models.RideRecord{}, &SagaError{Kind: PaymentConfirmation, IntentID: intent.ID, Err: err}
	}
	a.advance(PaymentConfirmed)

	// 3. persist ride
	ride, err := s.store.Insert(ctx, draft)
	if err != nil {
		a.advance(RideCreationFailed)
		return models.RideRecord{}, &SagaError{Kind: RideCreation, IntentID: intent.ID, Err: err}
	}
	a.advance(RideCreated)
	return ride, nil
}

func (a *Attempt) checkRequest(amount int64, draft models.RideRecordDraft) error {
	var problems []string
	if err := storage.ValidateDraft(draft); err != nil {
		problems = append(problems, err.Error())
	}
	if amount <= 0 {
		problems = append(problems, "offer price must be positive")
	}
	if strings.TrimSpace(a.req.PaymentMethodID) == "" {
		problems = append(problems, "payment method id is required")
	}
	if strings.TrimSpace(a.req.Rider.Email) == "" && strings.TrimSpace(a.req.Rider.FullName) == "" {
		problems = append(problems, "rider name or email is required")
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// compensate cancels an intent that was created but never confirmed. Its
// outcome never changes the attempt's classification.
func (a *Attempt) compensate(ctx context.Context, log *slog.Logger) {
	s := a.saga
	if !s.cfg.CancelOnConfirmFailure || s.canceler == nil {
		return
	}
	if err := s.canceler.Cancel(ctx, a.intent.ID); err != nil {
		log.Warn("cancel unconfirmed intent failed; it will expire", "intent_id", a.intent.ID, "error", err)
		return
	}
	log.Info("unconfirmed intent cancelled", "intent_id", a.intent.ID)
}

func (a *Attempt) publish(ctx context.Context, log *slog.Logger, state State, ride models.RideRecord, err error) {
	s := a.saga
	if s.events == nil {
		return
	}
	ev := models.BookingEvent{
		AttemptID:   a.ID,
		State:       state.String(),
		RideID:      ride.RideID,
		DriverID:    a.req.Offer.Driver.ID,
		UserID:      a.req.Rider.UserID,
		IntentID:    a.intent.ID,
		AmountCents: a.req.Offer.PriceCents(),
		OccurredAt:  s.now().UTC(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	if perr := s.events.PublishBooking(ctx, ev); perr != nil {
		log.Warn("publish booking event failed", "error", perr)
	}
}
