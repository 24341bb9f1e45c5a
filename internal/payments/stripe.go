package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"

	"github.com/example/ride-booking/internal/models"
)

// ErrNotConfirmed is returned when the processor answered a confirmation but
// the intent did not reach a state where funds are secured.
var ErrNotConfirmed = errors.New("payment intent not confirmed")

type StripeConfig struct {
	APIKey    string
	Currency  string
	ReturnURL string
	// Backends overrides the API endpoints; nil uses api.stripe.com.
	Backends *stripe.Backends
}

type CreateIntentRequest struct {
	Name            string
	Email           string
	AmountCents     int64
	PaymentMethodID string
	IdempotencyKey  string
}

type ConfirmRequest struct {
	PaymentMethodID string
	PaymentIntentID string
	CustomerID      string
	ClientSecret    string
	IdempotencyKey  string
}

type ConfirmResult struct {
	ClientSecret string
	Status       string
}

// StripeClient wraps stripe-go for the create/confirm/cancel PaymentIntent flow.
// It owns its own client.API so the key is never read from global state.
type StripeClient struct {
	api       *client.API
	currency  string
	returnURL string
}

func NewStripeClient(cfg StripeConfig) *StripeClient {
	if cfg.Currency == "" {
		cfg.Currency = string(stripe.CurrencyUSD)
	}
	backends := cfg.Backends
	if backends == nil {
		// the core never retries on its own; neither does the SDK
		b := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{MaxNetworkRetries: stripe.Int64(0)})
		backends = &stripe.Backends{API: b, Connect: b, Uploads: stripe.GetBackend(stripe.UploadsBackend)}
	}
	api := &client.API{}
	api.Init(cfg.APIKey, backends)
	return &StripeClient{api: api, currency: strings.ToLower(cfg.Currency), returnURL: cfg.ReturnURL}
}

func (s *StripeClient) Currency() string { return s.currency }

// CreateIntent finds or creates the customer by email and opens a PaymentIntent
// for the amount in minor units.
func (s *StripeClient) CreateIntent(ctx context.Context, req CreateIntentRequest) (models.PaymentIntent, error) {
	if req.AmountCents <= 0 {
		return models.PaymentIntent{}, fmt.Errorf("amount must be positive, got %d", req.AmountCents)
	}
	customerID, err := s.customerFor(ctx, req.Name, req.Email)
	if err != nil {
		return models.PaymentIntent{}, err
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(s.currency),
		Customer: stripe.String(customerID),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	// server-side confirmation without a return URL can only use non-redirect methods
	if s.returnURL == "" {
		params.AutomaticPaymentMethods.AllowRedirects = stripe.String("never")
	}
	params.Context = ctx
	params.AddMetadata("rider_name", req.Name)
	params.AddMetadata("rider_email", req.Email)
	if req.PaymentMethodID != "" {
		params.AddMetadata("payment_method_id", req.PaymentMethodID)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey + ":intent")
	}
	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return models.PaymentIntent{}, fmt.Errorf("create payment intent: %w", err)
	}
	if pi.ID == "" || pi.ClientSecret == "" {
		return models.PaymentIntent{}, errors.New("create payment intent: response missing id or client secret")
	}
	return models.PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
		CustomerID:   customerID,
	}, nil
}

func (s *StripeClient) customerFor(ctx context.Context, name, email string) (string, error) {
	if email != "" {
		lp := &stripe.CustomerListParams{Email: stripe.String(email)}
		lp.Context = ctx
		lp.Limit = stripe.Int64(1)
		it := s.api.Customers.List(lp)
		for it.Next() {
			if c := it.Customer(); c != nil && c.ID != "" {
				return c.ID, nil
			}
		}
		if err := it.Err(); err != nil {
			return "", fmt.Errorf("lookup customer: %w", err)
		}
	}
	cp := &stripe.CustomerParams{Name: stripe.String(name), Email: stripe.String(email)}
	cp.Context = ctx
	c, err := s.api.Customers.New(cp)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	return c.ID, nil
}

// Confirm attaches the payment method to the customer and confirms the intent.
// Only succeeded, processing and requires_capture count as confirmed.
func (s *StripeClient) Confirm(ctx context.Context, req ConfirmRequest) (ConfirmResult, error) {
	if req.PaymentIntentID == "" || req.ClientSecret == "" {
		return ConfirmResult{}, errors.New("confirm: missing payment intent or client secret")
	}
	if req.CustomerID != "" {
		ap := &stripe.PaymentMethodAttachParams{Customer: stripe.String(req.CustomerID)}
		ap.Context = ctx
		if _, err := s.api.PaymentMethods.Attach(req.PaymentMethodID, ap); err != nil {
			return ConfirmResult{}, fmt.Errorf("attach payment method: %w", err)
		}
	}

	params := &stripe.PaymentIntentConfirmParams{PaymentMethod: stripe.String(req.PaymentMethodID)}
	params.Context = ctx
	if s.returnURL != "" {
		params.ReturnURL = stripe.String(s.returnURL)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey + ":confirm")
	}
	pi, err := s.api.PaymentIntents.Confirm(req.PaymentIntentID, params)
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("confirm payment intent: %w", err)
	}
	res := ConfirmResult{ClientSecret: pi.ClientSecret, Status: string(pi.Status)}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		return res, nil
	default:
		return res, fmt.Errorf("%w: status %s", ErrNotConfirmed, pi.Status)
	}
}

// Cancel releases an intent that will never be confirmed.
func (s *StripeClient) Cancel(ctx context.Context, paymentIntentID string) error {
	params := &stripe.PaymentIntentCancelParams{CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned))}
	params.Context = ctx
	_, err := s.api.PaymentIntents.Cancel(paymentIntentID, params)
	return err
}
