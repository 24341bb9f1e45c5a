package payments

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v74"
)

type fakeStripe struct {
	mu        sync.Mutex
	calls     []string
	forms     map[string]map[string]string
	customers string // JSON list body for GET /v1/customers
	confirm   string
	status    int
	idemKeys  []string
}

func (f *fakeStripe) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	f.mu.Lock()
	key := r.Method + " " + r.URL.Path
	f.calls = append(f.calls, key)
	form := map[string]string{}
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}
	if f.forms == nil {
		f.forms = map[string]map[string]string{}
	}
	f.forms[key] = form
	if k := r.Header.Get("Idempotency-Key"); k != "" {
		f.idemKeys = append(f.idemKeys, k)
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch key {
	case "GET /v1/customers":
		body := f.customers
		if body == "" {
			body = `{"object":"list","data":[],"has_more":false,"url":"/v1/customers"}`
		}
		_, _ = w.Write([]byte(body))
	case "POST /v1/customers":
		_, _ = w.Write([]byte(`{"id":"cus_new","object":"customer"}`))
	case "POST /v1/payment_intents":
		_, _ = w.Write([]byte(`{"id":"pi_1","object":"payment_intent","client_secret":"pi_1_secret_a","amount":750,"currency":"usd","customer":"cus_new","status":"requires_payment_method"}`))
	case "POST /v1/payment_methods/pm_card/attach":
		_, _ = w.Write([]byte(`{"id":"pm_card","object":"payment_method","customer":"cus_new"}`))
	case "POST /v1/payment_intents/pi_1/confirm":
		if f.status != 0 {
			w.WriteHeader(f.status)
		}
		_, _ = w.Write([]byte(f.confirm))
	case "POST /v1/payment_intents/pi_1/cancel":
		_, _ = w.Write([]byte(`{"id":"pi_1","object":"payment_intent","status":"canceled"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"unknown path"}}`))
	}
}

func newTestClient(t *testing.T, f *fakeStripe) *StripeClient {
	t.Helper()
	return newTestClientWithReturnURL(t, f, "myapp://book-ride")
}

func newTestClientWithReturnURL(t *testing.T, f *fakeStripe, returnURL string) *StripeClient {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	b := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		HTTPClient:        srv.Client(),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	return NewStripeClient(StripeConfig{
		APIKey:    "sk_test_123",
		ReturnURL: returnURL,
		Backends:  &stripe.Backends{API: b, Connect: b, Uploads: b},
	})
}

func TestCreateIntent_CreatesCustomerWhenUnknown(t *testing.T) {
	f := &fakeStripe{}
	c := newTestClient(t, f)

	pi, err := c.CreateIntent(context.Background(), CreateIntentRequest{
		Name: "Ada", Email: "ada@example.com", AmountCents: 750, PaymentMethodID: "pm_card", IdempotencyKey: "k1",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_1", pi.ID)
	assert.Equal(t, "pi_1_secret_a", pi.ClientSecret)
	assert.Equal(t, int64(750), pi.AmountCents)
	assert.Equal(t, "usd", pi.Currency)
	assert.Equal(t, "cus_new", pi.CustomerID)

	assert.Equal(t, []string{"GET /v1/customers", "POST /v1/customers", "POST /v1/payment_intents"}, f.calls)
	form := f.forms["POST /v1/payment_intents"]
	assert.Equal(t, "750", form["amount"])
	assert.Equal(t, "usd", form["currency"])
	assert.Equal(t, "cus_new", form["customer"])
	assert.Equal(t, "ada@example.com", form["metadata[rider_email]"])
	assert.Contains(t, f.idemKeys, "k1:intent")
	assert.Equal(t, "true", form["automatic_payment_methods[enabled]"])
	assert.NotContains(t, form, "automatic_payment_methods[allow_redirects]")
}

func TestCreateIntent_WithoutReturnURLDisallowsRedirects(t *testing.T) {
	f := &fakeStripe{}
	c := newTestClientWithReturnURL(t, f, "")

	_, err := c.CreateIntent(context.Background(), CreateIntentRequest{Name: "Ada", Email: "ada@example.com", AmountCents: 750})
	require.NoError(t, err)
	form := f.forms["POST /v1/payment_intents"]
	assert.Equal(t, "true", form["automatic_payment_methods[enabled]"])
	assert.Equal(t, "never", form["automatic_payment_methods[allow_redirects]"])

	f.confirm = `{"id":"pi_1","object":"payment_intent","client_secret":"pi_1_secret_b","status":"succeeded"}`
	_, err = c.Confirm(context.Background(), ConfirmRequest{PaymentMethodID: "pm_card", PaymentIntentID: "pi_1", ClientSecret: "pi_1_secret_a"})
	require.NoError(t, err)
	assert.NotContains(t, f.forms["POST /v1/payment_intents/pi_1/confirm"], "return_url")
}

func TestCreateIntent_ReusesCustomer(t *testing.T) {
	f := &fakeStripe{customers: `{"object":"list","data":[{"id":"cus_old","object":"customer","email":"ada@example.com"}],"has_more":false,"url":"/v1/customers"}`}
	c := newTestClient(t, f)

	pi, err := c.CreateIntent(context.Background(), CreateIntentRequest{Name: "Ada", Email: "ada@example.com", AmountCents: 750})
	require.NoError(t, err)
	assert.Equal(t, "cus_old", pi.CustomerID)
	assert.NotContains(t, f.calls, "POST /v1/customers")
	assert.Equal(t, "cus_old", f.forms["POST /v1/payment_intents"]["customer"])
}

func TestCreateIntent_RejectsNonPositiveAmount(t *testing.T) {
	f := &fakeStripe{}
	c := newTestClient(t, f)
	_, err := c.CreateIntent(context.Background(), CreateIntentRequest{Email: "a@b.c", AmountCents: 0})
	require.Error(t, err)
	assert.Empty(t, f.calls)
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantSecret string
		wantErr    bool
		notConfirm bool
	}{
		{name: "succeeded", body: `{"id":"pi_1","object":"payment_intent","client_secret":"pi_1_secret_b","status":"succeeded"}`, wantSecret: "pi_1_secret_b"},
		{name: "requires action", body: `{"id":"pi_1","object":"payment_intent","client_secret":"pi_1_secret_b","status":"requires_action"}`, wantErr: true, notConfirm: true},
		{name: "declined", status: http.StatusPaymentRequired, body: `{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeStripe{confirm: tt.body, status: tt.status}
			c := newTestClient(t, f)

			res, err := c.Confirm(context.Background(), ConfirmRequest{
				PaymentMethodID: "pm_card", PaymentIntentID: "pi_1", CustomerID: "cus_new", ClientSecret: "pi_1_secret_a",
			})
			assert.Equal(t, []string{"POST /v1/payment_methods/pm_card/attach", "POST /v1/payment_intents/pi_1/confirm"}, f.calls)
			assert.Equal(t, "cus_new", f.forms["POST /v1/payment_methods/pm_card/attach"]["customer"])
			assert.Equal(t, "pm_card", f.forms["POST /v1/payment_intents/pi_1/confirm"]["payment_method"])
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tt.wantSecret, res.ClientSecret)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.notConfirm, errors.Is(err, ErrNotConfirmed))
		})
	}
}

func TestCancel(t *testing.T) {
	f := &fakeStripe{}
	c := newTestClient(t, f)
	require.NoError(t, c.Cancel(context.Background(), "pi_1"))
	assert.Equal(t, "abandoned", f.forms["POST /v1/payment_intents/pi_1/cancel"]["cancellation_reason"])
}
