package gateway

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easytransac/easytransac-bridge/easytransac"
	"github.com/easytransac/easytransac-bridge/infra/config"
	"github.com/easytransac/easytransac-bridge/store"
)

type sentMail struct {
	to      []string
	subject string
	body    string
}

type fakeMailer struct {
	sent []sentMail
}

func (m *fakeMailer) Send(to []string, subject, body string) error {
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func testSettings() config.GatewaySettings {
	return config.GatewaySettings{
		APIKey:    "secret",
		ReturnURL: "https://shop.example.com/checkout/complete",
		HomeURL:   "https://shop.example.com/",
	}
}

func newTestGateway(t *testing.T, settings config.GatewaySettings) (*Gateway, *store.Store, *fakeMailer) {
	t.Helper()

	api, err := easytransac.NewClient("sk_test")
	require.NoError(t, err)
	return newTestGatewayWithAPI(t, settings, api)
}

func newTestGatewayWithAPI(t *testing.T, settings config.GatewaySettings, api *easytransac.Client) (*Gateway, *store.Store, *fakeMailer) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := store.New(db)
	require.NoError(t, s.Migrate(context.Background()))

	m := &fakeMailer{}
	return New(api, s, m, settings), s, m
}

// signed returns the payload with a valid signature for the given key.
func signed(payload map[string]string, apiKey string) map[string]string {
	out := make(map[string]string, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	out["Signature"] = easytransac.Sign(out, apiKey)
	return out
}

func TestHandleNotificationNoAPIKey(t *testing.T) {
	settings := testSettings()
	settings.APIKey = ""
	g, _, _ := newTestGateway(t, settings)

	result, err := g.HandleNotification(context.Background(), CallbackRequest{
		Payload: map[string]string{"Status": "captured"},
		Secure:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, result.Outcome)
	assert.Equal(t, settings.HomeURL, result.RedirectURL)
}

func TestHandleNotificationInsecureEmptyPayload(t *testing.T) {
	g, _, _ := newTestGateway(t, testSettings())

	result, err := g.HandleNotification(context.Background(), CallbackRequest{
		Payload:       map[string]string{},
		Secure:        false,
		BrowserReturn: true,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRedirect, result.Outcome)
	assert.Equal(t, testSettings().ReturnURL, result.RedirectURL)

	t.Run("a lone data key counts as empty", func(t *testing.T) {
		result, err := g.HandleNotification(context.Background(), CallbackRequest{
			Payload: map[string]string{"data": "echo of the whole request"},
			Secure:  false,
		})
		require.NoError(t, err)
		assert.Equal(t, OutcomeRedirect, result.Outcome)
	})
}

func TestHandleNotificationBadSignature(t *testing.T) {
	g, s, _ := newTestGateway(t, testSettings())
	ctx := context.Background()

	order := &store.Order{ID: 318, TotalCents: 5000}
	require.NoError(t, s.CreateOrder(ctx, order))

	payload := signed(map[string]string{
		"OperationType": "payment",
		"Status":        "captured",
		"Amount":        "5000",
		"OrderId":       "318",
	}, "wrong-key")

	result, err := g.HandleNotification(ctx, CallbackRequest{Payload: payload, Secure: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, result.Outcome)
	assert.Equal(t, testSettings().HomeURL, result.RedirectURL)

	got, err := s.GetOrder(ctx, 318)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, got.Status)
}

func TestCapturedNotification(t *testing.T) {
	g, s, _ := newTestGateway(t, testSettings())
	ctx := context.Background()

	require.NoError(t, s.CreateOrder(ctx, &store.Order{ID: 318, UserID: 7, TotalCents: 5000}))
	require.NoError(t, s.AddCartItem(ctx, 7, 1, 2))

	payload := signed(map[string]string{
		"OperationType": "payment",
		"Status":        "captured",
		"Amount":        "5000",
		"OrderId":       "318",
		"Tid":           "TID-1",
		"ClientId":      "cli_42",
	}, "secret")

	result, err := g.HandleNotification(ctx, CallbackRequest{Payload: payload, Secure: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	assert.Equal(t, "Order status received", result.Body)
	assert.Empty(t, result.RedirectURL)
	assert.Equal(t, int64(318), result.OrderID)

	got, err := s.GetOrder(ctx, 318)
	require.NoError(t, err)
	assert.Equal(t, store.StatusProcessing, got.Status)
	assert.Equal(t, "TID-1", got.TransactionID)

	clientID, err := s.ClientID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "cli_42", clientID)

	count, err := s.CartCount(ctx, 7)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCapturedNotificationIdempotence(t *testing.T) {
	g, s, _ := newTestGateway(t, testSettings())
	ctx := context.Background()

	require.NoError(t, s.CreateOrder(ctx, &store.Order{ID: 318, UserID: 7, TotalCents: 5000}))

	payload := signed(map[string]string{
		"OperationType": "payment",
		"Status":        "captured",
		"Amount":        "5000",
		"OrderId":       "318",
		"Tid":           "TID-1",
	}, "secret")

	first, err := g.HandleNotification(ctx, CallbackRequest{Payload: payload, Secure: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, first.Outcome)

	// A new cart started after payment must survive the redelivery.
	require.NoError(t, s.AddCartItem(ctx, 7, 2, 1))

	second, err := g.HandleNotification(ctx, CallbackRequest{Payload: payload, Secure: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, second.Outcome)
	assert.Equal(t, "Order status already processing no status change", second.Body)

	count, err := s.CartCount(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := s.GetOrder(ctx, 318)
	require.NoError(t, err)
	assert.Equal(t, store.StatusProcessing, got.Status)
}

func TestTerminalStatusProtection(t *testing.T) {
	g, s, _ := newTestGateway(t, testSettings())
	ctx := context.Background()

	require.NoError(t, s.CreateOrder(ctx, &store.Order{
		ID: 318, TotalCents: 5000, Status: store.StatusProcessing, TransactionID: "TID-1",
	}))

	for _, status := range []string{"failed", "refunded", "pending", "captured"} {
		t.Run(status, func(t *testing.T) {
			payload := signed(map[string]string{
				"OperationType": "payment",
				"Status":        status,
				"Amount":        "5000",
				"OrderId":       "318",
				"Tid":           "TID-LATE",
			}, "secret")

			result, err := g.HandleNotification(ctx, CallbackRequest{Payload: payload, Secure: true})
			require.NoError(t, err)
			assert.Equal(t, OutcomeDuplicate, result.Outcome)

			got, err := s.GetOrder(ctx, 318)
			require.NoError(t, err)
			assert.Equal(t, store.StatusProcessing, got.Status)
			assert.Equal(t, "TID-1", got.TransactionID)
		})
	}
}

func TestFailedNotification(t *testing.T) {
	g, s, _ := newTestGateway(t, testSettings())
	ctx := context.Background()

	require.NoError(t, s.CreateOrder(ctx, &store.Order{ID: 12, TotalCents: 2000}))

	payload := signed(map[string]string{
		"OperationType": "payment",
		"Status":        "failed",
		"Amount":        "2000",
		"OrderId":       "12",
		"Tid":           "TID-9",
		"Message":       "Card declined",
	}, "secret")

	result, err := g.HandleNotification(ctx, CallbackRequest{Payload: payload, Secure: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	assert.Equal(t, "Card declined", result.Notice)

	got, err := s.GetOrder(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, got.Status)
	assert.Equal(t, "TID-9", got.TransactionID)

	notes, err := s.Notes(ctx, 12)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "Card declined")
}

func TestPendingNotification(t *testing.T) {
	g, s, _ := newTestGateway(t, testSettings())
	ctx := context.Background()

	require.NoError(t, s.CreateOrder(ctx, &store.Order{ID: 13, TotalCents: 2000}))

	payload := signed(map[string]string{
		"OperationType": "payment",
		"Status":        "pending",
		"Amount":        "2000",
		"OrderId":       "13",
		"Tid":           "TID-10",
	}, "secret")

	result, err := g.HandleNotification(ctx, CallbackRequest{Payload: payload, Secure: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)

	got, err := s.GetOrder(ctx, 13)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, got.Status)
	assert.Equal(t, "TID-10", got.TransactionID)
}

func TestRefundedNotification(t *testing.T) {
	g, s, _ := newTestGateway(t, testSettings())
	ctx := context.Background()

	require.NoError(t, s.CreateOrder(ctx, &store.Order{ID: 14, TotalCents: 2000, Status: store.StatusFailed}))

	payload := signed(map[string]string{
		"OperationType": "payment",
		"Status":        "refunded",
		"Amount":        "2000",
		"OrderId":       "14",
		"Tid":           "TID-11",
	}, "secret")

	result, err := g.HandleNotification(ctx, CallbackRequest{Payload: payload, Secure: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)

	got, err := s.GetOrder(ctx, 14)
	require.NoError(t, err)
	assert.Equal(t, store.StatusRefunded, got.Status)
}

func TestBrowserReturnRedirects(t *testing.T) {
	g, s, _ := newTestGateway(t, testSettings())
	ctx := context.Background()

	require.NoError(t, s.CreateOrder(ctx, &store.Order{ID: 21, TotalCents: 1500}))

	payload := signed(map[string]string{
		"OperationType": "payment",
		"Status":        "captured",
		"Amount":        "1500",
		"OrderId":       "21",
		"Tid":           "TID-21",
	}, "secret")

	result, err := g.HandleNotification(ctx, CallbackRequest{
		Payload:       payload,
		Secure:        true,
		BrowserReturn: true,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	assert.Equal(t, testSettings().ReturnURL, result.RedirectURL)
	assert.Empty(t, result.Body)
}

func TestAmountMismatch(t *testing.T) {
	ctx := context.Background()

	payload := signed(map[string]string{
		"OperationType": "payment",
		"Status":        "captured",
		"Amount":        "4000",
		"OrderId":       "318",
		"Tid":           "TID-1",
	}, "secret")

	t.Run("no notification emails configured", func(t *testing.T) {
		g, s, m := newTestGateway(t, testSettings())
		require.NoError(t, s.CreateOrder(ctx, &store.Order{ID: 318, TotalCents: 5000}))

		result, err := g.HandleNotification(ctx, CallbackRequest{Payload: payload, Secure: true})
		require.NoError(t, err)
		assert.Equal(t, OutcomeMismatch, result.Outcome)
		assert.Equal(t, "Integrity error but no notification mail set.", result.Body)
		assert.Empty(t, m.sent)

		got, err := s.GetOrder(ctx, 318)
		require.NoError(t, err)
		assert.Equal(t, store.StatusPending, got.Status)
		assert.Empty(t, got.TransactionID)

		notes, err := s.Notes(ctx, 318)
		require.NoError(t, err)
		require.Len(t, notes, 1)
		assert.Contains(t, notes[0], `La commande "318" de 50.00 EUR`)
		assert.Contains(t, notes[0], "paiement")
		assert.Contains(t, notes[0], "40.00 EUR")
	})

	t.Run("server notification emails operators", func(t *testing.T) {
		settings := testSettings()
		settings.NotifEmails = "ops@example.com; bogus ; second@example.com"
		g, s, m := newTestGateway(t, settings)
		require.NoError(t, s.CreateOrder(ctx, &store.Order{ID: 318, TotalCents: 5000}))

		result, err := g.HandleNotification(ctx, CallbackRequest{Payload: payload, Secure: true})
		require.NoError(t, err)
		assert.Equal(t, OutcomeMismatch, result.Outcome)
		assert.Equal(t, "Order missing or amount mismatch. Notification sent.", result.Body)

		require.Len(t, m.sent, 1)
		assert.Equal(t, []string{"ops@example.com", "second@example.com"}, m.sent[0].to)
		assert.Equal(t, "EasyTransac", m.sent[0].subject)
		assert.Contains(t, m.sent[0].body, `La commande "318"`)
	})

	t.Run("browser return redirects without emailing", func(t *testing.T) {
		settings := testSettings()
		settings.NotifEmails = "ops@example.com"
		g, s, m := newTestGateway(t, settings)
		require.NoError(t, s.CreateOrder(ctx, &store.Order{ID: 318, TotalCents: 5000}))

		result, err := g.HandleNotification(ctx, CallbackRequest{
			Payload:       payload,
			Secure:        true,
			BrowserReturn: true,
		})
		require.NoError(t, err)
		assert.Equal(t, OutcomeMismatch, result.Outcome)
		assert.Equal(t, settings.ReturnURL, result.RedirectURL)
		assert.Empty(t, m.sent)
	})
}

func TestCreditOrderRecovery(t *testing.T) {
	g, s, _ := newTestGateway(t, testSettings())
	ctx := context.Background()

	require.NoError(t, s.CreateOrder(ctx, &store.Order{ID: 4521, TotalCents: 5000}))

	payload := signed(map[string]string{
		"OperationType": "credit",
		"Status":        "captured",
		"Amount":        "5000",
		"Tid":           "TID-CR",
		"Description":   "Payment for order 4521 thanks",
	}, "secret")

	result, err := g.HandleNotification(ctx, CallbackRequest{Payload: payload, Secure: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	assert.Equal(t, int64(4521), result.OrderID)

	got, err := s.GetOrder(ctx, 4521)
	require.NoError(t, err)
	assert.Equal(t, store.StatusProcessing, got.Status)
	assert.Equal(t, "TID-CR", got.TransactionID)
}

func TestCreditSkipsCandidatesWithWrongAmount(t *testing.T) {
	g, s, _ := newTestGateway(t, testSettings())
	ctx := context.Background()

	require.NoError(t, s.CreateOrder(ctx, &store.Order{ID: 10, TotalCents: 9999}))
	require.NoError(t, s.CreateOrder(ctx, &store.Order{ID: 11, TotalCents: 1200}))

	payload := signed(map[string]string{
		"OperationType": "credit",
		"Status":        "captured",
		"Amount":        "1200",
		"Tid":           "TID-CR",
		"Description":   "transfer 10 ref 11",
	}, "secret")

	result, err := g.HandleNotification(ctx, CallbackRequest{Payload: payload, Secure: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	assert.Equal(t, int64(11), result.OrderID)

	untouched, err := s.GetOrder(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, untouched.Status)
}

func TestCreditNoMatchingOrder(t *testing.T) {
	g, _, _ := newTestGateway(t, testSettings())
	ctx := context.Background()

	payload := signed(map[string]string{
		"OperationType": "credit",
		"Status":        "captured",
		"Amount":        "1200",
		"Description":   "ref 77 thanks",
	}, "secret")

	result, err := g.HandleNotification(ctx, CallbackRequest{Payload: payload, Secure: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeMismatch, result.Outcome)
	assert.Equal(t, "Integrity error but no notification mail set.", result.Body)
}

func TestUnresolvableOrderReference(t *testing.T) {
	settings := testSettings()
	settings.NotifEmails = "ops@example.com"
	g, _, m := newTestGateway(t, settings)
	ctx := context.Background()

	payload := signed(map[string]string{
		"OperationType": "payment",
		"Status":        "captured",
		"Amount":        "1200",
		"OrderId":       "99999",
	}, "secret")

	result, err := g.HandleNotification(ctx, CallbackRequest{Payload: payload, Secure: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeMismatch, result.Outcome)
	assert.Equal(t, "Order missing or amount mismatch. Notification sent.", result.Body)

	require.Len(t, m.sent, 1)
	assert.Contains(t, m.sent[0].body, `La commande "99999" de 12.00 EUR`)
	assert.Contains(t, m.sent[0].body, "n'a pas été trouvée")
}

func TestDataKeyIsStripped(t *testing.T) {
	g, s, _ := newTestGateway(t, testSettings())
	ctx := context.Background()

	require.NoError(t, s.CreateOrder(ctx, &store.Order{ID: 55, TotalCents: 700}))

	// The signature never covers the echoed data key, so verification only
	// succeeds when the reconciler drops it first.
	payload := signed(map[string]string{
		"OperationType": "payment",
		"Status":        "captured",
		"Amount":        "700",
		"OrderId":       "55",
		"Tid":           "TID-55",
	}, "secret")
	payload["data"] = "OperationType=payment&Status=captured"

	result, err := g.HandleNotification(ctx, CallbackRequest{Payload: payload, Secure: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
}

func TestInsecureChannelWithPayloadIsVerified(t *testing.T) {
	g, s, _ := newTestGateway(t, testSettings())
	ctx := context.Background()

	require.NoError(t, s.CreateOrder(ctx, &store.Order{ID: 56, TotalCents: 700}))

	payload := signed(map[string]string{
		"OperationType": "payment",
		"Status":        "captured",
		"Amount":        "700",
		"OrderId":       "56",
		"Tid":           "TID-56",
	}, "secret")

	result, err := g.HandleNotification(ctx, CallbackRequest{Payload: payload, Secure: false})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
}
