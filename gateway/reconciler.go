package gateway

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/easytransac/easytransac-bridge/easytransac"
	"github.com/easytransac/easytransac-bridge/infra/logger"
	"github.com/easytransac/easytransac-bridge/infra/mailer"
	"github.com/easytransac/easytransac-bridge/store"
)

// Outcome classifies the result of reconciling one notification.
type Outcome string

const (
	// OutcomeApplied means the order state was updated.
	OutcomeApplied Outcome = "applied"
	// OutcomeDuplicate means the order was already processing and the
	// notification was ignored.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeMismatch means the order or amount could not be validated; the
	// anomaly was logged or emailed and no order state changed.
	OutcomeMismatch Outcome = "mismatch"
	// OutcomeRejected means the call was malformed, unverifiable or the
	// gateway is unconfigured.
	OutcomeRejected Outcome = "rejected"
	// OutcomeRedirect means the call was a bare browser return carrying no
	// notification payload.
	OutcomeRedirect Outcome = "redirect"
)

// CallbackRequest is one inbound delivery on the callback endpoint: the
// flat form payload plus transport metadata.
type CallbackRequest struct {
	Payload map[string]string
	// Secure reports whether the delivery arrived over a verifiable channel.
	Secure bool
	// BrowserReturn reports whether the call is the customer's browser
	// returning from the payment page rather than a pure server
	// notification.
	BrowserReturn bool
}

// Result tells the HTTP layer how to answer a callback: either a plain-text
// terminal body for the processor or a redirect for the browser.
type Result struct {
	Outcome     Outcome
	Body        string
	RedirectURL string
	// Notice is a user-facing checkout message set when the processor
	// reported a payment failure.
	Notice       string
	OrderID      int64
	Notification *easytransac.Notification
}

// Terminal bodies sent back to the processor on server notifications. The
// processor redelivers on non-2xx, so every handled case answers 200 with
// one of these.
const (
	bodyStatusReceived    = "Order status received"
	bodyAlreadyProcessing = "Order status already processing no status change"
	bodyNoNotifMail       = "Integrity error but no notification mail set."
	bodyNotificationSent  = "Order missing or amount mismatch. Notification sent."
)

// Anomaly messages mailed to the shop operators, kept in French as the
// operators expect them.
const (
	msgOrderNotFound  = `La commande "%s" de %s EUR pour laquelle un %s a été reçu sur EasyTransac n'a pas été trouvée.`
	msgAmountMismatch = `La commande "%s" de %s EUR ne correspond pas au %s de %s EUR reçu par EasyTransac.`

	anomalyMailSubject = "EasyTransac"
)

var digitRuns = regexp.MustCompile(`[0-9]+`)

// HandleNotification reconciles one callback delivery against the order
// store and applies at most one status transition. Returned errors are
// infrastructure failures (storage unavailable); every business outcome,
// including rejections, is a Result.
func (g *Gateway) HandleNotification(ctx context.Context, req CallbackRequest) (*Result, error) {
	if g.settings.APIKey == "" {
		logger.Warn("callback received but no API key is configured")
		return &Result{Outcome: OutcomeRejected, RedirectURL: g.settings.HomeURL}, nil
	}

	// The processor sometimes echoes the entire request under a "data" key;
	// it carries nothing the signature covers.
	payload := make(map[string]string, len(req.Payload))
	for key, value := range req.Payload {
		if key == "data" {
			continue
		}
		payload[key] = value
	}

	// An insecure call with an empty payload is the browser coming back,
	// not a notification. Forward it without processing.
	if !req.Secure && len(payload) == 0 {
		return &Result{Outcome: OutcomeRedirect, RedirectURL: g.settings.ReturnURL}, nil
	}

	notification, err := easytransac.VerifyNotification(payload, g.settings.APIKey)
	if err != nil {
		logger.Warn("notification verification failed", logger.LogContext{
			Fields: map[string]any{"error": err.Error()},
		})
		return &Result{Outcome: OutcomeRejected, RedirectURL: g.settings.HomeURL}, nil
	}

	order, anomaly, err := g.resolveOrder(ctx, notification)
	if err != nil {
		return nil, err
	}

	if anomaly != "" {
		return g.handleAnomaly(notification, anomaly, req.BrowserReturn), nil
	}

	outcome, notice, err := g.applyTransaction(ctx, order, notification)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Outcome:      outcome,
		Notice:       notice,
		OrderID:      order.ID,
		Notification: notification,
	}

	if req.BrowserReturn {
		result.RedirectURL = g.settings.ReturnURL
		return result, nil
	}

	if outcome == OutcomeDuplicate {
		result.Body = bodyAlreadyProcessing
	} else {
		result.Body = bodyStatusReceived
	}
	return result, nil
}

// resolveOrder maps a notification to an order. A non-empty anomaly message
// means the order could not be validated; the returned order is nil then.
func (g *Gateway) resolveOrder(ctx context.Context, n *easytransac.Notification) (*store.Order, string, error) {
	if n.OperationType == easytransac.OperationCredit {
		return g.resolveCreditOrder(ctx, n)
	}

	// Known upstream oddity: a space inside a payment order reference is
	// only logged, never rejected.
	if strings.Contains(n.OrderRef, " ") {
		logger.Warn("order reference contains a space", logger.LogContext{
			Fields: map[string]any{"order_ref": n.OrderRef},
		})
	}

	id, err := strconv.ParseInt(n.OrderRef, 10, 64)
	if err != nil {
		return nil, g.anomalyNotFound(n.OrderRef, n), nil
	}

	order, err := g.store.GetOrder(ctx, id)
	if errors.Is(err, store.ErrOrderNotFound) {
		return nil, g.anomalyNotFound(n.OrderRef, n), nil
	}
	if err != nil {
		return nil, "", err
	}

	if order.TotalCents != n.AmountCents {
		msg := g.anomalyMismatch(order, n)
		if noteErr := g.store.AddNote(ctx, order.ID, msg); noteErr != nil {
			logger.Error("failed to annotate order with mismatch", noteErr, logger.LogContext{
				OrderID: strconv.FormatInt(order.ID, 10),
			})
		}
		return nil, msg, nil
	}

	return order, "", nil
}

// resolveCreditOrder recovers the order ID of a bank transfer from the
// free-text description. Every maximal digit run is a candidate; the first
// one naming an order whose total equals the notification amount wins.
func (g *Gateway) resolveCreditOrder(ctx context.Context, n *easytransac.Notification) (*store.Order, string, error) {
	for _, run := range digitRuns.FindAllString(n.Description, -1) {
		id, err := strconv.ParseInt(run, 10, 64)
		if err != nil {
			continue
		}

		order, err := g.store.GetOrder(ctx, id)
		if errors.Is(err, store.ErrOrderNotFound) {
			continue
		}
		if err != nil {
			return nil, "", err
		}

		if order.TotalCents == n.AmountCents {
			return order, "", nil
		}
	}

	ref := n.Description
	if ref == "" {
		ref = n.OrderRef
	}
	return nil, g.anomalyNotFound(ref, n), nil
}

// handleAnomaly turns a validation failure into its terminal response,
// mailing the operators on server notifications when a recipient list is
// configured.
func (g *Gateway) handleAnomaly(n *easytransac.Notification, anomaly string, browserReturn bool) *Result {
	logger.Warn("notification anomaly", logger.LogContext{
		Operation: string(n.OperationType),
		Fields:    map[string]any{"message": anomaly},
	})

	result := &Result{Outcome: OutcomeMismatch, Notification: n}

	recipients := mailer.SplitRecipients(g.settings.NotifEmails)
	if len(recipients) == 0 {
		result.Body = bodyNoNotifMail
		return result
	}

	// The browser return of the same event would double the email; only the
	// server notification leg mails.
	if browserReturn {
		result.RedirectURL = g.settings.ReturnURL
		return result
	}

	if g.mailer != nil {
		if err := g.mailer.Send(recipients, anomalyMailSubject, anomaly); err != nil {
			logger.Error("failed to send anomaly notification", err)
		}
	}
	result.Body = bodyNotificationSent
	return result
}

// applyTransaction applies the notification's status transition under the
// per-order lock. Orders already processing are terminal: neither status
// nor transaction ID changes.
func (g *Gateway) applyTransaction(ctx context.Context, order *store.Order, n *easytransac.Notification) (Outcome, string, error) {
	unlock := g.locks.lock(order.ID)
	defer unlock()

	current, err := g.store.GetOrder(ctx, order.ID)
	if err != nil {
		return "", "", err
	}
	if current.Status == store.StatusProcessing {
		return OutcomeDuplicate, "", nil
	}

	if err := g.store.SetTransactionID(ctx, order.ID, n.Tid); err != nil {
		return "", "", err
	}

	log := logger.WithOrder(strconv.FormatInt(order.ID, 10))

	switch n.Status {
	case easytransac.StatusFailed:
		if _, err := g.store.TransitionStatus(ctx, order.ID, store.StatusFailed); err != nil {
			return "", "", err
		}
		note := "Payment failed"
		if n.Message != "" {
			note += ": " + n.Message
		}
		if err := g.store.AddNote(ctx, order.ID, note); err != nil {
			return "", "", err
		}
		log.Info("payment failed")
		return OutcomeApplied, n.Message, nil

	case easytransac.StatusCaptured:
		if n.ClientID != "" && current.UserID != 0 {
			if err := g.store.SetClientID(ctx, current.UserID, n.ClientID); err != nil {
				return "", "", err
			}
		}

		changed, err := g.store.MarkPaid(ctx, order.ID, n.Tid)
		if err != nil {
			return "", "", err
		}
		if !changed {
			return OutcomeDuplicate, "", nil
		}

		if current.UserID != 0 {
			if err := g.store.ClearCart(ctx, current.UserID); err != nil {
				return "", "", err
			}
		}
		if err := g.store.AddNote(ctx, order.ID, "Payment captured by EasyTransac (Tid "+n.Tid+")."); err != nil {
			return "", "", err
		}
		log.Info("payment captured")
		return OutcomeApplied, "", nil

	case easytransac.StatusPending:
		log.Info("payment pending, no status change")
		return OutcomeApplied, "", nil

	case easytransac.StatusRefunded:
		if _, err := g.store.TransitionStatus(ctx, order.ID, store.StatusRefunded); err != nil {
			return "", "", err
		}
		if err := g.store.AddNote(ctx, order.ID, "Payment refunded by EasyTransac."); err != nil {
			return "", "", err
		}
		log.Info("payment refunded")
		return OutcomeApplied, "", nil
	}

	logger.Warn("unknown notification status, no status change", logger.LogContext{
		OrderID: strconv.FormatInt(order.ID, 10),
		Fields:  map[string]any{"status": string(n.Status)},
	})
	return OutcomeApplied, "", nil
}

func (g *Gateway) anomalyNotFound(ref string, n *easytransac.Notification) string {
	return fmt.Sprintf(msgOrderNotFound, ref, formatEuros(n.AmountCents), operationWord(n.OperationType))
}

func (g *Gateway) anomalyMismatch(order *store.Order, n *easytransac.Notification) string {
	return fmt.Sprintf(msgAmountMismatch,
		strconv.FormatInt(order.ID, 10), formatEuros(order.TotalCents),
		operationWord(n.OperationType), formatEuros(n.AmountCents))
}

func operationWord(op easytransac.OperationType) string {
	if op == easytransac.OperationCredit {
		return "virement"
	}
	return "paiement"
}

func formatEuros(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
