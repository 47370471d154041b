// Package easytransac is a typed client for the EasyTransac payment API:
// hosted payment-page transactions, one-click payments against stored card
// aliases, stored-card listing, full refunds and verification of the
// asynchronous payment notifications the processor posts back.
package easytransac

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/easytransac/easytransac-bridge/infra/logger"
)

const (
	// API URLs
	apiBaseURL = "https://www.easytransac.com"

	// API Endpoints
	endpointPaymentPage = "/api/payment/page"
	endpointOneClick    = "/api/payment/oneclick"
	endpointListCards   = "/api/customer/listcards"
	endpointRefund      = "/api/payment/refund"

	// Default Values
	defaultTimeout = 30 * time.Second
)

// TransactionStatus is the processor-side status of a transaction.
type TransactionStatus string

const (
	StatusCaptured TransactionStatus = "captured"
	StatusPending  TransactionStatus = "pending"
	StatusFailed   TransactionStatus = "failed"
	StatusRefunded TransactionStatus = "refunded"
)

// OperationType distinguishes card payments from incoming bank transfers.
type OperationType string

const (
	OperationPayment OperationType = "payment"
	OperationCredit  OperationType = "credit"
)

// ErrMissingAPIKey is returned when a client is built without credentials.
var ErrMissingAPIKey = errors.New("easytransac: API key is required")

// Client executes signed requests against the EasyTransac API.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL, used by tests and sandboxes.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithTimeout overrides the outbound HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.client.Timeout = timeout }
}

// NewClient creates an EasyTransac API client.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	c := &Client{
		apiKey:  apiKey,
		baseURL: apiBaseURL,
		client: &http.Client{
			Timeout: defaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// apiResponse is the common envelope of every EasyTransac API response.
type apiResponse struct {
	Code   json.Number     `json:"Code"`
	Error  string          `json:"Error"`
	Result json.RawMessage `json:"Result"`
}

func (r *apiResponse) ok() bool {
	return r.Code.String() == "0" || r.Code.String() == ""
}

// PaymentPage starts a hosted payment-page transaction and returns the page
// URL the customer must be redirected to.
func (c *Client) PaymentPage(ctx context.Context, tx *PaymentPageTransaction) (*PaymentPageResult, error) {
	if err := tx.validate(); err != nil {
		return nil, fmt.Errorf("easytransac: invalid payment page transaction: %w", err)
	}

	var result PaymentPageResult
	if err := c.send(ctx, endpointPaymentPage, tx.toForm(), &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// OneClickPayment executes an immediate payment against a stored card alias.
func (c *Client) OneClickPayment(ctx context.Context, tx *OneClickTransaction) (*DoneTransaction, error) {
	if err := tx.validate(); err != nil {
		return nil, fmt.Errorf("easytransac: invalid one-click transaction: %w", err)
	}

	var result DoneTransaction
	if err := c.send(ctx, endpointOneClick, tx.toForm(), &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// ListCards returns the stored cards of a processor-side client.
func (c *Client) ListCards(ctx context.Context, clientID string) ([]CreditCard, error) {
	if clientID == "" {
		return nil, errors.New("easytransac: clientID is required")
	}

	var result struct {
		CreditCards []CreditCard `json:"CreditCards"`
	}
	if err := c.send(ctx, endpointListCards, map[string]string{"ClientId": clientID}, &result); err != nil {
		return nil, err
	}

	return result.CreditCards, nil
}

// Refund refunds a captured transaction in full by its transaction ID.
func (c *Client) Refund(ctx context.Context, tid string) (*RefundResult, error) {
	if tid == "" {
		return nil, errors.New("easytransac: transaction ID is required for refund")
	}

	var result RefundResult
	if err := c.send(ctx, endpointRefund, map[string]string{"Tid": tid}, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// send signs and posts a form request, then decodes the result envelope.
func (c *Client) send(ctx context.Context, endpoint string, params map[string]string, out any) error {
	params["Signature"] = Sign(params, c.apiKey)

	form := url.Values{}
	for key, value := range params {
		form.Set(key, value)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("easytransac: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "EasyTransacBridge/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("easytransac: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("easytransac: failed to read response: %w", err)
	}

	logger.Debug("EasyTransac API response", logger.LogContext{
		Fields: map[string]any{
			"endpoint": endpoint,
			"status":   resp.StatusCode,
		},
	})

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("easytransac: HTTP error %d: %s", resp.StatusCode, string(body))
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("easytransac: failed to decode response: %w", err)
	}

	if !envelope.ok() {
		return &APIError{Code: envelope.Code.String(), Message: envelope.Error}
	}

	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("easytransac: failed to decode result: %w", err)
		}
	}

	return nil
}

// APIError is a processor-reported request failure.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("easytransac: API error %s: %s", e.Code, e.Message)
}

// Sign computes the request signature: the SHA-1 hex digest of the values of
// the alphabetically key-sorted parameters joined with '$', followed by the
// API key. The Signature parameter itself is excluded.
func Sign(params map[string]string, apiKey string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		if key == "Signature" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, key := range keys {
		sb.WriteString(params[key])
		sb.WriteString("$")
	}
	sb.WriteString(apiKey)

	sum := sha1.Sum([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
