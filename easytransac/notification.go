package easytransac

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Notification is a decoded payment notification. The processor posts the
// same payload to the server-to-server notification URL and appends it to
// the browser return redirect.
type Notification struct {
	OperationType OperationType
	Status        TransactionStatus
	AmountCents   int64
	OrderRef      string
	Tid           string
	ClientID      string
	ErrorCode     string
	Message       string
	Description   string
}

// ErrBadSignature is returned when a notification payload fails verification.
var ErrBadSignature = errors.New("easytransac: notification signature mismatch")

// VerifyNotification checks the payload signature against the API key and
// decodes it. The payload is the flat form-parameter map as received; a
// wrapping "data" key must already be stripped by the caller.
func VerifyNotification(payload map[string]string, apiKey string) (*Notification, error) {
	received, ok := payload["Signature"]
	if !ok || received == "" {
		return nil, ErrBadSignature
	}

	expected := Sign(payload, apiKey)
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(received)), []byte(expected)) != 1 {
		return nil, ErrBadSignature
	}

	return ParseNotification(payload)
}

// ParseNotification decodes a payload without verifying its signature. Use
// for payloads whose authenticity is established elsewhere.
func ParseNotification(payload map[string]string) (*Notification, error) {
	amount, err := ParseCents(payload["Amount"])
	if err != nil {
		return nil, fmt.Errorf("easytransac: invalid notification amount %q: %w", payload["Amount"], err)
	}

	op := OperationType(payload["OperationType"])
	if op == "" {
		op = OperationPayment
	}

	return &Notification{
		OperationType: op,
		Status:        TransactionStatus(payload["Status"]),
		AmountCents:   amount,
		OrderRef:      payload["OrderId"],
		Tid:           payload["Tid"],
		ClientID:      payload["ClientId"],
		ErrorCode:     payload["Error"],
		Message:       payload["Message"],
		Description:   payload["Description"],
	}, nil
}

// ParseCents parses a monetary amount into minor units. Plain integers are
// already minor units ("5000"); decimal values are major units ("50.00").
func ParseCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty amount")
	}

	if !strings.Contains(s, ".") {
		return strconv.ParseInt(s, 10, 64)
	}

	whole, frac, _ := strings.Cut(s, ".")
	negative := strings.HasPrefix(whole, "-")
	whole = strings.TrimPrefix(whole, "-")

	if whole == "" {
		whole = "0"
	}
	switch len(frac) {
	case 0:
		frac = "00"
	case 1:
		frac += "0"
	case 2:
	default:
		return 0, fmt.Errorf("too many decimal places in %q", s)
	}

	major, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, err
	}
	minor, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, err
	}

	cents := major*100 + minor
	if negative {
		cents = -cents
	}
	return cents, nil
}
