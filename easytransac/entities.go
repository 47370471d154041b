package easytransac

import (
	"errors"
	"strconv"
)

// Customer identifies the buyer on a transaction. ClientID references an
// existing processor-side profile when the buyer already paid once.
type Customer struct {
	ClientID  string
	Email     string
	FirstName string
	LastName  string
	Address   string
	ZipCode   string
	City      string
	Country   string
	Phone     string
}

func (c Customer) toForm(form map[string]string) {
	if c.ClientID != "" {
		form["ClientId"] = c.ClientID
	}
	form["Email"] = c.Email
	form["Firstname"] = c.FirstName
	form["Lastname"] = c.LastName
	form["Address"] = c.Address
	form["ZipCode"] = c.ZipCode
	form["City"] = c.City
	form["Country"] = c.Country
	if c.Phone != "" {
		form["Phone"] = c.Phone
	}
}

// Recurrence periods accepted by the processor for rebill transactions.
const (
	RecurrenceDaily   = "daily"
	RecurrenceWeekly  = "weekly"
	RecurrenceMonthly = "monthly"
	RecurrenceYearly  = "yearly"
)

// PaymentPageTransaction describes a hosted payment-page request. Amounts
// are in minor units (cents).
type PaymentPageTransaction struct {
	Customer    Customer
	AmountCents int64
	OrderRef    string
	Description string
	Language    string
	Secure      bool
	OneClick    bool

	ReturnURL string
	CancelURL string

	// Rebill schedules an open-ended subscription with the given recurrence.
	Rebill     bool
	Recurrence string

	// MultiplePayments splits the amount over a fixed number of installments.
	MultiplePayments       bool
	MultiplePaymentsRepeat int

	// DownPaymentCents is the first installment when it differs from an
	// even split, in minor units.
	DownPaymentCents int64
}

func (tx *PaymentPageTransaction) validate() error {
	if tx.AmountCents <= 0 {
		return errors.New("amount must be positive")
	}
	if tx.OrderRef == "" {
		return errors.New("order reference is required")
	}
	if tx.Customer.Email == "" {
		return errors.New("customer email is required")
	}
	if tx.Rebill && tx.Recurrence == "" {
		return errors.New("rebill requires a recurrence")
	}
	if tx.MultiplePayments && tx.MultiplePaymentsRepeat < 2 {
		return errors.New("multiple payments require at least 2 installments")
	}
	return nil
}

func (tx *PaymentPageTransaction) toForm() map[string]string {
	form := map[string]string{
		"Amount":      strconv.FormatInt(tx.AmountCents, 10),
		"OrderId":     tx.OrderRef,
		"Description": tx.Description,
		"ReturnUrl":   tx.ReturnURL,
		"CancelUrl":   tx.CancelURL,
		"SecureCode":  boolToYesNo(tx.Secure),
	}
	tx.Customer.toForm(form)

	if tx.Language != "" {
		form["Language"] = tx.Language
	}
	if tx.OneClick {
		form["OneClick"] = "yes"
	}
	if tx.Rebill {
		form["Rebill"] = "yes"
		form["Recurrence"] = tx.Recurrence
	}
	if tx.MultiplePayments {
		form["MultiplePayments"] = "yes"
		form["MultiplePaymentsRepeat"] = strconv.Itoa(tx.MultiplePaymentsRepeat)
	}
	if tx.DownPaymentCents > 0 {
		form["DownPayment"] = strconv.FormatInt(tx.DownPaymentCents, 10)
	}

	return form
}

// OneClickTransaction charges a stored card alias without customer presence.
type OneClickTransaction struct {
	Customer    Customer
	Alias       string
	AmountCents int64
	OrderRef    string
	Description string
	Language    string
}

func (tx *OneClickTransaction) validate() error {
	if tx.AmountCents <= 0 {
		return errors.New("amount must be positive")
	}
	if tx.OrderRef == "" {
		return errors.New("order reference is required")
	}
	if tx.Alias == "" {
		return errors.New("card alias is required")
	}
	if tx.Customer.ClientID == "" {
		return errors.New("client ID is required")
	}
	return nil
}

func (tx *OneClickTransaction) toForm() map[string]string {
	form := map[string]string{
		"Amount":      strconv.FormatInt(tx.AmountCents, 10),
		"OrderId":     tx.OrderRef,
		"Description": tx.Description,
		"Alias":       tx.Alias,
	}
	tx.Customer.toForm(form)

	if tx.Language != "" {
		form["Language"] = tx.Language
	}

	return form
}

// PaymentPageResult is the processor's answer to a payment-page request.
type PaymentPageResult struct {
	PageURL string `json:"PageUrl"`
	Tid     string `json:"Tid"`
}

// DoneTransaction is a completed (or rejected) immediate transaction.
type DoneTransaction struct {
	Tid      string            `json:"Tid"`
	OrderRef string            `json:"OrderId"`
	Status   TransactionStatus `json:"Status"`
	Amount   string            `json:"Amount"`
	Message  string            `json:"Message"`
	Client   struct {
		ID string `json:"Id"`
	} `json:"Client"`
}

// RefundResult is the processor's answer to a refund request.
type RefundResult struct {
	Tid    string            `json:"Tid"`
	Status TransactionStatus `json:"Status"`
}

// CreditCard is a stored card alias usable for one-click payments. Year is
// the two-digit expiry year as the processor reports it.
type CreditCard struct {
	Alias      string `json:"Alias"`
	CardNumber string `json:"CardNumber"`
	Month      string `json:"Month"`
	Year       string `json:"Year"`
}

func boolToYesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
