package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusInitiated = "INITIATED"
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
	StatusRefunded  = "REFUNDED"
)

const (
	OutcomeSuccess = "SUCCESS"
	OutcomeFailure = "FAILURE"
)

const (
	TopicPaymentReview   = "payment-review"
	TopicPaymentRefunded = "payment-refunded"
)

// Payment tracks one checkout attempt against an external provider. The
// (provider, provider_txn_id) pair is the idempotency key for callback
// deliveries; the raw payload is kept for audit and replay investigation.
type Payment struct {
	ID            string
	OrderID       string
	Provider      string
	ProviderTxnID string
	Amount        decimal.Decimal
	Status        string
	RawPayload    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (p Payment) IsSettled() bool {
	return p.Status == StatusCompleted || p.Status == StatusFailed || p.Status == StatusRefunded
}

// Notification is the provider-neutral form every callback is normalized
// into before any state is touched.
type Notification struct {
	OrderID       string
	ProviderTxnID string
	Outcome       string
	Amount        decimal.Decimal
	RawPayload    string
}

// CheckoutRequest carries what a provider needs to open a checkout session.
type CheckoutRequest struct {
	OrderID       string
	Amount        decimal.Decimal
	OrderInfo     string
	CustomerEmail string
}

type CheckoutSession struct {
	ProviderTxnID string
	RedirectURL   string
}
