package order

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusExpired   = "EXPIRED"
	StatusCancelled = "CANCELLED"
)

// Order is a time-boxed hold over ticket inventory. It stays PENDING while
// payment is in flight and becomes immutable once it reaches a terminal
// status.
type Order struct {
	ID              string
	Status          string
	CustomerID      int64
	CustomerName    string
	CustomerEmail   string
	PaymentProvider string
	Items           []Item
	Subtotal        decimal.Decimal
	TotalAmount     decimal.Decimal
	ExpiresAt       time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (o Order) IsTerminal() bool {
	return o.Status == StatusCompleted || o.Status == StatusExpired || o.Status == StatusCancelled
}

type Item struct {
	ID            int64
	OrderID       string
	TicketStockID string
	EventID       string
	EventName     string
	Tier          string
	Price         decimal.Decimal
	Quantity      int64
}

// PaymentSession is what the payment module hands back after initiating a
// provider checkout for an order.
type PaymentSession struct {
	PaymentID   string
	Provider    string
	RedirectURL string
}
