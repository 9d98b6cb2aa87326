package order

import (
	"time"

	"github.com/shopspring/decimal"
)

type ItemResponse struct {
	TicketStockID string          `json:"ticket_stock_id"`
	EventID       string          `json:"event_id"`
	EventName     string          `json:"event_name"`
	Tier          string          `json:"tier"`
	Price         decimal.Decimal `json:"price"`
	Quantity      int64           `json:"quantity"`
}

type PlaceOrderResponse struct {
	ID              string          `json:"id"`
	Status          string          `json:"status"`
	CustomerID      int64           `json:"customer_id"`
	CustomerName    string          `json:"customer_name"`
	CustomerEmail   string          `json:"customer_email"`
	PaymentProvider string          `json:"payment_provider"`
	PaymentID       string          `json:"payment_id,omitempty"`
	PaymentRedirect string          `json:"payment_redirect,omitempty"`
	Items           []ItemResponse  `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	ExpiresAt       time.Time       `json:"expires_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (r *PlaceOrderResponse) PopulateFromEntity(o Order) {
	r.ID = o.ID
	r.Status = o.Status
	r.CustomerID = o.CustomerID
	r.CustomerName = o.CustomerName
	r.CustomerEmail = o.CustomerEmail
	r.PaymentProvider = o.PaymentProvider
	r.Subtotal = o.Subtotal
	r.TotalAmount = o.TotalAmount
	r.ExpiresAt = o.ExpiresAt
	r.CreatedAt = o.CreatedAt
	r.UpdatedAt = o.UpdatedAt

	items := make([]ItemResponse, len(o.Items))
	for k, v := range o.Items {
		items[k] = ItemResponse{
			TicketStockID: v.TicketStockID,
			EventID:       v.EventID,
			EventName:     v.EventName,
			Tier:          v.Tier,
			Price:         v.Price,
			Quantity:      v.Quantity,
		}
	}
	r.Items = items
}

type GetOrderResponse = PlaceOrderResponse

type GetManyOrderResponse []PlaceOrderResponse

type PaginationMeta struct {
	Page      int64 `json:"page"`
	Size      int64 `json:"size"`
	TotalData int64 `json:"total_data"`
}
