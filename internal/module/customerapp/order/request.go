package order

type ItemRequest struct {
	TicketStockID string `json:"ticket_stock_id" validate:"required"`
	Quantity      int64  `json:"quantity" validate:"gt=0,lte=10"`
}

type PlaceOrderRequest struct {
	EventID         string        `json:"event_id" validate:"required"`
	PaymentProvider string        `json:"payment_provider" validate:"oneof=vnpay stripe momo"`
	Items           []ItemRequest `json:"items" validate:"required,min=1,dive"`
}

type GetManyOrderRequest struct {
	Page int64 `validate:"gt=0"`
	Size int64 `validate:"gt=0,lte=100"`
}
