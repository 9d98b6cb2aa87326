package order

const (
	TopicOrderPaid      = "order-paid"
	TopicOrderExpired   = "order-expired"
	TopicOrderCancelled = "order-cancelled"
)

// ExpireOrderEvent is the payload of the deferred on-expire callback
// scheduled through cloud tasks when an order is placed.
type ExpireOrderEvent struct {
	OrderID string `json:"order_id"`
}

// OrderLifecycleEvent is published to kafka whenever an order leaves the
// PENDING status.
type OrderLifecycleEvent struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}
