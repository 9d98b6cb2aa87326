package ticket

type CheckInResponse struct {
	TicketID string `json:"ticket_id"`
	OrderID  string `json:"order_id"`
	EventID  string `json:"event_id"`
	Tier     string `json:"tier"`
	Status   string `json:"status"`
}
