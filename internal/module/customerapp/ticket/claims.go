package ticket

import (
	gojwt "github.com/golang-jwt/jwt/v5"
)

// CheckInClaims is the signed payload embedded in every issued ticket. Gate
// staff scan it and the adminapp verifies the signature before checking the
// holder in.
type CheckInClaims struct {
	TicketID string `json:"ticket_id"`
	OrderID  string `json:"order_id"`
	EventID  string `json:"event_id"`
	Tier     string `json:"tier"`
	gojwt.RegisteredClaims
}
