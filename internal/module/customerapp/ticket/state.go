package ticket

import (
	"fmt"
	"net/http"

	"github.com/tixgo/tix-booking/pkg/errors"
	"github.com/tixgo/tix-booking/pkg/status"
)

const (
	StatusReserved  = "RESERVED"
	StatusPaid      = "PAID"
	StatusCheckedIn = "CHECKED_IN"
	StatusExpired   = "EXPIRED"
	StatusCancelled = "CANCELLED"
)

// transitions is the single source of truth for legal ticket status changes.
// CHECKED_IN, EXPIRED and CANCELLED are terminal. Both the order use case and
// the payment use case consult this table; nothing mutates status directly.
var transitions = map[string][]string{
	StatusReserved:  {StatusPaid, StatusExpired, StatusCancelled},
	StatusPaid:      {StatusCheckedIn, StatusCancelled},
	StatusCheckedIn: {},
	StatusExpired:   {},
	StatusCancelled: {},
}

func CanTransition(from, to string) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}

	return false
}

// EnsureTransition returns an INVALID_STATE_TRANSITION error when from -> to
// is not in the transition table. Callers must not apply any mutation when an
// error is returned.
func EnsureTransition(from, to string) error {
	if !CanTransition(from, to) {
		return errors.New(http.StatusConflict, status.INVALID_STATE_TRANSITION, fmt.Sprintf("ticket status cannot change from '%s' to '%s'", from, to))
	}

	return nil
}
