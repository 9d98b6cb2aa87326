package event

import "time"

const (
	StatusDraft     = "DRAFT"
	StatusPublished = "PUBLISHED"
	StatusEnded     = "ENDED"
)

// Event is a read-only projection owned by the event service. The booking
// service only needs enough of it to validate purchases and label tickets.
type Event struct {
	ID        string
	Name      string
	Venue     string
	Status    string
	StartsAt  time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
