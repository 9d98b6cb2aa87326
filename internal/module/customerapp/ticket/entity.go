package ticket

import (
	"time"

	"github.com/shopspring/decimal"
)

// TicketStock is the inventory ledger row for one ticket type. Availability
// is allocation - sold - reserved; the repository keeps sold + reserved from
// ever exceeding allocation.
type TicketStock struct {
	ID              string
	EventID         string
	Tier            string
	Price           decimal.Decimal
	Allocation      int64
	Sold            int64
	Reserved        int64
	SaleStartsAt    time.Time
	SaleEndsAt      time.Time
	LastStockUpdate time.Time
}

func (ts TicketStock) Available() int64 {
	return ts.Allocation - ts.Sold - ts.Reserved
}

func (ts TicketStock) OnSaleAt(t time.Time) bool {
	return !t.Before(ts.SaleStartsAt) && t.Before(ts.SaleEndsAt)
}

type Ticket struct {
	ID             string
	OrderID        string
	TicketStockID  string
	EventID        string
	Tier           string
	Status         string
	CheckInPayload string
	IssuedAt       time.Time
	UpdatedAt      time.Time
}

const (
	AdjustmentRelease    = "RELEASE"
	AdjustmentCommitSale = "COMMIT_SALE"
)
