package payment

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tixgo/tix-booking/internal/module/customerapp/order"
	"github.com/tixgo/tix-booking/internal/module/customerapp/ticket"
	"github.com/tixgo/tix-booking/pkg/errors"
	"github.com/tixgo/tix-booking/pkg/status"
)

// world is the shared in-memory state behind the fake repositories used in
// this package's tests.
type world struct {
	mu          sync.Mutex
	orders      map[string]*order.Order
	items       map[string][]order.Item
	tickets     []*ticket.Ticket
	stocks      map[string]*ticket.TicketStock
	payments    map[string]*Payment
	adjustments map[string]bool
}

func newWorld() *world {
	return &world{
		orders:      make(map[string]*order.Order),
		items:       make(map[string][]order.Item),
		stocks:      make(map[string]*ticket.TicketStock),
		payments:    make(map[string]*Payment),
		adjustments: make(map[string]bool),
	}
}

type fakeOrderRepository struct{ w *world }

func (r *fakeOrderRepository) BeginTx(ctx context.Context) (*sql.Tx, error)      { return nil, nil }
func (r *fakeOrderRepository) CommitTx(ctx context.Context, tx *sql.Tx) error    { return nil }
func (r *fakeOrderRepository) Rollback(ctx context.Context, tx *sql.Tx) error    { return nil }
func (r *fakeOrderRepository) Save(ctx context.Context, o order.Order, tx *sql.Tx) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	r.w.orders[o.ID] = &o
	return nil
}

func (r *fakeOrderRepository) FindByID(ctx context.Context, ID string, tx *sql.Tx) (order.Order, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()

	o, ok := r.w.orders[ID]
	if !ok {
		return order.Order{}, errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("order with id '%s' is not found", ID))
	}

	return *o, nil
}

func (r *fakeOrderRepository) FindMany(ctx context.Context, customerID int64, offset, limit int64, tx *sql.Tx) ([]order.Order, error) {
	return nil, nil
}

func (r *fakeOrderRepository) Count(ctx context.Context, customerID int64, tx *sql.Tx) (int64, error) {
	return 0, nil
}

func (r *fakeOrderRepository) UpdateStatus(ctx context.Context, ID string, fromStatus, toStatus string, tx *sql.Tx) (int64, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()

	o, ok := r.w.orders[ID]
	if !ok || o.Status != fromStatus {
		return 0, nil
	}

	o.Status = toStatus
	o.UpdatedAt = time.Now()

	return 1, nil
}

func (r *fakeOrderRepository) UpdateStatusExpired(ctx context.Context, ID string, toStatus string, now time.Time, tx *sql.Tx) (int64, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()

	o, ok := r.w.orders[ID]
	if !ok || o.Status != order.StatusPending || o.ExpiresAt.After(now) {
		return 0, nil
	}

	o.Status = toStatus
	o.UpdatedAt = now

	return 1, nil
}

func (r *fakeOrderRepository) FindExpiredIDs(ctx context.Context, before time.Time, limit int64) ([]string, error) {
	return nil, nil
}

type fakeItemRepository struct{ w *world }

func (r *fakeItemRepository) Save(ctx context.Context, i order.Item, tx *sql.Tx) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	r.w.items[i.OrderID] = append(r.w.items[i.OrderID], i)
	return nil
}

func (r *fakeItemRepository) FindManyByOrderID(ctx context.Context, orderID string, tx *sql.Tx) ([]order.Item, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	return append([]order.Item(nil), r.w.items[orderID]...), nil
}

type fakeTicketRepository struct{ w *world }

func (r *fakeTicketRepository) SaveMany(ctx context.Context, tickets []ticket.Ticket, tx *sql.Tx) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	for _, t := range tickets {
		t := t
		r.w.tickets = append(r.w.tickets, &t)
	}
	return nil
}

func (r *fakeTicketRepository) FindByID(ctx context.Context, ID string, tx *sql.Tx) (ticket.Ticket, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()

	for _, t := range r.w.tickets {
		if t.ID == ID {
			return *t, nil
		}
	}

	return ticket.Ticket{}, errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("ticket with id '%s' is not found", ID))
}

func (r *fakeTicketRepository) FindManyByOrderID(ctx context.Context, orderID string, tx *sql.Tx) ([]ticket.Ticket, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()

	var out []ticket.Ticket
	for _, t := range r.w.tickets {
		if t.OrderID == orderID {
			out = append(out, *t)
		}
	}

	return out, nil
}

func (r *fakeTicketRepository) UpdateStatusByOrderID(ctx context.Context, orderID string, fromStatus, toStatus string, tx *sql.Tx) (int64, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()

	var affected int64
	for _, t := range r.w.tickets {
		if t.OrderID == orderID && t.Status == fromStatus {
			t.Status = toStatus
			affected++
		}
	}

	return affected, nil
}

func (r *fakeTicketRepository) UpdateStatus(ctx context.Context, ID string, fromStatus, toStatus string, tx *sql.Tx) (int64, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()

	for _, t := range r.w.tickets {
		if t.ID == ID && t.Status == fromStatus {
			t.Status = toStatus
			return 1, nil
		}
	}

	return 0, nil
}

type fakeTicketStockRepository struct{ w *world }

func (r *fakeTicketStockRepository) FindByID(ctx context.Context, ID string, tx *sql.Tx) (ticket.TicketStock, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()

	ts, ok := r.w.stocks[ID]
	if !ok {
		return ticket.TicketStock{}, errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("ticket stock with id '%s' is not found", ID))
	}

	return *ts, nil
}

func (r *fakeTicketStockRepository) FindManyByEventID(ctx context.Context, eventID string, tx *sql.Tx) ([]ticket.TicketStock, error) {
	return nil, nil
}

func (r *fakeTicketStockRepository) TryReserve(ctx context.Context, ID string, quantity int64, tx *sql.Tx) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()

	ts := r.w.stocks[ID]
	if ts.Sold+ts.Reserved+quantity > ts.Allocation {
		return errors.New(http.StatusConflict, status.INSUFFICIENT_INVENTORY, fmt.Sprintf("ticket stock with id '%s' has insufficient inventory", ID))
	}
	ts.Reserved += quantity

	return nil
}

func (r *fakeTicketStockRepository) adjust(orderID, ID, adjustmentType string, apply func(*ticket.TicketStock)) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()

	key := fmt.Sprintf("%s|%s|%s", orderID, ID, adjustmentType)
	if r.w.adjustments[key] {
		return nil
	}
	r.w.adjustments[key] = true

	apply(r.w.stocks[ID])

	return nil
}

func (r *fakeTicketStockRepository) Release(ctx context.Context, orderID string, ID string, quantity int64, tx *sql.Tx) error {
	return r.adjust(orderID, ID, ticket.AdjustmentRelease, func(ts *ticket.TicketStock) {
		ts.Reserved -= quantity
	})
}

func (r *fakeTicketStockRepository) CommitSale(ctx context.Context, orderID string, ID string, quantity int64, tx *sql.Tx) error {
	return r.adjust(orderID, ID, ticket.AdjustmentCommitSale, func(ts *ticket.TicketStock) {
		ts.Reserved -= quantity
		ts.Sold += quantity
	})
}

type fakePaymentRepository struct{ w *world }

func (r *fakePaymentRepository) Save(ctx context.Context, p Payment, tx *sql.Tx) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	r.w.payments[p.ID] = &p
	return nil
}

func (r *fakePaymentRepository) Update(ctx context.Context, p Payment, tx *sql.Tx) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	r.w.payments[p.ID] = &p
	return nil
}

func (r *fakePaymentRepository) FindByProviderTxnID(ctx context.Context, provider, providerTxnID string, tx *sql.Tx) (Payment, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()

	for _, p := range r.w.payments {
		if p.Provider == provider && p.ProviderTxnID == providerTxnID && providerTxnID != "" {
			return *p, nil
		}
	}

	return Payment{}, errors.New(http.StatusNotFound, status.NOT_FOUND, "payment is not found")
}

func (r *fakePaymentRepository) FindByOrderIDAndStatus(ctx context.Context, orderID, paymentStatus string, tx *sql.Tx) (Payment, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()

	for _, p := range r.w.payments {
		if p.OrderID == orderID && p.Status == paymentStatus {
			return *p, nil
		}
	}

	return Payment{}, errors.New(http.StatusNotFound, status.NOT_FOUND, "payment is not found")
}

type fakePublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *fakePublisher) Publish(ctx context.Context, topic string, key string, headers map[string]string, message []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *fakePublisher) Close() {}

func (p *fakePublisher) published(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	var n int
	for _, t := range p.topics {
		if t == topic {
			n++
		}
	}

	return n
}

type fakeProvider struct {
	name    string
	session CheckoutSession
	err     error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) CreateSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	if p.err != nil {
		return CheckoutSession{}, p.err
	}
	return p.session, nil
}

func (p *fakeProvider) ParseCallback(r *http.Request) (Notification, error) {
	return Notification{}, nil
}

func (p *fakeProvider) Ack(w http.ResponseWriter, processErr error) {}
