package order

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"database/sql"
	"encoding/pem"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tixgo/tix-booking/internal/module/customerapp/event"
	"github.com/tixgo/tix-booking/internal/module/customerapp/ticket"
	"github.com/tixgo/tix-booking/internal/pkg/jwt"
	"github.com/tixgo/tix-booking/pkg/errors"
	"github.com/tixgo/tix-booking/pkg/gctasks"
	"github.com/tixgo/tix-booking/pkg/status"
)

// memStore backs every fake repository in this package's tests. When
// snapshots are enabled, BeginTx/Rollback emulate transactional rollback;
// concurrency tests disable them and rely on the conditional reserve alone.
type memStore struct {
	mu          sync.Mutex
	events      map[string]event.Event
	stocks      map[string]*ticket.TicketStock
	orders      map[string]*Order
	items       map[string][]Item
	tickets     []*ticket.Ticket
	adjustments map[string]bool
	snapshots   bool
	snap        *memSnapshot
}

type memSnapshot struct {
	stocks      map[string]ticket.TicketStock
	orders      map[string]Order
	items       map[string][]Item
	tickets     []ticket.Ticket
	adjustments map[string]bool
}

func newMemStore(snapshots bool) *memStore {
	return &memStore{
		events:      make(map[string]event.Event),
		stocks:      make(map[string]*ticket.TicketStock),
		orders:      make(map[string]*Order),
		items:       make(map[string][]Item),
		adjustments: make(map[string]bool),
		snapshots:   snapshots,
	}
}

func (s *memStore) takeSnapshot() {
	if !s.snapshots {
		return
	}

	snap := &memSnapshot{
		stocks:      make(map[string]ticket.TicketStock, len(s.stocks)),
		orders:      make(map[string]Order, len(s.orders)),
		items:       make(map[string][]Item, len(s.items)),
		tickets:     make([]ticket.Ticket, len(s.tickets)),
		adjustments: make(map[string]bool, len(s.adjustments)),
	}
	for k, v := range s.stocks {
		snap.stocks[k] = *v
	}
	for k, v := range s.orders {
		snap.orders[k] = *v
	}
	for k, v := range s.items {
		snap.items[k] = append([]Item(nil), v...)
	}
	for i, t := range s.tickets {
		snap.tickets[i] = *t
	}
	for k, v := range s.adjustments {
		snap.adjustments[k] = v
	}

	s.snap = snap
}

func (s *memStore) restoreSnapshot() {
	if !s.snapshots || s.snap == nil {
		return
	}

	s.stocks = make(map[string]*ticket.TicketStock, len(s.snap.stocks))
	for k, v := range s.snap.stocks {
		v := v
		s.stocks[k] = &v
	}
	s.orders = make(map[string]*Order, len(s.snap.orders))
	for k, v := range s.snap.orders {
		v := v
		s.orders[k] = &v
	}
	s.items = make(map[string][]Item, len(s.snap.items))
	for k, v := range s.snap.items {
		s.items[k] = append([]Item(nil), v...)
	}
	s.tickets = make([]*ticket.Ticket, len(s.snap.tickets))
	for i, t := range s.snap.tickets {
		t := t
		s.tickets[i] = &t
	}
	s.adjustments = make(map[string]bool, len(s.snap.adjustments))
	for k, v := range s.snap.adjustments {
		s.adjustments[k] = v
	}

	s.snap = nil
}

type fakeEventRepository struct{ store *memStore }

func (r *fakeEventRepository) FindByID(ctx context.Context, ID string, tx *sql.Tx) (event.Event, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	e, ok := r.store.events[ID]
	if !ok {
		return event.Event{}, errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("event with id '%s' is not found", ID))
	}

	return e, nil
}

type fakeTicketStockRepository struct{ store *memStore }

func (r *fakeTicketStockRepository) FindByID(ctx context.Context, ID string, tx *sql.Tx) (ticket.TicketStock, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	ts, ok := r.store.stocks[ID]
	if !ok {
		return ticket.TicketStock{}, errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("ticket stock with id '%s' is not found", ID))
	}

	return *ts, nil
}

func (r *fakeTicketStockRepository) FindManyByEventID(ctx context.Context, eventID string, tx *sql.Tx) ([]ticket.TicketStock, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []ticket.TicketStock
	for _, ts := range r.store.stocks {
		if ts.EventID == eventID {
			out = append(out, *ts)
		}
	}

	return out, nil
}

func (r *fakeTicketStockRepository) TryReserve(ctx context.Context, ID string, quantity int64, tx *sql.Tx) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	ts, ok := r.store.stocks[ID]
	if !ok {
		return errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("ticket stock with id '%s' is not found", ID))
	}

	if ts.Sold+ts.Reserved+quantity > ts.Allocation {
		return errors.New(http.StatusConflict, status.INSUFFICIENT_INVENTORY, fmt.Sprintf("ticket stock with id '%s' has insufficient inventory", ID))
	}

	ts.Reserved += quantity

	return nil
}

func (r *fakeTicketStockRepository) adjust(orderID, ID, adjustmentType string, apply func(*ticket.TicketStock)) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	ts, ok := r.store.stocks[ID]
	if !ok {
		return errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("ticket stock with id '%s' is not found", ID))
	}

	key := fmt.Sprintf("%s|%s|%s", orderID, ID, adjustmentType)
	if r.store.adjustments[key] {
		return nil
	}
	r.store.adjustments[key] = true

	apply(ts)

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

type fakeTicketRepository struct{ store *memStore }

func (r *fakeTicketRepository) SaveMany(ctx context.Context, tickets []ticket.Ticket, tx *sql.Tx) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, t := range tickets {
		t := t
		r.store.tickets = append(r.store.tickets, &t)
	}

	return nil
}

func (r *fakeTicketRepository) FindByID(ctx context.Context, ID string, tx *sql.Tx) (ticket.Ticket, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, t := range r.store.tickets {
		if t.ID == ID {
			return *t, nil
		}
	}

	return ticket.Ticket{}, errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("ticket with id '%s' is not found", ID))
}

func (r *fakeTicketRepository) FindManyByOrderID(ctx context.Context, orderID string, tx *sql.Tx) ([]ticket.Ticket, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []ticket.Ticket
	for _, t := range r.store.tickets {
		if t.OrderID == orderID {
			out = append(out, *t)
		}
	}

	return out, nil
}

func (r *fakeTicketRepository) UpdateStatusByOrderID(ctx context.Context, orderID string, fromStatus, toStatus string, tx *sql.Tx) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var affected int64
	for _, t := range r.store.tickets {
		if t.OrderID == orderID && t.Status == fromStatus {
			t.Status = toStatus
			affected++
		}
	}

	return affected, nil
}

func (r *fakeTicketRepository) UpdateStatus(ctx context.Context, ID string, fromStatus, toStatus string, tx *sql.Tx) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, t := range r.store.tickets {
		if t.ID == ID && t.Status == fromStatus {
			t.Status = toStatus
			return 1, nil
		}
	}

	return 0, nil
}

type fakeOrderRepository struct{ store *memStore }

func (r *fakeOrderRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.takeSnapshot()

	return nil, nil
}

func (r *fakeOrderRepository) CommitTx(ctx context.Context, tx *sql.Tx) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.snap = nil

	return nil
}

func (r *fakeOrderRepository) Rollback(ctx context.Context, tx *sql.Tx) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.restoreSnapshot()

	return nil
}

func (r *fakeOrderRepository) Save(ctx context.Context, o Order, tx *sql.Tx) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.orders[o.ID] = &o

	return nil
}

func (r *fakeOrderRepository) FindByID(ctx context.Context, ID string, tx *sql.Tx) (Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	o, ok := r.store.orders[ID]
	if !ok {
		return Order{}, errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("order with id '%s' is not found", ID))
	}

	return *o, nil
}

func (r *fakeOrderRepository) FindMany(ctx context.Context, customerID int64, offset, limit int64, tx *sql.Tx) ([]Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []Order
	for _, o := range r.store.orders {
		if o.CustomerID == customerID {
			out = append(out, *o)
		}
	}

	return out, nil
}

func (r *fakeOrderRepository) Count(ctx context.Context, customerID int64, tx *sql.Tx) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var count int64
	for _, o := range r.store.orders {
		if o.CustomerID == customerID {
			count++
		}
	}

	return count, nil
}

func (r *fakeOrderRepository) UpdateStatus(ctx context.Context, ID string, fromStatus, toStatus string, tx *sql.Tx) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	o, ok := r.store.orders[ID]
	if !ok || o.Status != fromStatus {
		return 0, nil
	}

	o.Status = toStatus
	o.UpdatedAt = time.Now()

	return 1, nil
}

func (r *fakeOrderRepository) UpdateStatusExpired(ctx context.Context, ID string, toStatus string, now time.Time, tx *sql.Tx) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	o, ok := r.store.orders[ID]
	if !ok || o.Status != StatusPending || o.ExpiresAt.After(now) {
		return 0, nil
	}

	o.Status = toStatus
	o.UpdatedAt = now

	return 1, nil
}

func (r *fakeOrderRepository) FindExpiredIDs(ctx context.Context, before time.Time, limit int64) ([]string, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var ids []string
	for _, o := range r.store.orders {
		if o.Status == StatusPending && o.ExpiresAt.Before(before) {
			ids = append(ids, o.ID)
			if int64(len(ids)) >= limit {
				break
			}
		}
	}

	return ids, nil
}

type fakeItemRepository struct{ store *memStore }

func (r *fakeItemRepository) Save(ctx context.Context, i Item, tx *sql.Tx) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.items[i.OrderID] = append(r.store.items[i.OrderID], i)

	return nil
}

func (r *fakeItemRepository) FindManyByOrderID(ctx context.Context, orderID string, tx *sql.Tx) ([]Item, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return append([]Item(nil), r.store.items[orderID]...), nil
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

type fakePaymentInitiator struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakePaymentInitiator) InitiatePayment(ctx context.Context, o Order) (PaymentSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++

	if f.err != nil {
		return PaymentSession{}, f.err
	}

	return PaymentSession{
		PaymentID:   "PM-test",
		Provider:    o.PaymentProvider,
		RedirectURL: "https://checkout.example/session",
	}, nil
}

type fakeCloudTask struct {
	mu       sync.Mutex
	requests []gctasks.Request
}

func (f *fakeCloudTask) CreateTask(queueID string, request gctasks.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, request)

	return nil
}

func (f *fakeCloudTask) DeferCreateTaskInTime(queueID string, request gctasks.Request, schedule time.Time) error {
	return f.CreateTask(queueID, request)
}

func (f *fakeCloudTask) Close() error { return nil }

func testJSONWebToken(t *testing.T) *jwt.JSONWebToken {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubDER,
	})

	j, err := jwt.NewJSONWebToken(privPEM, pubPEM)
	require.NoError(t, err)

	return j
}
