package order

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tixgo/tix-booking/internal/module/customerapp/event"
	"github.com/tixgo/tix-booking/internal/module/customerapp/ticket"
	"github.com/tixgo/tix-booking/internal/pkg/session"
	"github.com/tixgo/tix-booking/pkg/errors"
	"github.com/tixgo/tix-booking/pkg/status"
)

type fixture struct {
	store     *memStore
	publisher *fakePublisher
	initiator *fakePaymentInitiator
	cloudTask *fakeCloudTask
	orderRepo *fakeOrderRepository
	useCase   OrderUseCase
}

func newFixture(t *testing.T, snapshots bool) *fixture {
	t.Helper()

	store := newMemStore(snapshots)
	publisher := &fakePublisher{}
	initiator := &fakePaymentInitiator{}
	cloudTask := &fakeCloudTask{}
	orderRepo := &fakeOrderRepository{store: store}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	useCase := NewOrderUseCase(OrderUseCaseProperty{
		Logger:                logger,
		Timeout:               5 * time.Second,
		BaseURL:               "http://localhost:8080/tix-booking",
		HoldDuration:          10 * time.Minute,
		EventRepository:       &fakeEventRepository{store: store},
		TicketStockRepository: &fakeTicketStockRepository{store: store},
		TicketRepository:      &fakeTicketRepository{store: store},
		OrderRepository:       orderRepo,
		ItemRepository:        &fakeItemRepository{store: store},
		Publisher:             publisher,
		PaymentInitiator:      initiator,
		CloudTask:             cloudTask,
		JSONWebToken:          testJSONWebToken(t),
	})

	return &fixture{
		store:     store,
		publisher: publisher,
		initiator: initiator,
		cloudTask: cloudTask,
		orderRepo: orderRepo,
		useCase:   useCase,
	}
}

func (f *fixture) seedEvent(id string) {
	f.store.events[id] = event.Event{ID: id, Name: "Summer Fest", Status: event.StatusPublished}
}

func (f *fixture) seedStock(id, eventID string, price int64, allocation int64) {
	now := time.Now()
	f.store.stocks[id] = &ticket.TicketStock{
		ID:           id,
		EventID:      eventID,
		Tier:         "GA",
		Price:        decimal.NewFromInt(price),
		Allocation:   allocation,
		SaleStartsAt: now.Add(-time.Hour),
		SaleEndsAt:   now.Add(time.Hour),
	}
}

func customerCtx(id int64) context.Context {
	return session.ContextWithAccount(context.Background(), session.Account{
		ID:    id,
		Name:  "Linh Tran",
		Email: "linh@example.com",
		Role:  session.RoleCustomer,
	})
}

func TestPlaceOrderReservesInventoryAndInitiatesPayment(t *testing.T) {
	f := newFixture(t, true)
	f.seedEvent("EV1")
	f.seedStock("TS1", "EV1", 500000, 100)
	f.seedStock("TS2", "EV1", 900000, 50)

	resp, err := f.useCase.PlaceOrder(customerCtx(7), PlaceOrderRequest{
		EventID:         "EV1",
		PaymentProvider: "vnpay",
		Items: []ItemRequest{
			{TicketStockID: "TS2", Quantity: 1},
			{TicketStockID: "TS1", Quantity: 2},
			{TicketStockID: "TS1", Quantity: 1},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, resp.Status)
	assert.Equal(t, "https://checkout.example/session", resp.PaymentRedirect)
	// duplicate TS1 lines are merged into one
	assert.Len(t, resp.Items, 2)
	assert.True(t, resp.TotalAmount.Equal(decimal.NewFromInt(2400000)))
	assert.True(t, resp.Subtotal.Equal(resp.TotalAmount))

	assert.Equal(t, int64(3), f.store.stocks["TS1"].Reserved)
	assert.Equal(t, int64(1), f.store.stocks["TS2"].Reserved)

	tickets, _ := (&fakeTicketRepository{store: f.store}).FindManyByOrderID(context.Background(), resp.ID, nil)
	require.Len(t, tickets, 4)
	for _, tk := range tickets {
		assert.Equal(t, ticket.StatusReserved, tk.Status)
		assert.NotEmpty(t, tk.CheckInPayload)
	}

	assert.Equal(t, 1, f.initiator.calls)
	assert.Len(t, f.cloudTask.requests, 1)
}

func TestPlaceOrderRollsBackOnPartialFailure(t *testing.T) {
	f := newFixture(t, true)
	f.seedEvent("EV1")
	f.seedStock("TS1", "EV1", 500000, 100)
	f.seedStock("TS2", "EV1", 900000, 1)

	_, err := f.useCase.PlaceOrder(customerCtx(7), PlaceOrderRequest{
		EventID:         "EV1",
		PaymentProvider: "momo",
		Items: []ItemRequest{
			{TicketStockID: "TS1", Quantity: 2},
			{TicketStockID: "TS2", Quantity: 2},
		},
	})
	require.Error(t, err)

	ae := errors.Destruct(err)
	assert.Equal(t, http.StatusConflict, ae.HTTPStatusCode)
	assert.Equal(t, status.INSUFFICIENT_INVENTORY, ae.Status)

	// the hold on TS1 must not survive the failed order
	assert.Equal(t, int64(0), f.store.stocks["TS1"].Reserved)
	assert.Equal(t, int64(0), f.store.stocks["TS2"].Reserved)
	assert.Empty(t, f.store.orders)
	assert.Equal(t, 0, f.initiator.calls)
}

func TestPlaceOrderCancelsWhenPaymentInitiationFails(t *testing.T) {
	f := newFixture(t, true)
	f.seedEvent("EV1")
	f.seedStock("TS1", "EV1", 500000, 100)
	f.initiator.err = errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "provider unreachable")

	_, err := f.useCase.PlaceOrder(customerCtx(7), PlaceOrderRequest{
		EventID:         "EV1",
		PaymentProvider: "stripe",
		Items:           []ItemRequest{{TicketStockID: "TS1", Quantity: 2}},
	})
	require.Error(t, err)

	assert.Equal(t, int64(0), f.store.stocks["TS1"].Reserved)

	require.Len(t, f.store.orders, 1)
	for _, o := range f.store.orders {
		assert.Equal(t, StatusCancelled, o.Status)
	}
	assert.Equal(t, 1, f.publisher.published(TopicOrderCancelled))
	assert.Empty(t, f.cloudTask.requests)
}

func TestPlaceOrderNoOversellUnderConcurrency(t *testing.T) {
	f := newFixture(t, false)
	f.seedEvent("EV1")
	f.seedStock("TS1", "EV1", 500000, 10)

	const attempts = 20

	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := f.useCase.PlaceOrder(customerCtx(int64(n)), PlaceOrderRequest{
				EventID:         "EV1",
				PaymentProvider: "vnpay",
				Items:           []ItemRequest{{TicketStockID: "TS1", Quantity: 2}},
			})
			results <- err
		}(i)
	}

	wg.Wait()
	close(results)

	var succeeded, rejected int
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		require.Equal(t, status.INSUFFICIENT_INVENTORY, errors.Destruct(err).Status)
		rejected++
	}

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 15, rejected)
	assert.Equal(t, int64(10), f.store.stocks["TS1"].Reserved)
}

func TestCancelReleasesHoldExactlyOnce(t *testing.T) {
	f := newFixture(t, true)
	f.seedEvent("EV1")
	f.seedStock("TS1", "EV1", 500000, 100)

	ctx := customerCtx(7)
	resp, err := f.useCase.PlaceOrder(ctx, PlaceOrderRequest{
		EventID:         "EV1",
		PaymentProvider: "vnpay",
		Items:           []ItemRequest{{TicketStockID: "TS1", Quantity: 3}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(3), f.store.stocks["TS1"].Reserved)

	require.NoError(t, f.useCase.Cancel(ctx, resp.ID))

	assert.Equal(t, int64(0), f.store.stocks["TS1"].Reserved)
	assert.Equal(t, StatusCancelled, f.store.orders[resp.ID].Status)

	tickets, _ := (&fakeTicketRepository{store: f.store}).FindManyByOrderID(ctx, resp.ID, nil)
	for _, tk := range tickets {
		assert.Equal(t, ticket.StatusCancelled, tk.Status)
	}
	assert.Equal(t, 1, f.publisher.published(TopicOrderCancelled))

	err = f.useCase.Cancel(ctx, resp.ID)
	require.Error(t, err)
	assert.Equal(t, status.INVALID_STATE_TRANSITION, errors.Destruct(err).Status)
	assert.Equal(t, int64(0), f.store.stocks["TS1"].Reserved)
}

func TestCancelRejectsForeignOrder(t *testing.T) {
	f := newFixture(t, true)
	f.seedEvent("EV1")
	f.seedStock("TS1", "EV1", 500000, 100)

	resp, err := f.useCase.PlaceOrder(customerCtx(7), PlaceOrderRequest{
		EventID:         "EV1",
		PaymentProvider: "vnpay",
		Items:           []ItemRequest{{TicketStockID: "TS1", Quantity: 1}},
	})
	require.NoError(t, err)

	err = f.useCase.Cancel(customerCtx(8), resp.ID)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, errors.Destruct(err).HTTPStatusCode)
	assert.Equal(t, int64(1), f.store.stocks["TS1"].Reserved)
}

func TestExpireOrderIsSingleShot(t *testing.T) {
	f := newFixture(t, true)
	f.seedEvent("EV1")
	f.seedStock("TS1", "EV1", 500000, 100)

	ctx := customerCtx(7)
	resp, err := f.useCase.PlaceOrder(ctx, PlaceOrderRequest{
		EventID:         "EV1",
		PaymentProvider: "vnpay",
		Items:           []ItemRequest{{TicketStockID: "TS1", Quantity: 2}},
	})
	require.NoError(t, err)

	f.store.orders[resp.ID].ExpiresAt = time.Now().Add(-time.Minute)

	expired, err := f.useCase.ExpireOrder(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.True(t, expired)
	assert.Equal(t, int64(0), f.store.stocks["TS1"].Reserved)
	assert.Equal(t, StatusExpired, f.store.orders[resp.ID].Status)

	expired, err = f.useCase.ExpireOrder(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.False(t, expired)
	assert.Equal(t, int64(0), f.store.stocks["TS1"].Reserved)
	assert.Equal(t, 1, f.publisher.published(TopicOrderExpired))
}

func TestExpireOrderLeavesLiveHoldUntouched(t *testing.T) {
	f := newFixture(t, true)
	f.seedEvent("EV1")
	f.seedStock("TS1", "EV1", 500000, 100)

	ctx := customerCtx(7)
	resp, err := f.useCase.PlaceOrder(ctx, PlaceOrderRequest{
		EventID:         "EV1",
		PaymentProvider: "vnpay",
		Items:           []ItemRequest{{TicketStockID: "TS1", Quantity: 2}},
	})
	require.NoError(t, err)

	// An expire trigger that fires before the hold deadline must not
	// release anything.
	expired, err := f.useCase.ExpireOrder(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.False(t, expired)
	assert.Equal(t, StatusPending, f.store.orders[resp.ID].Status)
	assert.Equal(t, int64(2), f.store.stocks["TS1"].Reserved)
	assert.Equal(t, 0, f.publisher.published(TopicOrderExpired))

	f.store.orders[resp.ID].ExpiresAt = time.Now().Add(-time.Second)

	expired, err = f.useCase.ExpireOrder(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.True(t, expired)
	assert.Equal(t, int64(0), f.store.stocks["TS1"].Reserved)
}

func TestExpireOrderSkipsCompletedOrder(t *testing.T) {
	f := newFixture(t, true)

	now := time.Now()
	f.store.orders["TB1"] = &Order{
		ID:        "TB1",
		Status:    StatusCompleted,
		ExpiresAt: now.Add(-time.Minute),
	}

	expired, err := f.useCase.ExpireOrder(context.Background(), "TB1")
	require.NoError(t, err)
	assert.False(t, expired)
	assert.Equal(t, StatusCompleted, f.store.orders["TB1"].Status)
}

func TestPlaceOrderRejectsUnpublishedEvent(t *testing.T) {
	f := newFixture(t, true)
	f.store.events["EV1"] = event.Event{ID: "EV1", Name: "Draft Fest", Status: event.StatusDraft}
	f.seedStock("TS1", "EV1", 500000, 100)

	_, err := f.useCase.PlaceOrder(customerCtx(7), PlaceOrderRequest{
		EventID:         "EV1",
		PaymentProvider: "vnpay",
		Items:           []ItemRequest{{TicketStockID: "TS1", Quantity: 1}},
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, errors.Destruct(err).HTTPStatusCode)
	assert.Equal(t, int64(0), f.store.stocks["TS1"].Reserved)
}

func TestPlaceOrderRejectsStockOutsideSaleWindow(t *testing.T) {
	f := newFixture(t, true)
	f.seedEvent("EV1")
	f.seedStock("TS1", "EV1", 500000, 100)
	f.store.stocks["TS1"].SaleEndsAt = time.Now().Add(-time.Minute)

	_, err := f.useCase.PlaceOrder(customerCtx(7), PlaceOrderRequest{
		EventID:         "EV1",
		PaymentProvider: "vnpay",
		Items:           []ItemRequest{{TicketStockID: "TS1", Quantity: 1}},
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, errors.Destruct(err).HTTPStatusCode)
}
