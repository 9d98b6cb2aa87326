package order

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tixgo/tix-booking/internal/module/customerapp/event"
	"github.com/tixgo/tix-booking/internal/module/customerapp/ticket"
	"github.com/tixgo/tix-booking/internal/pkg/jwt"
	"github.com/tixgo/tix-booking/internal/pkg/session"
	"github.com/tixgo/tix-booking/internal/pkg/util"
	"github.com/tixgo/tix-booking/pkg/errors"
	"github.com/tixgo/tix-booking/pkg/gctasks"
	"github.com/tixgo/tix-booking/pkg/monitoring"
	"github.com/tixgo/tix-booking/pkg/pubsub"
	"github.com/tixgo/tix-booking/pkg/status"
)

const expireOrderQueue = "expire-order"

// PaymentInitiator opens a provider checkout session for a freshly placed
// order. The payment module implements it; declaring the contract here keeps
// the dependency pointing from payment to order.
type PaymentInitiator interface {
	InitiatePayment(ctx context.Context, o Order) (PaymentSession, error)
}

type OrderUseCase interface {
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (PlaceOrderResponse, error)
	GetOrder(ctx context.Context, ID string) (GetOrderResponse, error)
	GetManyOrder(ctx context.Context, req GetManyOrderRequest) (GetManyOrderResponse, PaginationMeta, error)
	Cancel(ctx context.Context, ID string) error

	// ExpireOrder reclaims the inventory held by a PENDING order whose
	// deadline passed. It reports false when the order was no longer
	// PENDING, which is not an error.
	ExpireOrder(ctx context.Context, ID string) (bool, error)
	OnExpireOrder(ctx context.Context, e ExpireOrderEvent) error
}

type orderUseCase struct {
	logger                *logrus.Logger
	timeout               time.Duration
	baseURL               string
	holdDuration          time.Duration
	eventRepository       event.EventRepository
	ticketStockRepository ticket.TicketStockRepository
	ticketRepository      ticket.TicketRepository
	orderRepository       OrderRepository
	itemRepository        ItemRepository
	publisher             pubsub.Publisher
	paymentInitiator      PaymentInitiator
	cloudTask             gctasks.Client
	jsonWebToken          *jwt.JSONWebToken
}

type OrderUseCaseProperty struct {
	Logger                *logrus.Logger
	Timeout               time.Duration
	BaseURL               string
	HoldDuration          time.Duration
	EventRepository       event.EventRepository
	TicketStockRepository ticket.TicketStockRepository
	TicketRepository      ticket.TicketRepository
	OrderRepository       OrderRepository
	ItemRepository        ItemRepository
	Publisher             pubsub.Publisher
	PaymentInitiator      PaymentInitiator
	CloudTask             gctasks.Client
	JSONWebToken          *jwt.JSONWebToken
}

func NewOrderUseCase(props OrderUseCaseProperty) OrderUseCase {
	return &orderUseCase{
		logger:                props.Logger,
		timeout:               props.Timeout,
		baseURL:               props.BaseURL,
		holdDuration:          props.HoldDuration,
		eventRepository:       props.EventRepository,
		ticketStockRepository: props.TicketStockRepository,
		ticketRepository:      props.TicketRepository,
		orderRepository:       props.OrderRepository,
		itemRepository:        props.ItemRepository,
		publisher:             props.Publisher,
		paymentInitiator:      props.PaymentInitiator,
		cloudTask:             props.CloudTask,
		jsonWebToken:          props.JSONWebToken,
	}
}

// mergeItems collapses duplicate ticket stock ids into one line and returns
// the lines sorted by ticket stock id ascending. Reserving in a fixed order
// keeps concurrent orders from deadlocking each other.
func mergeItems(items []ItemRequest) []ItemRequest {
	merged := make(map[string]int64, len(items))
	for _, it := range items {
		merged[it.TicketStockID] += it.Quantity
	}

	out := make([]ItemRequest, 0, len(merged))
	for id, qty := range merged {
		out = append(out, ItemRequest{TicketStockID: id, Quantity: qty})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].TicketStockID < out[j].TicketStockID
	})

	return out
}

// PlaceOrder implements OrderUseCase.
func (u *orderUseCase) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (PlaceOrderResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	acc, err := session.GetAccountFromCtx(ctx)
	if err != nil {
		return PlaceOrderResponse{}, err
	}

	lines := mergeItems(req.Items)

	tx, err := u.orderRepository.BeginTx(ctx)
	if err != nil {
		return PlaceOrderResponse{}, err
	}

	e, err := u.eventRepository.FindByID(ctx, req.EventID, tx)
	if err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return PlaceOrderResponse{}, err
	}

	if e.Status != event.StatusPublished {
		u.orderRepository.Rollback(ctx, tx)
		return PlaceOrderResponse{}, errors.New(http.StatusUnprocessableEntity, status.UNPROCESSABLE_ENTITY, fmt.Sprintf("event with id '%s' is not open for sale", e.ID))
	}

	now := time.Now()
	o := Order{
		ID:              util.GenerateTimestampWithPrefix("TB"),
		Status:          StatusPending,
		CustomerID:      acc.ID,
		CustomerName:    acc.Name,
		CustomerEmail:   acc.Email,
		PaymentProvider: req.PaymentProvider,
		ExpiresAt:       now.Add(u.holdDuration),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	subtotal := decimal.Zero
	items := make([]Item, 0, len(lines))
	tickets := make([]ticket.Ticket, 0, len(lines))

	for _, line := range lines {
		ts, err := u.ticketStockRepository.FindByID(ctx, line.TicketStockID, tx)
		if err != nil {
			u.orderRepository.Rollback(ctx, tx)
			return PlaceOrderResponse{}, err
		}

		if ts.EventID != e.ID {
			u.orderRepository.Rollback(ctx, tx)
			return PlaceOrderResponse{}, errors.New(http.StatusBadRequest, status.BAD_REQUEST, fmt.Sprintf("ticket stock with id '%s' does not belong to event '%s'", ts.ID, e.ID))
		}

		if !ts.OnSaleAt(now) {
			u.orderRepository.Rollback(ctx, tx)
			return PlaceOrderResponse{}, errors.New(http.StatusUnprocessableEntity, status.UNPROCESSABLE_ENTITY, fmt.Sprintf("ticket stock with id '%s' is outside its sale window", ts.ID))
		}

		if err := u.ticketStockRepository.TryReserve(ctx, ts.ID, line.Quantity, tx); err != nil {
			u.orderRepository.Rollback(ctx, tx)
			monitoring.IncReservationAttempt("rejected")
			return PlaceOrderResponse{}, err
		}

		subtotal = subtotal.Add(ts.Price.Mul(decimal.NewFromInt(line.Quantity)))

		items = append(items, Item{
			OrderID:       o.ID,
			TicketStockID: ts.ID,
			EventID:       e.ID,
			EventName:     e.Name,
			Tier:          ts.Tier,
			Price:         ts.Price,
			Quantity:      line.Quantity,
		})

		for i := int64(0); i < line.Quantity; i++ {
			t, err := u.buildTicket(o.ID, ts, now)
			if err != nil {
				u.orderRepository.Rollback(ctx, tx)
				return PlaceOrderResponse{}, err
			}
			tickets = append(tickets, t)
		}
	}

	o.Items = items
	o.Subtotal = subtotal
	o.TotalAmount = subtotal

	if err := u.orderRepository.Save(ctx, o, tx); err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return PlaceOrderResponse{}, err
	}

	for _, item := range o.Items {
		if err := u.itemRepository.Save(ctx, item, tx); err != nil {
			u.orderRepository.Rollback(ctx, tx)
			return PlaceOrderResponse{}, err
		}
	}

	if err := u.ticketRepository.SaveMany(ctx, tickets, tx); err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return PlaceOrderResponse{}, err
	}

	if err := u.orderRepository.CommitTx(ctx, tx); err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return PlaceOrderResponse{}, err
	}

	monitoring.IncReservationAttempt("accepted")

	// The provider call happens after the commit so no row locks are held
	// across the network round trip. A failed initiation releases the hold
	// through the regular cancellation path.
	ps, err := u.paymentInitiator.InitiatePayment(ctx, o)
	if err != nil {
		if _, rErr := u.release(ctx, o.ID, StatusCancelled, ticket.StatusCancelled, TopicOrderCancelled); rErr != nil {
			u.logger.WithContext(ctx).WithError(rErr).Errorf("failed to release order '%s' after payment initiation failure", o.ID)
		}
		return PlaceOrderResponse{}, err
	}

	eventBuff, _ := json.Marshal(ExpireOrderEvent{OrderID: o.ID})
	tasksRequest := gctasks.Request{
		URL:    fmt.Sprintf("%s/v1/customerapp/orders/on-expire", u.baseURL),
		Method: cloudtaskspb.HttpMethod_POST,
		Body:   eventBuff,
	}
	if err := u.cloudTask.DeferCreateTaskInTime(expireOrderQueue, tasksRequest, o.ExpiresAt); err != nil {
		// The sweeper picks up the order at its deadline anyway.
		u.logger.WithContext(ctx).WithError(err).Errorf("failed to schedule expire callback for order '%s'", o.ID)
	}

	resp := PlaceOrderResponse{}
	resp.PopulateFromEntity(o)
	resp.PaymentID = ps.PaymentID
	resp.PaymentRedirect = ps.RedirectURL

	return resp, nil
}

func (u *orderUseCase) buildTicket(orderID string, ts ticket.TicketStock, now time.Time) (ticket.Ticket, error) {
	t := ticket.Ticket{
		ID:            uuid.NewString(),
		OrderID:       orderID,
		TicketStockID: ts.ID,
		EventID:       ts.EventID,
		Tier:          ts.Tier,
		Status:        ticket.StatusReserved,
		IssuedAt:      now,
		UpdatedAt:     now,
	}

	payload, err := u.jsonWebToken.Sign(ticket.CheckInClaims{
		TicketID: t.ID,
		OrderID:  orderID,
		EventID:  ts.EventID,
		Tier:     ts.Tier,
		RegisteredClaims: gojwt.RegisteredClaims{
			IssuedAt: gojwt.NewNumericDate(now),
		},
	})
	if err != nil {
		return ticket.Ticket{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while issuing ticket")
	}

	t.CheckInPayload = payload

	return t, nil
}

// release moves a PENDING order and its RESERVED tickets to the given
// terminal statuses and returns the held quantities to stock. It reports
// false when the status compare-and-set lost, meaning another actor already
// settled the order.
func (u *orderUseCase) release(ctx context.Context, ID string, orderStatus, ticketStatus, topic string) (bool, error) {
	if err := ticket.EnsureTransition(ticket.StatusReserved, ticketStatus); err != nil {
		return false, err
	}

	tx, err := u.orderRepository.BeginTx(ctx)
	if err != nil {
		return false, err
	}

	var affected int64
	if orderStatus == StatusExpired {
		// The expire trigger is unauthenticated, so the deadline is
		// re-checked inside the compare-and-set.
		affected, err = u.orderRepository.UpdateStatusExpired(ctx, ID, orderStatus, time.Now(), tx)
	} else {
		affected, err = u.orderRepository.UpdateStatus(ctx, ID, StatusPending, orderStatus, tx)
	}
	if err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return false, err
	}

	if affected == 0 {
		u.orderRepository.Rollback(ctx, tx)
		return false, nil
	}

	if _, err := u.ticketRepository.UpdateStatusByOrderID(ctx, ID, ticket.StatusReserved, ticketStatus, tx); err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return false, err
	}

	items, err := u.itemRepository.FindManyByOrderID(ctx, ID, tx)
	if err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return false, err
	}

	for _, item := range items {
		if err := u.ticketStockRepository.Release(ctx, ID, item.TicketStockID, item.Quantity, tx); err != nil {
			u.orderRepository.Rollback(ctx, tx)
			return false, err
		}
	}

	if err := u.orderRepository.CommitTx(ctx, tx); err != nil {
		return false, err
	}

	buff, _ := json.Marshal(OrderLifecycleEvent{OrderID: ID, Status: orderStatus})
	u.publisher.Publish(ctx, topic, ID, nil, buff)

	return true, nil
}

// Cancel implements OrderUseCase.
func (u *orderUseCase) Cancel(ctx context.Context, ID string) error {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	acc, err := session.GetAccountFromCtx(ctx)
	if err != nil {
		return err
	}

	o, err := u.orderRepository.FindByID(ctx, ID, nil)
	if err != nil {
		return err
	}

	if o.CustomerID != acc.ID {
		return errors.New(http.StatusForbidden, status.FORBIDDEN, "order does not belong to the requesting customer")
	}

	if o.Status != StatusPending {
		return errors.New(http.StatusConflict, status.INVALID_STATE_TRANSITION, fmt.Sprintf("order with status '%s' cannot be cancelled", o.Status))
	}

	ok, err := u.release(ctx, o.ID, StatusCancelled, ticket.StatusCancelled, TopicOrderCancelled)
	if err != nil {
		return err
	}

	if !ok {
		return errors.New(http.StatusConflict, status.INVALID_STATE_TRANSITION, "order has already been settled")
	}

	return nil
}

// ExpireOrder implements OrderUseCase.
func (u *orderUseCase) ExpireOrder(ctx context.Context, ID string) (bool, error) {
	return u.release(ctx, ID, StatusExpired, ticket.StatusExpired, TopicOrderExpired)
}

// OnExpireOrder implements OrderUseCase.
func (u *orderUseCase) OnExpireOrder(ctx context.Context, e ExpireOrderEvent) error {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	expired, err := u.ExpireOrder(ctx, e.OrderID)
	if err != nil {
		return err
	}

	if expired {
		monitoring.AddExpiredOrdersReclaimed(1)
		u.logger.WithContext(ctx).Infof("order '%s' expired and its hold was reclaimed", e.OrderID)
	}

	return nil
}

// GetOrder implements OrderUseCase.
func (u *orderUseCase) GetOrder(ctx context.Context, ID string) (GetOrderResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	acc, err := session.GetAccountFromCtx(ctx)
	if err != nil {
		return GetOrderResponse{}, err
	}

	o, err := u.orderRepository.FindByID(ctx, ID, nil)
	if err != nil {
		return GetOrderResponse{}, err
	}

	if o.CustomerID != acc.ID {
		return GetOrderResponse{}, errors.New(http.StatusForbidden, status.FORBIDDEN, "order does not belong to the requesting customer")
	}

	items, err := u.itemRepository.FindManyByOrderID(ctx, ID, nil)
	if err != nil {
		return GetOrderResponse{}, err
	}
	o.Items = items

	resp := GetOrderResponse{}
	resp.PopulateFromEntity(o)

	return resp, nil
}

// GetManyOrder implements OrderUseCase.
func (u *orderUseCase) GetManyOrder(ctx context.Context, req GetManyOrderRequest) (GetManyOrderResponse, PaginationMeta, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	acc, err := session.GetAccountFromCtx(ctx)
	if err != nil {
		return nil, PaginationMeta{}, err
	}

	total, err := u.orderRepository.Count(ctx, acc.ID, nil)
	if err != nil {
		return nil, PaginationMeta{}, err
	}

	offset := (req.Page - 1) * req.Size
	orders, err := u.orderRepository.FindMany(ctx, acc.ID, offset, req.Size, nil)
	if err != nil {
		return nil, PaginationMeta{}, err
	}

	resp := make(GetManyOrderResponse, len(orders))
	for k, o := range orders {
		items, err := u.itemRepository.FindManyByOrderID(ctx, o.ID, nil)
		if err != nil {
			return nil, PaginationMeta{}, err
		}
		o.Items = items

		r := PlaceOrderResponse{}
		r.PopulateFromEntity(o)
		resp[k] = r
	}

	meta := PaginationMeta{
		Page:      req.Page,
		Size:      req.Size,
		TotalData: total,
	}

	return resp, meta, nil
}
