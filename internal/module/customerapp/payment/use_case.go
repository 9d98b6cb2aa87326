package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tixgo/tix-booking/internal/module/customerapp/order"
	"github.com/tixgo/tix-booking/internal/module/customerapp/ticket"
	"github.com/tixgo/tix-booking/internal/pkg/util"
	"github.com/tixgo/tix-booking/pkg/errors"
	"github.com/tixgo/tix-booking/pkg/monitoring"
	"github.com/tixgo/tix-booking/pkg/pubsub"
	"github.com/tixgo/tix-booking/pkg/status"
)

type PaymentUseCase interface {
	// InitiatePayment satisfies order.PaymentInitiator.
	InitiatePayment(ctx context.Context, o order.Order) (order.PaymentSession, error)

	// OnProviderCallback applies one normalized provider notification.
	// Duplicate deliveries are detected through the (provider, txn id)
	// key and resolved as no-ops.
	OnProviderCallback(ctx context.Context, providerName string, n Notification) error

	Refund(ctx context.Context, orderID string) error
}

type paymentUseCase struct {
	logger                *logrus.Logger
	timeout               time.Duration
	registry              *Registry
	paymentRepository     PaymentRepository
	orderRepository       order.OrderRepository
	itemRepository        order.ItemRepository
	ticketRepository      ticket.TicketRepository
	ticketStockRepository ticket.TicketStockRepository
	publisher             pubsub.Publisher
}

type PaymentUseCaseProperty struct {
	Logger                *logrus.Logger
	Timeout               time.Duration
	Registry              *Registry
	PaymentRepository     PaymentRepository
	OrderRepository       order.OrderRepository
	ItemRepository        order.ItemRepository
	TicketRepository      ticket.TicketRepository
	TicketStockRepository ticket.TicketStockRepository
	Publisher             pubsub.Publisher
}

func NewPaymentUseCase(props PaymentUseCaseProperty) PaymentUseCase {
	return &paymentUseCase{
		logger:                props.Logger,
		timeout:               props.Timeout,
		registry:              props.Registry,
		paymentRepository:     props.PaymentRepository,
		orderRepository:       props.OrderRepository,
		itemRepository:        props.ItemRepository,
		ticketRepository:      props.TicketRepository,
		ticketStockRepository: props.TicketStockRepository,
		publisher:             props.Publisher,
	}
}

// InitiatePayment implements PaymentUseCase.
func (u *paymentUseCase) InitiatePayment(ctx context.Context, o order.Order) (order.PaymentSession, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	provider, err := u.registry.Get(o.PaymentProvider)
	if err != nil {
		return order.PaymentSession{}, err
	}

	sess, err := provider.CreateSession(ctx, CheckoutRequest{
		OrderID:       o.ID,
		Amount:        o.TotalAmount,
		OrderInfo:     fmt.Sprintf("ticket order %s", o.ID),
		CustomerEmail: o.CustomerEmail,
	})
	if err != nil {
		return order.PaymentSession{}, err
	}

	now := time.Now()
	p := Payment{
		ID:            util.GenerateTimestampWithPrefix("PM"),
		OrderID:       o.ID,
		Provider:      provider.Name(),
		ProviderTxnID: sess.ProviderTxnID,
		Amount:        o.TotalAmount,
		Status:        StatusInitiated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := u.paymentRepository.Save(ctx, p, nil); err != nil {
		return order.PaymentSession{}, err
	}

	return order.PaymentSession{
		PaymentID:   p.ID,
		Provider:    p.Provider,
		RedirectURL: sess.RedirectURL,
	}, nil
}

// OnProviderCallback implements PaymentUseCase.
func (u *paymentUseCase) OnProviderCallback(ctx context.Context, providerName string, n Notification) error {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	monitoring.IncPaymentCallback(providerName, n.Outcome)

	if n.ProviderTxnID != "" {
		existing, err := u.paymentRepository.FindByProviderTxnID(ctx, providerName, n.ProviderTxnID, nil)
		if err == nil && existing.IsSettled() {
			u.logger.WithContext(ctx).
				WithField("status", status.ALREADY_PROCESSED).
				Infof("callback for provider '%s' transaction '%s' has already been processed", providerName, n.ProviderTxnID)
			return nil
		}
		if err != nil && errors.Destruct(err).HTTPStatusCode != http.StatusNotFound {
			return err
		}
	}

	o, err := u.orderRepository.FindByID(ctx, n.OrderID, nil)
	if err != nil {
		return err
	}

	p, err := u.paymentRepository.FindByOrderIDAndStatus(ctx, o.ID, StatusInitiated, nil)
	found := err == nil
	if err != nil {
		if errors.Destruct(err).HTTPStatusCode != http.StatusNotFound {
			return err
		}
		now := time.Now()
		p = Payment{
			ID:        util.GenerateTimestampWithPrefix("PM"),
			OrderID:   o.ID,
			Provider:  providerName,
			Amount:    n.Amount,
			Status:    StatusInitiated,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	p.ProviderTxnID = n.ProviderTxnID
	p.RawPayload = n.RawPayload
	p.UpdatedAt = time.Now()

	if n.Outcome == OutcomeFailure {
		p.Status = StatusFailed
		return u.persist(ctx, p, found, nil)
	}

	if !n.Amount.Equal(o.TotalAmount) {
		p.Status = StatusPending
		if err := u.persist(ctx, p, found, nil); err != nil {
			return err
		}

		buff, _ := json.Marshal(p)
		u.publisher.Publish(ctx, TopicPaymentReview, o.ID, nil, buff)
		u.logger.WithContext(ctx).Errorf("payment amount '%s' does not match order '%s' total '%s'", n.Amount, o.ID, o.TotalAmount)

		return errors.New(http.StatusUnprocessableEntity, status.AMOUNT_MISMATCH, fmt.Sprintf("payment amount does not match order '%s' total", o.ID))
	}

	if o.Status == order.StatusCompleted {
		u.logger.WithContext(ctx).Infof("order '%s' has already been completed", o.ID)
		return nil
	}

	tx, err := u.orderRepository.BeginTx(ctx)
	if err != nil {
		return err
	}

	affected, err := u.orderRepository.UpdateStatus(ctx, o.ID, order.StatusPending, order.StatusCompleted, tx)
	if err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return err
	}

	// Zero rows means the order was settled between the read above and
	// this compare-and-set. A success that arrives after expiry is still
	// recorded and routed to manual review; the hold is not resurrected.
	if affected == 0 {
		u.orderRepository.Rollback(ctx, tx)

		p.Status = StatusCompleted
		if err := u.persist(ctx, p, found, nil); err != nil {
			return err
		}

		buff, _ := json.Marshal(p)
		u.publisher.Publish(ctx, TopicPaymentReview, o.ID, nil, buff)
		u.logger.WithContext(ctx).Warnf("payment success for order '%s' arrived after the order left PENDING", o.ID)

		return nil
	}

	if err := ticket.EnsureTransition(ticket.StatusReserved, ticket.StatusPaid); err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return err
	}

	if _, err := u.ticketRepository.UpdateStatusByOrderID(ctx, o.ID, ticket.StatusReserved, ticket.StatusPaid, tx); err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return err
	}

	items, err := u.itemRepository.FindManyByOrderID(ctx, o.ID, tx)
	if err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return err
	}

	for _, item := range items {
		if err := u.ticketStockRepository.CommitSale(ctx, o.ID, item.TicketStockID, item.Quantity, tx); err != nil {
			u.orderRepository.Rollback(ctx, tx)
			return err
		}
	}

	p.Status = StatusCompleted
	if err := u.persist(ctx, p, found, tx); err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return err
	}

	if err := u.orderRepository.CommitTx(ctx, tx); err != nil {
		return err
	}

	buff, _ := json.Marshal(order.OrderLifecycleEvent{OrderID: o.ID, Status: order.StatusCompleted})
	u.publisher.Publish(ctx, order.TopicOrderPaid, o.ID, nil, buff)

	return nil
}

func (u *paymentUseCase) persist(ctx context.Context, p Payment, found bool, tx *sql.Tx) error {
	if found {
		return u.paymentRepository.Update(ctx, p, tx)
	}

	return u.paymentRepository.Save(ctx, p, tx)
}

// Refund implements PaymentUseCase.
func (u *paymentUseCase) Refund(ctx context.Context, orderID string) error {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	o, err := u.orderRepository.FindByID(ctx, orderID, nil)
	if err != nil {
		return err
	}

	if o.Status != order.StatusCompleted {
		return errors.New(http.StatusConflict, status.INVALID_STATE_TRANSITION, fmt.Sprintf("order with status '%s' cannot be refunded", o.Status))
	}

	p, err := u.paymentRepository.FindByOrderIDAndStatus(ctx, o.ID, StatusCompleted, nil)
	if err != nil {
		return err
	}

	tickets, err := u.ticketRepository.FindManyByOrderID(ctx, o.ID, nil)
	if err != nil {
		return err
	}

	for _, t := range tickets {
		if t.Status == ticket.StatusCheckedIn {
			return errors.New(http.StatusConflict, status.INVALID_STATE_TRANSITION, fmt.Sprintf("ticket '%s' has been checked in and cannot be refunded", t.ID))
		}
	}

	if err := ticket.EnsureTransition(ticket.StatusPaid, ticket.StatusCancelled); err != nil {
		return err
	}

	tx, err := u.orderRepository.BeginTx(ctx)
	if err != nil {
		return err
	}

	if _, err := u.ticketRepository.UpdateStatusByOrderID(ctx, o.ID, ticket.StatusPaid, ticket.StatusCancelled, tx); err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return err
	}

	// Sold counts are deliberately left untouched; returning refunded
	// seats to sale is an explicit organizer action.
	p.Status = StatusRefunded
	p.UpdatedAt = time.Now()
	if err := u.paymentRepository.Update(ctx, p, tx); err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return err
	}

	if err := u.orderRepository.CommitTx(ctx, tx); err != nil {
		return err
	}

	buff, _ := json.Marshal(p)
	u.publisher.Publish(ctx, TopicPaymentRefunded, o.ID, nil, buff)

	return nil
}
