package order

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	customerorder "github.com/tixgo/tix-booking/internal/module/customerapp/order"
	"github.com/tixgo/tix-booking/internal/module/customerapp/payment"
)

type OrderUseCase interface {
	// ProcessExpired runs one sweep over overdue PENDING orders and
	// reports how many were reclaimed. It is safe to trigger while the
	// scheduled sweeper is also running.
	ProcessExpired(ctx context.Context) (ProcessExpiredResponse, error)
	Refund(ctx context.Context, orderID string) error
}

type orderUseCase struct {
	logger         *logrus.Logger
	timeout        time.Duration
	sweeper        *customerorder.Sweeper
	paymentUseCase payment.PaymentUseCase
}

type OrderUseCaseProperty struct {
	Logger         *logrus.Logger
	Timeout        time.Duration
	Sweeper        *customerorder.Sweeper
	PaymentUseCase payment.PaymentUseCase
}

func NewOrderUseCase(props OrderUseCaseProperty) OrderUseCase {
	return &orderUseCase{
		logger:         props.Logger,
		timeout:        props.Timeout,
		sweeper:        props.Sweeper,
		paymentUseCase: props.PaymentUseCase,
	}
}

// ProcessExpired implements OrderUseCase.
func (u *orderUseCase) ProcessExpired(ctx context.Context) (ProcessExpiredResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	reclaimed, err := u.sweeper.Sweep(ctx)
	if err != nil {
		return ProcessExpiredResponse{}, err
	}

	return ProcessExpiredResponse{Expired: reclaimed}, nil
}

// Refund implements OrderUseCase.
func (u *orderUseCase) Refund(ctx context.Context, orderID string) error {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	return u.paymentUseCase.Refund(ctx, orderID)
}
