package ticket

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	customerticket "github.com/tixgo/tix-booking/internal/module/customerapp/ticket"
	"github.com/tixgo/tix-booking/internal/pkg/jwt"
	"github.com/tixgo/tix-booking/pkg/errors"
	"github.com/tixgo/tix-booking/pkg/status"
)

type TicketUseCase interface {
	// CheckIn verifies a scanned check-in payload against the given
	// ticket and moves it PAID to CHECKED_IN exactly once.
	CheckIn(ctx context.Context, ticketID string, req CheckInRequest) (CheckInResponse, error)
}

type ticketUseCase struct {
	logger           *logrus.Logger
	timeout          time.Duration
	ticketRepository customerticket.TicketRepository
	jsonWebToken     *jwt.JSONWebToken
}

type TicketUseCaseProperty struct {
	Logger           *logrus.Logger
	Timeout          time.Duration
	TicketRepository customerticket.TicketRepository
	JSONWebToken     *jwt.JSONWebToken
}

func NewTicketUseCase(props TicketUseCaseProperty) TicketUseCase {
	return &ticketUseCase{
		logger:           props.Logger,
		timeout:          props.Timeout,
		ticketRepository: props.TicketRepository,
		jsonWebToken:     props.JSONWebToken,
	}
}

// CheckIn implements TicketUseCase.
func (u *ticketUseCase) CheckIn(ctx context.Context, ticketID string, req CheckInRequest) (CheckInResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	claims := customerticket.CheckInClaims{}
	if err := u.jsonWebToken.Parse(req.Payload, &claims); err != nil {
		u.logger.WithContext(ctx).WithError(err).Errorf("check-in payload for ticket '%s' failed verification", ticketID)
		return CheckInResponse{}, errors.New(http.StatusUnauthorized, status.INVALID_SIGNATURE, "check-in payload verification failed")
	}

	if claims.TicketID != ticketID {
		return CheckInResponse{}, errors.New(http.StatusUnauthorized, status.INVALID_SIGNATURE, "check-in payload does not match the ticket")
	}

	t, err := u.ticketRepository.FindByID(ctx, ticketID, nil)
	if err != nil {
		return CheckInResponse{}, err
	}

	if t.OrderID != claims.OrderID || t.EventID != claims.EventID {
		return CheckInResponse{}, errors.New(http.StatusUnauthorized, status.INVALID_SIGNATURE, "check-in payload does not match the ticket")
	}

	if err := customerticket.EnsureTransition(t.Status, customerticket.StatusCheckedIn); err != nil {
		return CheckInResponse{}, err
	}

	affected, err := u.ticketRepository.UpdateStatus(ctx, t.ID, customerticket.StatusPaid, customerticket.StatusCheckedIn, nil)
	if err != nil {
		return CheckInResponse{}, err
	}

	if affected == 0 {
		return CheckInResponse{}, errors.New(http.StatusConflict, status.INVALID_STATE_TRANSITION, "ticket has already been checked in")
	}

	return CheckInResponse{
		TicketID: t.ID,
		OrderID:  t.OrderID,
		EventID:  t.EventID,
		Tier:     t.Tier,
		Status:   customerticket.StatusCheckedIn,
	}, nil
}
