package ticket

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tixgo/tix-booking/pkg/errors"
	"github.com/tixgo/tix-booking/pkg/status"
)

type TicketRepository interface {
	SaveMany(ctx context.Context, tickets []Ticket, tx *sql.Tx) error
	FindByID(ctx context.Context, ID string, tx *sql.Tx) (Ticket, error)
	FindManyByOrderID(ctx context.Context, orderID string, tx *sql.Tx) ([]Ticket, error)

	// UpdateStatusByOrderID and UpdateStatus are compare-and-set updates:
	// only tickets currently in fromStatus are changed, and the number of
	// changed rows is reported back.
	UpdateStatusByOrderID(ctx context.Context, orderID string, fromStatus, toStatus string, tx *sql.Tx) (int64, error)
	UpdateStatus(ctx context.Context, ID string, fromStatus, toStatus string, tx *sql.Tx) (int64, error)
}

type ticketRepository struct {
	logger *logrus.Logger
	db     *sql.DB
}

func NewTicketRepository(logger *logrus.Logger, db *sql.DB) TicketRepository {
	return &ticketRepository{
		logger: logger,
		db:     db,
	}
}

// SaveMany implements TicketRepository.
func (r *ticketRepository) SaveMany(ctx context.Context, tickets []Ticket, tx *sql.Tx) error {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		INSERT INTO ticket
		(
			id, order_id, ticket_stock_id, event_id, tier, status, check_in_payload, issued_at, updated_at
		)
		VALUES
		(
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while saving ticket's properties")
	}
	defer stmt.Close()

	for _, t := range tickets {
		if _, err := stmt.ExecContext(ctx, t.ID, t.OrderID, t.TicketStockID, t.EventID, t.Tier, t.Status, t.CheckInPayload, t.IssuedAt, t.UpdatedAt); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error()
			return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while saving ticket's properties")
		}
	}

	return nil
}

// FindByID implements TicketRepository.
func (r *ticketRepository) FindByID(ctx context.Context, ID string, tx *sql.Tx) (Ticket, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		SELECT
			id, order_id, ticket_stock_id, event_id, tier, status, check_in_payload, issued_at, updated_at
		FROM ticket
		WHERE
			id = $1
		LIMIT 1
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return Ticket{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting ticket's properties")
	}
	defer stmt.Close()

	row := stmt.QueryRowContext(ctx, ID)

	var data Ticket
	err = row.Scan(&data.ID, &data.OrderID, &data.TicketStockID, &data.EventID, &data.Tier, &data.Status, &data.CheckInPayload, &data.IssuedAt, &data.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Ticket{}, errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("ticket with id '%s' is not found", ID))
		}
		r.logger.WithContext(ctx).WithError(err).Error()
		return Ticket{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting ticket's properties")
	}

	return data, nil
}

// FindManyByOrderID implements TicketRepository.
func (r *ticketRepository) FindManyByOrderID(ctx context.Context, orderID string, tx *sql.Tx) ([]Ticket, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		SELECT
			id, order_id, ticket_stock_id, event_id, tier, status, check_in_payload, issued_at, updated_at
		FROM ticket
		WHERE
			order_id = $1
		ORDER BY id ASC
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of ticket's properties")
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, orderID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of ticket's properties")
	}

	defer rows.Close()

	var data = make([]Ticket, 0)
	for rows.Next() {
		var t Ticket
		if err := rows.Scan(&t.ID, &t.OrderID, &t.TicketStockID, &t.EventID, &t.Tier, &t.Status, &t.CheckInPayload, &t.IssuedAt, &t.UpdatedAt); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error()
			return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of ticket's properties")
		}

		data = append(data, t)
	}

	return data, nil
}

// UpdateStatusByOrderID implements TicketRepository.
func (r *ticketRepository) UpdateStatusByOrderID(ctx context.Context, orderID string, fromStatus, toStatus string, tx *sql.Tx) (int64, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		UPDATE ticket
		SET
			status = $1,
			updated_at = $2
		WHERE
			order_id = $3
		AND
			status = $4
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return 0, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while updating ticket's status")
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx, toStatus, time.Now(), orderID, fromStatus)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return 0, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while updating ticket's status")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return 0, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while updating ticket's status")
	}

	return affected, nil
}

// UpdateStatus implements TicketRepository.
func (r *ticketRepository) UpdateStatus(ctx context.Context, ID string, fromStatus, toStatus string, tx *sql.Tx) (int64, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		UPDATE ticket
		SET
			status = $1,
			updated_at = $2
		WHERE
			id = $3
		AND
			status = $4
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return 0, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while updating ticket's status")
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx, toStatus, time.Now(), ID, fromStatus)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return 0, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while updating ticket's status")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return 0, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while updating ticket's status")
	}

	return affected, nil
}
