package order

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

type OrderRepository interface {
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(ctx context.Context, tx *sql.Tx) error
	Rollback(ctx context.Context, tx *sql.Tx) error

	Save(ctx context.Context, o Order, tx *sql.Tx) error
	FindByID(ctx context.Context, ID string, tx *sql.Tx) (Order, error)
	FindMany(ctx context.Context, customerID int64, offset, limit int64, tx *sql.Tx) ([]Order, error)
	Count(ctx context.Context, customerID int64, tx *sql.Tx) (int64, error)

	// UpdateStatus is a compare-and-set on the order's status; it reports
	// how many rows changed so callers can tell whether they won the race.
	UpdateStatus(ctx context.Context, ID string, fromStatus, toStatus string, tx *sql.Tx) (int64, error)

	// UpdateStatusExpired is the expiry-path compare-and-set: the order
	// must still be PENDING and its hold deadline must already be behind
	// now. An early or forged expire trigger changes nothing.
	UpdateStatusExpired(ctx context.Context, ID string, toStatus string, now time.Time, tx *sql.Tx) (int64, error)

	// FindExpiredIDs returns ids of PENDING orders whose hold deadline has
	// passed, bounded to limit rows per call.
	FindExpiredIDs(ctx context.Context, before time.Time, limit int64) ([]string, error)
}

type sqlCommand interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

type orderRepository struct {
	logger *logrus.Logger
	db     *sql.DB
}

func NewOrderRepository(logger *logrus.Logger, db *sql.DB) OrderRepository {
	return &orderRepository{
		logger: logger,
		db:     db,
	}
}

// BeginTx implements OrderRepository.
func (r *orderRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred trying to begin transaction")
	}

	return tx, nil
}

// CommitTx implements OrderRepository.
func (r *orderRepository) CommitTx(ctx context.Context, tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred trying to commit transaction")
	}

	return nil
}

// Rollback implements OrderRepository.
func (r *orderRepository) Rollback(ctx context.Context, tx *sql.Tx) error {
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred trying to rollback transaction")
	}

	return nil
}

// Save implements OrderRepository.
func (r *orderRepository) Save(ctx context.Context, o Order, tx *sql.Tx) error {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		INSERT INTO ticket_order
		(
			id, status, customer_id, customer_name, customer_email,
			payment_provider, subtotal, total_amount, expires_at, created_at, updated_at
		)
		VALUES
		(
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while saving order's properties")
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx,
		o.ID, o.Status, o.CustomerID, o.CustomerName, o.CustomerEmail,
		o.PaymentProvider, o.Subtotal, o.TotalAmount, o.ExpiresAt, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while saving order's properties")
	}

	return nil
}

// FindByID implements OrderRepository.
func (r *orderRepository) FindByID(ctx context.Context, ID string, tx *sql.Tx) (Order, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		SELECT
			id, status, customer_id, customer_name, customer_email,
			payment_provider, subtotal, total_amount, expires_at, created_at, updated_at
		FROM ticket_order
		WHERE
			id = $1
		LIMIT 1
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return Order{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting order's properties")
	}
	defer stmt.Close()

	row := stmt.QueryRowContext(ctx, ID)

	var data Order
	err = row.Scan(
		&data.ID, &data.Status, &data.CustomerID, &data.CustomerName, &data.CustomerEmail,
		&data.PaymentProvider, &data.Subtotal, &data.TotalAmount, &data.ExpiresAt, &data.CreatedAt, &data.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return Order{}, errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("order with id '%s' is not found", ID))
		}
		r.logger.WithContext(ctx).WithError(err).Error()
		return Order{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting order's properties")
	}

	return data, nil
}

// FindMany implements OrderRepository.
func (r *orderRepository) FindMany(ctx context.Context, customerID int64, offset, limit int64, tx *sql.Tx) ([]Order, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		SELECT
			id, status, customer_id, customer_name, customer_email,
			payment_provider, subtotal, total_amount, expires_at, created_at, updated_at
		FROM ticket_order
		WHERE
			customer_id = $1
		ORDER BY created_at DESC
		OFFSET $2
		LIMIT $3
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of order's properties")
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, customerID, offset, limit)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of order's properties")
	}

	defer rows.Close()

	var data = make([]Order, 0)
	for rows.Next() {
		var o Order
		if err := rows.Scan(
			&o.ID, &o.Status, &o.CustomerID, &o.CustomerName, &o.CustomerEmail,
			&o.PaymentProvider, &o.Subtotal, &o.TotalAmount, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error()
			return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of order's properties")
		}

		data = append(data, o)
	}

	return data, nil
}

// Count implements OrderRepository.
func (r *orderRepository) Count(ctx context.Context, customerID int64, tx *sql.Tx) (int64, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		SELECT count(id)
		FROM ticket_order
		WHERE
			customer_id = $1
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return 0, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while counting order's properties")
	}
	defer stmt.Close()

	var count int64
	if err := stmt.QueryRowContext(ctx, customerID).Scan(&count); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return 0, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while counting order's properties")
	}

	return count, nil
}

// UpdateStatus implements OrderRepository.
func (r *orderRepository) UpdateStatus(ctx context.Context, ID string, fromStatus, toStatus string, tx *sql.Tx) (int64, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		UPDATE ticket_order
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
		return 0, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while updating order's status")
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx, toStatus, time.Now(), ID, fromStatus)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return 0, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while updating order's status")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return 0, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while updating order's status")
	}

	return affected, nil
}

// UpdateStatusExpired implements OrderRepository.
func (r *orderRepository) UpdateStatusExpired(ctx context.Context, ID string, toStatus string, now time.Time, tx *sql.Tx) (int64, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		UPDATE ticket_order
		SET
			status = $1,
			updated_at = $2
		WHERE
			id = $3
		AND
			status = $4
		AND
			expires_at <= $5
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return 0, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while expiring order")
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx, toStatus, now, ID, StatusPending, now)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return 0, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while expiring order")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return 0, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while expiring order")
	}

	return affected, nil
}

// FindExpiredIDs implements OrderRepository.
func (r *orderRepository) FindExpiredIDs(ctx context.Context, before time.Time, limit int64) ([]string, error) {
	query := `
		SELECT id
		FROM ticket_order
		WHERE
			status = $1
		AND
			expires_at < $2
		ORDER BY expires_at ASC
		LIMIT $3
	`

	stmt, err := r.db.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting expired order ids")
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, StatusPending, before, limit)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting expired order ids")
	}

	defer rows.Close()

	var ids = make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error()
			return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting expired order ids")
		}

		ids = append(ids, id)
	}

	return ids, nil
}
