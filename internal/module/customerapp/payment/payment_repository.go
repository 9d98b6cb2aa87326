package payment

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/tixgo/tix-booking/pkg/errors"
	"github.com/tixgo/tix-booking/pkg/status"
)

type PaymentRepository interface {
	Save(ctx context.Context, p Payment, tx *sql.Tx) error
	Update(ctx context.Context, p Payment, tx *sql.Tx) error
	FindByProviderTxnID(ctx context.Context, provider, providerTxnID string, tx *sql.Tx) (Payment, error)
	FindByOrderIDAndStatus(ctx context.Context, orderID, paymentStatus string, tx *sql.Tx) (Payment, error)
}

type sqlCommand interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

type paymentRepository struct {
	logger *logrus.Logger
	db     *sql.DB
}

func NewPaymentRepository(logger *logrus.Logger, db *sql.DB) PaymentRepository {
	return &paymentRepository{
		logger: logger,
		db:     db,
	}
}

// Save implements PaymentRepository.
func (r *paymentRepository) Save(ctx context.Context, p Payment, tx *sql.Tx) error {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		INSERT INTO payment
		(
			id, order_id, provider, provider_txn_id, amount, status, raw_payload, created_at, updated_at
		)
		VALUES
		(
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while saving payment's properties")
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx,
		p.ID, p.OrderID, p.Provider, p.ProviderTxnID, p.Amount, p.Status, p.RawPayload, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while saving payment's properties")
	}

	return nil
}

// Update implements PaymentRepository.
func (r *paymentRepository) Update(ctx context.Context, p Payment, tx *sql.Tx) error {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		UPDATE payment
		SET
			provider_txn_id = $1,
			status = $2,
			raw_payload = $3,
			updated_at = $4
		WHERE
			id = $5
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while updating payment's properties")
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, p.ProviderTxnID, p.Status, p.RawPayload, p.UpdatedAt, p.ID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while updating payment's properties")
	}

	return nil
}

// FindByProviderTxnID implements PaymentRepository.
func (r *paymentRepository) FindByProviderTxnID(ctx context.Context, provider, providerTxnID string, tx *sql.Tx) (Payment, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		SELECT
			id, order_id, provider, provider_txn_id, amount, status, raw_payload, created_at, updated_at
		FROM payment
		WHERE
			provider = $1
		AND
			provider_txn_id = $2
		LIMIT 1
	`

	return r.findOne(ctx, cmd, query, fmt.Sprintf("payment for provider '%s' with transaction id '%s' is not found", provider, providerTxnID), provider, providerTxnID)
}

// FindByOrderIDAndStatus implements PaymentRepository.
func (r *paymentRepository) FindByOrderIDAndStatus(ctx context.Context, orderID, paymentStatus string, tx *sql.Tx) (Payment, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		SELECT
			id, order_id, provider, provider_txn_id, amount, status, raw_payload, created_at, updated_at
		FROM payment
		WHERE
			order_id = $1
		AND
			status = $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	return r.findOne(ctx, cmd, query, fmt.Sprintf("payment for order '%s' with status '%s' is not found", orderID, paymentStatus), orderID, paymentStatus)
}

func (r *paymentRepository) findOne(ctx context.Context, cmd sqlCommand, query, notFoundMessage string, args ...interface{}) (Payment, error) {
	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return Payment{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting payment's properties")
	}
	defer stmt.Close()

	row := stmt.QueryRowContext(ctx, args...)

	var data Payment
	err = row.Scan(
		&data.ID, &data.OrderID, &data.Provider, &data.ProviderTxnID, &data.Amount, &data.Status, &data.RawPayload, &data.CreatedAt, &data.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return Payment{}, errors.New(http.StatusNotFound, status.NOT_FOUND, notFoundMessage)
		}
		r.logger.WithContext(ctx).WithError(err).Error()
		return Payment{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting payment's properties")
	}

	return data, nil
}
