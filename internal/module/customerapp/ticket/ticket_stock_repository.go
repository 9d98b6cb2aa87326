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

type TicketStockRepository interface {
	FindByID(ctx context.Context, ID string, tx *sql.Tx) (TicketStock, error)
	FindManyByEventID(ctx context.Context, eventID string, tx *sql.Tx) ([]TicketStock, error)

	// TryReserve moves quantity into the reserved count as one conditional
	// update; it fails with INSUFFICIENT_INVENTORY when sold + reserved +
	// quantity would exceed the allocation.
	TryReserve(ctx context.Context, ID string, quantity int64, tx *sql.Tx) error

	// Release and CommitSale are idempotent per (order, ticket stock): the
	// counter update only applies when the stock_adjustment guard row for
	// that pair has not been written before.
	Release(ctx context.Context, orderID string, ID string, quantity int64, tx *sql.Tx) error
	CommitSale(ctx context.Context, orderID string, ID string, quantity int64, tx *sql.Tx) error
}

type sqlCommand interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

type ticketStockRepository struct {
	logger *logrus.Logger
	db     *sql.DB
}

func NewTicketStockRepository(logger *logrus.Logger, db *sql.DB) TicketStockRepository {
	return &ticketStockRepository{
		logger: logger,
		db:     db,
	}
}

// FindByID implements TicketStockRepository.
func (r *ticketStockRepository) FindByID(ctx context.Context, ID string, tx *sql.Tx) (TicketStock, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		SELECT
			id, event_id, tier, price, allocation, sold, reserved, sale_starts_at, sale_ends_at, last_stock_update
		FROM ticket_stock
		WHERE
			id = $1
		LIMIT 1
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return TicketStock{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting ticket stock's properties")
	}
	defer stmt.Close()

	row := stmt.QueryRowContext(ctx, ID)

	var data TicketStock
	err = row.Scan(
		&data.ID, &data.EventID, &data.Tier, &data.Price, &data.Allocation, &data.Sold, &data.Reserved,
		&data.SaleStartsAt, &data.SaleEndsAt, &data.LastStockUpdate,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return TicketStock{}, errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("ticket stock with id '%s' is not found", ID))
		}
		r.logger.WithContext(ctx).WithError(err).Error()
		return TicketStock{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting ticket stock's properties")
	}

	return data, nil
}

// FindManyByEventID implements TicketStockRepository.
func (r *ticketStockRepository) FindManyByEventID(ctx context.Context, eventID string, tx *sql.Tx) ([]TicketStock, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		SELECT
			id, event_id, tier, price, allocation, sold, reserved, sale_starts_at, sale_ends_at, last_stock_update
		FROM ticket_stock
		WHERE
			event_id = $1
		ORDER BY id ASC
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of ticket stock's properties")
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, eventID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of ticket stock's properties")
	}

	defer rows.Close()

	var data = make([]TicketStock, 0)
	for rows.Next() {
		var ts TicketStock
		if err := rows.Scan(
			&ts.ID, &ts.EventID, &ts.Tier, &ts.Price, &ts.Allocation, &ts.Sold, &ts.Reserved,
			&ts.SaleStartsAt, &ts.SaleEndsAt, &ts.LastStockUpdate,
		); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error()
			return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of ticket stock's properties")
		}

		data = append(data, ts)
	}

	return data, nil
}

// TryReserve implements TicketStockRepository. The availability check and the
// increment are a single statement so no interleaving of concurrent requests
// can observe the same availability and both succeed past capacity.
func (r *ticketStockRepository) TryReserve(ctx context.Context, ID string, quantity int64, tx *sql.Tx) error {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		UPDATE ticket_stock
		SET
			reserved = reserved + $1,
			last_stock_update = $2
		WHERE
			id = $3
		AND
			sold + reserved + $1 <= allocation
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while reserving ticket stock")
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx, quantity, time.Now(), ID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while reserving ticket stock")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while reserving ticket stock")
	}

	if affected == 0 {
		return errors.New(http.StatusConflict, status.INSUFFICIENT_INVENTORY, fmt.Sprintf("insufficient inventory for ticket stock '%s'", ID))
	}

	return nil
}

// Release implements TicketStockRepository.
func (r *ticketStockRepository) Release(ctx context.Context, orderID string, ID string, quantity int64, tx *sql.Tx) error {
	return r.adjust(ctx, orderID, ID, quantity, AdjustmentRelease, tx)
}

// CommitSale implements TicketStockRepository.
func (r *ticketStockRepository) CommitSale(ctx context.Context, orderID string, ID string, quantity int64, tx *sql.Tx) error {
	return r.adjust(ctx, orderID, ID, quantity, AdjustmentCommitSale, tx)
}

// adjust writes the per-order guard row first; when the row already exists
// the adjustment has been applied before and the counters are left alone, so
// duplicated sweeps and duplicated webhook deliveries can never double
// release or double commit.
func (r *ticketStockRepository) adjust(ctx context.Context, orderID string, ID string, quantity int64, adjustmentType string, tx *sql.Tx) error {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	guardQuery := `
		INSERT INTO stock_adjustment
		(
			order_id, ticket_stock_id, adjustment_type, quantity, created_at
		)
		VALUES
		(
			$1, $2, $3, $4, $5
		)
		ON CONFLICT (order_id, ticket_stock_id, adjustment_type) DO NOTHING
	`

	guardStmt, err := cmd.PrepareContext(ctx, guardQuery)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while adjusting ticket stock")
	}
	defer guardStmt.Close()

	result, err := guardStmt.ExecContext(ctx, orderID, ID, adjustmentType, quantity, time.Now())
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while adjusting ticket stock")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while adjusting ticket stock")
	}

	if affected == 0 {
		// Already applied for this order.
		return nil
	}

	var updateQuery string
	switch adjustmentType {
	case AdjustmentRelease:
		updateQuery = `
			UPDATE ticket_stock
			SET
				reserved = reserved - $1,
				last_stock_update = $2
			WHERE
				id = $3
		`
	case AdjustmentCommitSale:
		updateQuery = `
			UPDATE ticket_stock
			SET
				reserved = reserved - $1,
				sold = sold + $1,
				last_stock_update = $2
			WHERE
				id = $3
		`
	default:
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, fmt.Sprintf("unknown stock adjustment type '%s'", adjustmentType))
	}

	updateStmt, err := cmd.PrepareContext(ctx, updateQuery)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while adjusting ticket stock")
	}
	defer updateStmt.Close()

	if _, err := updateStmt.ExecContext(ctx, quantity, time.Now(), ID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while adjusting ticket stock")
	}

	return nil
}
