package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"repairmarket/internal/models"
)

// CompleteRequest finalizes a repair in one transaction: mark the
// request completed while it is still assigned or in progress, record
// the payment and advance the request to paid. The unique index on
// transactions.repair_request_id makes the payment insert idempotent,
// so a repeated completion reports created = false and changes
// nothing.
func (repo *Repository) CompleteRequest(ctx context.Context, requestId string, tr models.Transaction) (models.RepairRequest, bool, error) {
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return models.RepairRequest{}, false, fmt.Errorf("repository.Repository.CompleteRequest: %w", transient(err))
	}

	query := `
	SELECT ` + requestColumns + `
	FROM repair_requests
	WHERE id = $1
	FOR UPDATE
	`

	req, err := scanRequest(tx.QueryRowContext(ctx, query, requestId))
	if errors.Is(err, sql.ErrNoRows) {
		return req, false, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.CompleteRequest: %w", models.ErrNoRequest))
	} else if err != nil {
		return req, false, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.CompleteRequest: %w", transient(err)))
	}

	if req.Status != models.RequestPaid {
		query = `
		UPDATE repair_requests
		SET (status, completed_at, updated_at) = ('completed', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		WHERE id = $1 AND status IN ('assigned', 'in_progress')
		RETURNING ` + requestColumns

		req, err = scanRequest(tx.QueryRowContext(ctx, query, requestId))
		if errors.Is(err, sql.ErrNoRows) {
			return req, false, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.CompleteRequest: %w", models.ErrBadTransition))
		} else if err != nil {
			return req, false, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.CompleteRequest: %w", transient(err)))
		}
	}

	res, err := tx.ExecContext(ctx, `
	INSERT INTO transactions
		(repair_request_id, customer_id, technician_id, amount, currency,
		type, status, payment_method, reference, completed_at)
	VALUES
		($1, $2, $3, $4, $5, $6, $7, $8, $9, CURRENT_TIMESTAMP)
	ON CONFLICT (repair_request_id) DO NOTHING
	`, requestId, tr.CustomerId, tr.TechnicianId, tr.Amount, tr.Currency,
		tr.Type, tr.Status, tr.PaymentMethod, uuid.NewString())
	if err != nil {
		return req, false, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.CompleteRequest: %w", transient(err)))
	}
	created, err := res.RowsAffected()
	if err != nil {
		return req, false, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.CompleteRequest: %w", err))
	}

	query = `
	UPDATE repair_requests
	SET (status, updated_at) = ('paid', CURRENT_TIMESTAMP)
	WHERE id = $1 AND status = 'completed'
	RETURNING ` + requestColumns

	updated, err := scanRequest(tx.QueryRowContext(ctx, query, requestId))
	if err == nil {
		req = updated
	} else if !errors.Is(err, sql.ErrNoRows) {
		return req, false, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.CompleteRequest: %w", transient(err)))
	}

	if err = tx.Commit(); err != nil {
		return req, false, fmt.Errorf("repository.Repository.CompleteRequest: %w", transient(err))
	}

	return req, created > 0, nil
}

func (repo *Repository) TransactionByRequest(ctx context.Context, requestId string) (models.Transaction, bool, error) {
	query := `
	SELECT id, repair_request_id, customer_id, technician_id, amount, currency,
		type, status, payment_method, reference, completed_at, created_at, updated_at
	FROM transactions
	WHERE repair_request_id = $1
	LIMIT 1
	`

	var tr models.Transaction
	var completedAt sql.NullTime
	err := repo.db.QueryRowContext(ctx, query, requestId).Scan(
		&tr.Id, &tr.RepairRequestId, &tr.CustomerId, &tr.TechnicianId, &tr.Amount, &tr.Currency,
		&tr.Type, &tr.Status, &tr.PaymentMethod, &tr.Reference, &completedAt, &tr.CreatedAt, &tr.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return tr, false, nil
	} else if err != nil {
		return tr, false, fmt.Errorf("repository.Repository.TransactionByRequest: %w", transient(err))
	}
	if completedAt.Valid {
		tr.CompletedAt = &completedAt.Time
	}

	return tr, true, nil
}
