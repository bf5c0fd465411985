package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"repairmarket/internal/models"
	"repairmarket/internal/service"
)

const bidColumns = `
	id,
	repair_request_id,
	technician_id,
	amount,
	estimate_value,
	estimate_unit,
	description,
	parts_included,
	warranty,
	COALESCE(message, ''),
	status,
	valid_until,
	COALESCE(reject_reason, ''),
	accepted_at,
	rejected_at,
	created_at,
	updated_at
`

func scanBid(row interface{ Scan(...interface{}) error }) (models.Bid, error) {
	var bid models.Bid
	var parts, warranty []byte
	var acceptedAt, rejectedAt sql.NullTime

	err := row.Scan(&bid.Id, &bid.RepairRequestId, &bid.TechnicianId, &bid.Amount,
		&bid.EstimatedTime.Value, &bid.EstimatedTime.Unit, &bid.Description,
		&parts, &warranty, &bid.Message, &bid.Status, &bid.ValidUntil,
		&bid.RejectReason, &acceptedAt, &rejectedAt, &bid.CreatedAt, &bid.UpdatedAt)
	if err != nil {
		return bid, err
	}

	if len(parts) > 0 {
		if err = json.Unmarshal(parts, &bid.PartsIncluded); err != nil {
			return bid, fmt.Errorf("invalid parts payload: %w", err)
		}
	}
	if len(warranty) > 0 {
		bid.Warranty = &models.Warranty{}
		if err = json.Unmarshal(warranty, bid.Warranty); err != nil {
			return bid, fmt.Errorf("invalid warranty payload: %w", err)
		}
	}
	if acceptedAt.Valid {
		bid.AcceptedAt = &acceptedAt.Time
	}
	if rejectedAt.Valid {
		bid.RejectedAt = &rejectedAt.Time
	}

	return bid, nil
}

// AddBid inserts a pending bid and, in the same transaction, moves the
// parent request from open to bidding. The parent row is locked first,
// so a bid racing a concurrent accept observes the assigned state and
// fails with ErrRequestClosed instead of landing pending on a closed
// request. A second bid by the same technician on the same request
// trips the unique constraint and maps to ErrDuplicateBid.
func (repo *Repository) AddBid(ctx context.Context, bid models.Bid) (models.Bid, error) {
	parts, err := json.Marshal(bid.PartsIncluded)
	if err != nil {
		return bid, fmt.Errorf("repository.Repository.AddBid: %w", err)
	}
	var warranty interface{}
	if bid.Warranty != nil {
		warranty, err = json.Marshal(bid.Warranty)
		if err != nil {
			return bid, fmt.Errorf("repository.Repository.AddBid: %w", err)
		}
	}
	var message interface{}
	if len(bid.Message) > 0 {
		message = bid.Message
	}

	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return bid, fmt.Errorf("repository.Repository.AddBid: %w", transient(err))
	}

	var reqStatus models.RequestStatus
	err = tx.QueryRowContext(ctx,
		"SELECT status FROM repair_requests WHERE id = $1 FOR UPDATE",
		bid.RepairRequestId).Scan(&reqStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return bid, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.AddBid: %w", models.ErrNoRequest))
	} else if err != nil {
		return bid, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.AddBid: %w", transient(err)))
	}
	if !reqStatus.AcceptsBids() {
		return bid, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.AddBid: %w", models.ErrRequestClosed))
	}

	query := `
	INSERT INTO bids
		(repair_request_id, technician_id, amount, estimate_value, estimate_unit,
		description, parts_included, warranty, message, status, valid_until)
	VALUES
		($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending', $10)
	RETURNING id, status, valid_until, created_at, updated_at
	`

	row := tx.QueryRowContext(ctx, query, bid.RepairRequestId, bid.TechnicianId, bid.Amount,
		bid.EstimatedTime.Value, bid.EstimatedTime.Unit, bid.Description,
		parts, warranty, message, bid.ValidUntil)
	err = row.Scan(&bid.Id, &bid.Status, &bid.ValidUntil, &bid.CreatedAt, &bid.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			err = models.ErrDuplicateBid
		} else {
			err = transient(err)
		}
		return bid, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.AddBid: %w", err))
	}

	// First bid on an open request starts the bidding phase. Zero rows
	// here just means the request is already past open.
	_, err = tx.ExecContext(ctx,
		"UPDATE repair_requests SET (status, updated_at) = ('bidding', CURRENT_TIMESTAMP) WHERE id = $1 AND status = 'open'",
		bid.RepairRequestId)
	if err != nil {
		return bid, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.AddBid: %w", transient(err)))
	}

	if err = tx.Commit(); err != nil {
		return bid, fmt.Errorf("repository.Repository.AddBid: %w", transient(err))
	}

	return bid, nil
}

func (repo *Repository) BidByID(ctx context.Context, id string) (models.Bid, bool, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE id = $1 LIMIT 1`

	bid, err := scanBid(repo.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return bid, false, nil
	} else if err != nil {
		return bid, false, fmt.Errorf("repository.Repository.BidByID: %w", transient(err))
	}

	return bid, true, nil
}

func (repo *Repository) HasBid(ctx context.Context, requestId, technicianId string) (bool, error) {
	var exists bool
	err := repo.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM bids WHERE repair_request_id = $1 AND technician_id = $2)",
		requestId, technicianId).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("repository.Repository.HasBid: %w", transient(err))
	}
	return exists, nil
}

func (repo *Repository) prepBidsQuery(f service.BidFilter) (query string, queryParams []interface{}) {
	sortBy := "created_at"
	if f.SortBy == "amount" {
		sortBy = "amount"
	}
	order := "ASC"
	if strings.EqualFold(f.Order, "desc") {
		order = "DESC"
	}

	query = `
	SELECT ` + bidColumns + `
	FROM bids
	$conditions$
	ORDER BY ` + sortBy + ` ` + order + `
	LIMIT $1
	OFFSET $2
	`

	queryParams = make([]interface{}, 0, 5)
	conditions := make([]string, 0, 3)

	if f.Limit <= 0 {
		queryParams = append(queryParams, nil)
	} else {
		queryParams = append(queryParams, f.Limit)
	}
	queryParams = append(queryParams, f.Offset)

	if len(f.RepairRequestId) > 0 {
		conditions = append(conditions, "repair_request_id = $$")
		queryParams = append(queryParams, f.RepairRequestId)
	}
	if len(f.TechnicianId) > 0 {
		conditions = append(conditions, "technician_id = $$")
		queryParams = append(queryParams, f.TechnicianId)
	}
	if len(f.Status) > 0 {
		conditions = append(conditions, "status = $$")
		queryParams = append(queryParams, string(f.Status))
	}

	condStr := ""
	if len(conditions) > 0 {
		for i := 0; i < len(conditions); i++ {
			conditions[i] = strings.Replace(conditions[i], "$$", "$"+strconv.Itoa(i+3), -1)
		}
		condStr = "WHERE " + strings.Join(conditions, " AND ")
	}
	query = strings.Replace(query, "$conditions$", condStr, -1)

	return query, queryParams
}

func (repo *Repository) Bids(ctx context.Context, f service.BidFilter) ([]models.Bid, error) {
	query, queryParams := repo.prepBidsQuery(f)

	rows, err := repo.db.QueryContext(ctx, query, queryParams...)
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.Bids: %w", transient(err))
	}
	defer rows.Close()

	var result []models.Bid
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("repository.Repository.Bids: row scan failed: %w", err)
		}
		result = append(result, bid)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("repository.Repository.Bids: %w", rows.Err())
	}

	return result, nil
}

// AcceptBid performs the single-winner handoff in one transaction:
// lock the bid, bind the request to its technician while it still
// accepts bids, mark the bid accepted while it is still pending and
// mass-reject its pending siblings. Any guard failing rolls the whole
// thing back with ErrBidProcessed, so concurrent accepts on the same
// request resolve to exactly one winner.
func (repo *Repository) AcceptBid(ctx context.Context, bidId string) (models.Bid, []models.Bid, error) {
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Bid{}, nil, fmt.Errorf("repository.Repository.AcceptBid: %w", transient(err))
	}

	var requestId, technicianId string
	err = tx.QueryRowContext(ctx,
		"SELECT repair_request_id, technician_id FROM bids WHERE id = $1 FOR UPDATE",
		bidId).Scan(&requestId, &technicianId)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Bid{}, nil, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.AcceptBid: %w", models.ErrNoBid))
	} else if err != nil {
		return models.Bid{}, nil, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.AcceptBid: %w", transient(err)))
	}

	res, err := tx.ExecContext(ctx, `
	UPDATE repair_requests
	SET (status, accepted_bid, assigned_technician, updated_at) =
		('assigned', $2, $3, CURRENT_TIMESTAMP)
	WHERE id = $1 AND status IN ('open', 'bidding')
	`, requestId, bidId, technicianId)
	if err != nil {
		return models.Bid{}, nil, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.AcceptBid: %w", transient(err)))
	}
	if n, err := res.RowsAffected(); err != nil {
		return models.Bid{}, nil, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.AcceptBid: %w", err))
	} else if n == 0 {
		return models.Bid{}, nil, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.AcceptBid: %w", models.ErrBidProcessed))
	}

	query := `
	UPDATE bids
	SET (status, accepted_at, updated_at) = ('accepted', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	WHERE id = $1 AND status = 'pending'
	RETURNING ` + bidColumns

	accepted, err := scanBid(tx.QueryRowContext(ctx, query, bidId))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Bid{}, nil, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.AcceptBid: %w", models.ErrBidProcessed))
	} else if err != nil {
		return models.Bid{}, nil, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.AcceptBid: %w", transient(err)))
	}

	query = `
	UPDATE bids
	SET (status, rejected_at, updated_at) = ('rejected', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	WHERE repair_request_id = $1 AND id <> $2 AND status = 'pending'
	RETURNING ` + bidColumns

	rows, err := tx.QueryContext(ctx, query, requestId, bidId)
	if err != nil {
		return models.Bid{}, nil, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.AcceptBid: %w", transient(err)))
	}
	defer rows.Close()

	var rejected []models.Bid
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return models.Bid{}, nil, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.AcceptBid: row scan failed: %w", err))
		}
		rejected = append(rejected, bid)
	}
	if rows.Err() != nil {
		return models.Bid{}, nil, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.AcceptBid: %w", rows.Err()))
	}
	rows.Close()

	if err = tx.Commit(); err != nil {
		return models.Bid{}, nil, fmt.Errorf("repository.Repository.AcceptBid: %w", transient(err))
	}

	return accepted, rejected, nil
}

func (repo *Repository) MarkBidRejected(ctx context.Context, bidId, reason string) (models.Bid, error) {
	query := `
	UPDATE bids
	SET (status, reject_reason, rejected_at, updated_at) =
		('rejected', $2, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	WHERE id = $1 AND status = 'pending'
	RETURNING ` + bidColumns

	var reasonArg interface{}
	if len(reason) > 0 {
		reasonArg = reason
	}

	bid, err := scanBid(repo.db.QueryRowContext(ctx, query, bidId, reasonArg))
	if errors.Is(err, sql.ErrNoRows) {
		return bid, fmt.Errorf("repository.Repository.MarkBidRejected: %w", models.ErrBidProcessed)
	} else if err != nil {
		return bid, fmt.Errorf("repository.Repository.MarkBidRejected: %w", transient(err))
	}

	return bid, nil
}

func (repo *Repository) MarkBidWithdrawn(ctx context.Context, bidId string) (models.Bid, error) {
	query := `
	UPDATE bids
	SET (status, updated_at) = ('withdrawn', CURRENT_TIMESTAMP)
	WHERE id = $1 AND status = 'pending'
	RETURNING ` + bidColumns

	bid, err := scanBid(repo.db.QueryRowContext(ctx, query, bidId))
	if errors.Is(err, sql.ErrNoRows) {
		return bid, fmt.Errorf("repository.Repository.MarkBidWithdrawn: %w", models.ErrBidProcessed)
	} else if err != nil {
		return bid, fmt.Errorf("repository.Repository.MarkBidWithdrawn: %w", transient(err))
	}

	return bid, nil
}
