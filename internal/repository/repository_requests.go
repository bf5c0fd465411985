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

const requestColumns = `
	id,
	customer_id,
	title,
	description,
	device_brand,
	device_model,
	COALESCE(device_color, ''),
	COALESCE(device_purchase_year, 0),
	issue_type,
	images,
	urgency,
	budget_min,
	budget_max,
	longitude,
	latitude,
	address,
	status,
	accepted_bid,
	assigned_technician,
	completed_at,
	expires_at,
	created_at,
	updated_at
`

func scanRequest(row interface{ Scan(...interface{}) error }) (models.RepairRequest, error) {
	var req models.RepairRequest
	var images []byte
	var budgetMin, budgetMax sql.NullFloat64
	var acceptedBid, assignedTech interface{}
	var completedAt sql.NullTime

	err := row.Scan(&req.Id, &req.CustomerId, &req.Title, &req.Description,
		&req.DeviceInfo.Brand, &req.DeviceInfo.Model, &req.DeviceInfo.Color, &req.DeviceInfo.PurchaseYear,
		&req.IssueType, &images, &req.Urgency, &budgetMin, &budgetMax,
		&req.Location.Longitude, &req.Location.Latitude, &req.Location.Address,
		&req.Status, &acceptedBid, &assignedTech, &completedAt,
		&req.ExpiresAt, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return req, err
	}

	if len(images) > 0 {
		if err = json.Unmarshal(images, &req.Images); err != nil {
			return req, fmt.Errorf("invalid images payload: %w", err)
		}
	}
	if budgetMin.Valid || budgetMax.Valid {
		req.PreferredBudget = &models.Budget{Min: budgetMin.Float64, Max: budgetMax.Float64}
	}
	req.AcceptedBid = readUUID(acceptedBid)
	req.AssignedTechnician = readUUID(assignedTech)
	if completedAt.Valid {
		req.CompletedAt = &completedAt.Time
	}

	return req, nil
}

func (repo *Repository) AddRequest(ctx context.Context, req models.RepairRequest) (models.RepairRequest, error) {
	query := `
	INSERT INTO repair_requests
		(customer_id, title, description, device_brand, device_model, device_color, device_purchase_year,
		issue_type, images, urgency, budget_min, budget_max, longitude, latitude, address, status, expires_at)
	VALUES
		($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 'open', $16)
	RETURNING id, status, expires_at, created_at, updated_at
	`

	images, err := json.Marshal(req.Images)
	if err != nil {
		return req, fmt.Errorf("repository.Repository.AddRequest: %w", err)
	}

	var color, year, budgetMin, budgetMax interface{}
	if len(req.DeviceInfo.Color) > 0 {
		color = req.DeviceInfo.Color
	}
	if req.DeviceInfo.PurchaseYear > 0 {
		year = req.DeviceInfo.PurchaseYear
	}
	if req.PreferredBudget != nil {
		budgetMin = req.PreferredBudget.Min
		budgetMax = req.PreferredBudget.Max
	}

	row := repo.db.QueryRowContext(ctx, query, req.CustomerId, req.Title, req.Description,
		req.DeviceInfo.Brand, req.DeviceInfo.Model, color, year,
		req.IssueType, images, req.Urgency, budgetMin, budgetMax,
		req.Location.Longitude, req.Location.Latitude, req.Location.Address, req.ExpiresAt)
	err = row.Scan(&req.Id, &req.Status, &req.ExpiresAt, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return req, fmt.Errorf("repository.Repository.AddRequest: %w", transient(err))
	}

	return req, nil
}

func (repo *Repository) RequestByID(ctx context.Context, id string) (models.RepairRequest, bool, error) {
	query := `SELECT ` + requestColumns + ` FROM repair_requests WHERE id = $1 LIMIT 1`

	req, err := scanRequest(repo.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return req, false, nil
	} else if err != nil {
		return req, false, fmt.Errorf("repository.Repository.RequestByID: %w", transient(err))
	}

	return req, true, nil
}

func (repo *Repository) prepRequestsQuery(f service.RequestFilter) (query string, queryParams []interface{}) {
	query = `
	SELECT ` + requestColumns + `
	FROM repair_requests
	$conditions$
	ORDER BY created_at DESC
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

	if len(f.CustomerId) > 0 {
		conditions = append(conditions, "customer_id = $$")
		queryParams = append(queryParams, f.CustomerId)
	}
	if len(f.Statuses) > 0 {
		conditions = append(conditions, "status = any($$::text[])")
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		queryParams = append(queryParams, pq.Array(statuses))
	}
	if len(f.IssueType) > 0 {
		conditions = append(conditions, "issue_type = $$")
		queryParams = append(queryParams, string(f.IssueType))
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

func (repo *Repository) Requests(ctx context.Context, f service.RequestFilter) ([]models.RepairRequest, error) {
	query, queryParams := repo.prepRequestsQuery(f)

	rows, err := repo.db.QueryContext(ctx, query, queryParams...)
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.Requests: %w", transient(err))
	}
	defer rows.Close()

	var result []models.RepairRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("repository.Repository.Requests: row scan failed: %w", err)
		}
		result = append(result, req)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("repository.Repository.Requests: %w", rows.Err())
	}

	return result, nil
}

// sphericalDistance is the great-circle distance in meters between a
// request's point and the ($1, $2) lon/lat parameters.
const sphericalDistance = `6371000 * acos(least(1.0,
	cos(radians($2)) * cos(radians(latitude)) * cos(radians(longitude) - radians($1))
	+ sin(radians($2)) * sin(radians(latitude))))`

// RequestsNear lists requests within radiusMeters of the given point,
// nearest first.
func (repo *Repository) RequestsNear(ctx context.Context, lon, lat, radiusMeters float64, f service.RequestFilter) ([]models.RepairRequest, error) {
	query := `
	SELECT ` + requestColumns + `
	FROM repair_requests
	WHERE ` + sphericalDistance + ` <= $3
	$conditions$
	ORDER BY ` + sphericalDistance + ` ASC, created_at DESC
	LIMIT $4
	OFFSET $5
	`

	queryParams := make([]interface{}, 0, 8)
	queryParams = append(queryParams, lon, lat, radiusMeters)
	if f.Limit <= 0 {
		queryParams = append(queryParams, nil)
	} else {
		queryParams = append(queryParams, f.Limit)
	}
	queryParams = append(queryParams, f.Offset)

	conditions := make([]string, 0, 2)
	if len(f.Statuses) > 0 {
		conditions = append(conditions, "status = any($$::text[])")
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		queryParams = append(queryParams, pq.Array(statuses))
	}
	if len(f.IssueType) > 0 {
		conditions = append(conditions, "issue_type = $$")
		queryParams = append(queryParams, string(f.IssueType))
	}

	condStr := ""
	if len(conditions) > 0 {
		for i := 0; i < len(conditions); i++ {
			conditions[i] = strings.Replace(conditions[i], "$$", "$"+strconv.Itoa(i+6), -1)
		}
		condStr = "AND " + strings.Join(conditions, " AND ")
	}
	query = strings.Replace(query, "$conditions$", condStr, -1)

	rows, err := repo.db.QueryContext(ctx, query, queryParams...)
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.RequestsNear: %w", transient(err))
	}
	defer rows.Close()

	var result []models.RepairRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("repository.Repository.RequestsNear: row scan failed: %w", err)
		}
		result = append(result, req)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("repository.Repository.RequestsNear: %w", rows.Err())
	}

	return result, nil
}

// UpdateRequest writes field edits and the status back, guarded on the
// status the caller observed. A transition committed in between
// invalidates the snapshot and fails the write with ErrStaleRequest
// instead of regressing the request.
func (repo *Repository) UpdateRequest(ctx context.Context, req models.RepairRequest, prev models.RequestStatus) error {
	query := `
	UPDATE repair_requests
	SET (title, description, urgency, status, updated_at) =
		($3, $4, $5, $6, CURRENT_TIMESTAMP)
	WHERE id = $1 AND status = $2
	`

	res, err := repo.db.ExecContext(ctx, query, req.Id, prev, req.Title, req.Description, req.Urgency, req.Status)
	if err != nil {
		return fmt.Errorf("repository.Repository.UpdateRequest: %w", transient(err))
	}

	updated, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository.Repository.UpdateRequest: %w", err)
	}
	if updated == 0 {
		return fmt.Errorf("repository.Repository.UpdateRequest: %w", models.ErrStaleRequest)
	}

	return nil
}

func (repo *Repository) DeleteRequest(ctx context.Context, id string) error {
	_, err := repo.db.ExecContext(ctx, "DELETE FROM repair_requests WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("repository.Repository.DeleteRequest: %w", transient(err))
	}
	return nil
}
