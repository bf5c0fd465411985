package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"repairmarket/internal/config"
	"repairmarket/internal/models"
	"repairmarket/internal/service"

	postgres "repairmarket/internal/repository/db"
)

type Repository struct {
	db  *sql.DB
	cfg *config.PostgresConfig
}

var _ service.Store = (*Repository)(nil)

func NewRepository(db *sql.DB, cfg *config.PostgresConfig) (*Repository, error) {
	var err error

	repo := &Repository{
		db:  db,
		cfg: cfg,
	}

	if repo.cfg == nil {
		repo.cfg, err = config.NewPostgresConfig()
		if err != nil {
			return nil, fmt.Errorf("repository.NewRepository: could not load postgres config: %w", err)
		}
	}

	if repo.db == nil {
		repo.db, err = postgres.NewPostgresDB(repo.cfg)
		if err != nil {
			return nil, fmt.Errorf("repository.NewRepository: could not open postgres db: %w", err)
		}
	}

	if repo.cfg.AutoMigrateUp == "true" {
		err = repo.MigrateUp()
		if err != nil {
			return nil, err
		}
	}

	return repo, nil
}

func (repo *Repository) MigrateUp() error {
	err := postgres.MigrateUp(repo.db, repo.cfg.MigrationsURL)
	if err != nil {
		return fmt.Errorf("repository.Repository.Migrate: %w", err)
	}
	return nil
}

func (repo *Repository) MigrateDown() error {
	err := postgres.MigrateDown(repo.db, repo.cfg.MigrationsURL)
	if err != nil {
		return fmt.Errorf("repository.Repository.Migrate: %w", err)
	}
	return nil
}

func (repo *Repository) Close() error {
	var migErr error
	if repo.cfg.AutoMigrateDown == "true" {
		migErr = repo.MigrateDown()
	}

	err := repo.db.Close()
	return errors.Join(migErr, err)
}

//// Users

const userColumns = `
	id,
	name,
	email,
	COALESCE(phone, ''),
	role,
	is_active,
	longitude,
	latitude,
	created_at,
	updated_at
`

func scanUser(row interface{ Scan(...interface{}) error }) (models.User, error) {
	var user models.User
	var lon, lat sql.NullFloat64
	err := row.Scan(&user.Id, &user.Name, &user.Email, &user.Phone, &user.Role,
		&user.IsActive, &lon, &lat, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return user, err
	}
	if lon.Valid {
		user.Longitude = &lon.Float64
	}
	if lat.Valid {
		user.Latitude = &lat.Float64
	}
	return user, nil
}

func (repo *Repository) UserByID(ctx context.Context, id string) (models.User, bool, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`

	user, err := scanUser(repo.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return user, false, nil
	} else if err != nil {
		return user, false, fmt.Errorf("repository.Repository.UserByID: %w", transient(err))
	}

	return user, true, nil
}

func (repo *Repository) AddUser(ctx context.Context, user models.User) (models.User, error) {
	query := `
	INSERT INTO users (name, email, phone, role, is_active, longitude, latitude)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id, created_at, updated_at
	`

	var phone interface{}
	if len(user.Phone) > 0 {
		phone = user.Phone
	}

	row := repo.db.QueryRowContext(ctx, query, user.Name, user.Email, phone,
		user.Role, user.IsActive, user.Longitude, user.Latitude)
	err := row.Scan(&user.Id, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return user, fmt.Errorf("repository.Repository.AddUser: %w", transient(err))
	}

	return user, nil
}

//// Technicians

const profileColumns = `
	id,
	user_id,
	experience,
	specializations,
	service_radius_km,
	rating_average,
	rating_count,
	price_min,
	price_max,
	is_approved,
	approved_at,
	rejected_at,
	created_at,
	updated_at
`

func scanProfile(row interface{ Scan(...interface{}) error }) (models.TechnicianProfile, error) {
	var p models.TechnicianProfile
	var approvedAt, rejectedAt sql.NullTime
	err := row.Scan(&p.Id, &p.UserId, &p.Experience, pq.Array(&p.Specializations),
		&p.ServiceRadiusKm, &p.RatingAverage, &p.RatingCount, &p.PriceMin, &p.PriceMax,
		&p.IsApproved, &approvedAt, &rejectedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	if approvedAt.Valid {
		p.ApprovedAt = &approvedAt.Time
	}
	if rejectedAt.Valid {
		p.RejectedAt = &rejectedAt.Time
	}
	return p, nil
}

// TechnicianByID composes a user with its technician profile. The
// profile is nil when the user never registered one.
func (repo *Repository) TechnicianByID(ctx context.Context, userId string) (models.Technician, bool, error) {
	user, ok, err := repo.UserByID(ctx, userId)
	if err != nil {
		return models.Technician{}, false, fmt.Errorf("repository.Repository.TechnicianByID: %w", err)
	}
	if !ok {
		return models.Technician{}, false, nil
	}

	tech := models.Technician{User: user}

	query := `SELECT ` + profileColumns + ` FROM technician_profiles WHERE user_id = $1 LIMIT 1`
	profile, err := scanProfile(repo.db.QueryRowContext(ctx, query, userId))
	if errors.Is(err, sql.ErrNoRows) {
		return tech, true, nil
	} else if err != nil {
		return models.Technician{}, false, fmt.Errorf("repository.Repository.TechnicianByID: %w", transient(err))
	}

	tech.Profile = &profile
	return tech, true, nil
}

func (repo *Repository) AddTechnicianProfile(ctx context.Context, p models.TechnicianProfile) (models.TechnicianProfile, error) {
	query := `
	INSERT INTO technician_profiles
		(user_id, experience, specializations, service_radius_km, price_min, price_max, is_approved)
	VALUES
		($1, $2, $3, $4, $5, $6, $7)
	RETURNING id, created_at, updated_at
	`

	row := repo.db.QueryRowContext(ctx, query, p.UserId, p.Experience,
		pq.Array(p.Specializations), p.ServiceRadiusKm, p.PriceMin, p.PriceMax, p.IsApproved)
	err := row.Scan(&p.Id, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, fmt.Errorf("repository.Repository.AddTechnicianProfile: %w", transient(err))
	}

	return p, nil
}

func (repo *Repository) SetTechnicianApproval(ctx context.Context, userId string, approved bool) (models.TechnicianProfile, error) {
	query := `
	UPDATE technician_profiles
	SET is_approved = $2,
		approved_at = CASE WHEN $2 THEN CURRENT_TIMESTAMP ELSE approved_at END,
		rejected_at = CASE WHEN $2 THEN NULL ELSE CURRENT_TIMESTAMP END,
		updated_at = CURRENT_TIMESTAMP
	WHERE user_id = $1
	RETURNING ` + profileColumns

	profile, err := scanProfile(repo.db.QueryRowContext(ctx, query, userId, approved))
	if errors.Is(err, sql.ErrNoRows) {
		return profile, fmt.Errorf("repository.Repository.SetTechnicianApproval: %w: %s", models.ErrNoUser, userId)
	} else if err != nil {
		return profile, fmt.Errorf("repository.Repository.SetTechnicianApproval: %w", transient(err))
	}

	return profile, nil
}

//// Service

func wrapRollbackErr(tx *sql.Tx, err error) error {
	rollerr := tx.Rollback()
	if rollerr == nil {
		return err
	}
	return fmt.Errorf("failed to rollback transaction after previous error: %w, %w", rollerr, err)
}

// transient maps driver-level failures that are safe to retry onto
// models.ErrUnavailable so callers can tell them apart from business
// conflicts.
func transient(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %s", models.ErrUnavailable, err)
	}
	return err
}

func readUUID(val interface{}) string {
	switch v := val.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

//// Test utils

func (repo *Repository) TestGetDB() *sql.DB {
	return repo.db
}
