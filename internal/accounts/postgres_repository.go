package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type dbConn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores portal accounts in the relational database.
type PostgresRepository struct {
	db dbConn
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("accounts: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithConn(db dbConn) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, username, name, email, phone, hashed_password,
		is_password_expired, otp_password_used, is_active, is_superuser,
		created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Name,
		&u.Email,
		&u.Phone,
		&u.HashedPassword,
		&u.IsPasswordExpired,
		&u.OTPPasswordUsed,
		&u.IsActive,
		&u.IsSuperuser,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("accounts: select user failed: %w", err)
	}
	return &u, nil
}

// GetUserByUsername fetches a non-deleted user by username.
func (r *PostgresRepository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE username = $1 AND deleted_at IS NULL
	`
	return scanUser(r.db.QueryRow(ctx, query, username))
}

// GetActiveUserByID fetches an active, non-deleted user by id.
func (r *PostgresRepository) GetActiveUserByID(ctx context.Context, id int64) (*User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1 AND is_active AND deleted_at IS NULL
	`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

// GetPatientByUserID fetches the patient record linked to a user.
func (r *PostgresRepository) GetPatientByUserID(ctx context.Context, userID int64) (*Patient, error) {
	query := `
		SELECT id, user_id, mrn, mrn_system, name, date_of_birth, created_at, updated_at
		FROM patients
		WHERE user_id = $1 AND deleted_at IS NULL
	`
	var p Patient
	if err := r.db.QueryRow(ctx, query, userID).Scan(
		&p.ID,
		&p.UserID,
		&p.MRN,
		&p.MRNSystem,
		&p.Name,
		&p.DateOfBirth,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("accounts: select patient failed: %w", err)
	}
	return &p, nil
}

// CreateUserWithPatient inserts both rows in one transaction so a
// half-registered account never exists.
func (r *PostgresRepository) CreateUserWithPatient(ctx context.Context, user NewUser, patient NewPatient) (*User, *Patient, error) {
	if err := user.Validate(); err != nil {
		return nil, nil, err
	}
	if err := patient.Validate(); err != nil {
		return nil, nil, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("accounts: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	u := &User{
		Username:          user.Username,
		Name:              user.Name,
		Email:             user.Email,
		Phone:             user.Phone,
		HashedPassword:    user.HashedPassword,
		IsPasswordExpired: user.IsPasswordExpired,
		IsActive:          true,
	}
	insertUser := `
		INSERT INTO users (username, name, email, phone, hashed_password, is_password_expired)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	if err := tx.QueryRow(ctx, insertUser,
		user.Username,
		user.Name,
		user.Email,
		user.Phone,
		user.HashedPassword,
		user.IsPasswordExpired,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, nil, translateConstraint(err, "insert user")
	}

	p := &Patient{
		UserID:      u.ID,
		MRN:         patient.MRN,
		MRNSystem:   patient.MRNSystem,
		Name:        patient.Name,
		DateOfBirth: patient.DateOfBirth,
	}
	insertPatient := `
		INSERT INTO patients (user_id, mrn, mrn_system, name, date_of_birth)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	if err := tx.QueryRow(ctx, insertPatient,
		u.ID,
		patient.MRN,
		patient.MRNSystem,
		patient.Name,
		patient.DateOfBirth,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, nil, translateConstraint(err, "insert patient")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("accounts: commit tx: %w", err)
	}
	return u, p, nil
}

// MarkOTPUsed burns the one-time password of an expired account.
func (r *PostgresRepository) MarkOTPUsed(ctx context.Context, userID int64) error {
	query := `
		UPDATE users
		SET otp_password_used = TRUE, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	return r.execUserUpdate(ctx, query, "mark otp used", userID)
}

// UpdatePassword applies a self-service password change and clears the
// expiry flags.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, userID int64, hashedPassword string) error {
	query := `
		UPDATE users
		SET hashed_password = $2, is_password_expired = FALSE,
		    otp_password_used = FALSE, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	return r.execUserUpdate(ctx, query, "update password", userID, hashedPassword)
}

// ResetPassword installs a fresh one-time password and re-arms expiry.
func (r *PostgresRepository) ResetPassword(ctx context.Context, userID int64, hashedPassword string) error {
	query := `
		UPDATE users
		SET hashed_password = $2, is_password_expired = TRUE,
		    otp_password_used = FALSE, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	return r.execUserUpdate(ctx, query, "reset password", userID, hashedPassword)
}

// SoftDeleteUser marks the user and their patient record deleted.
func (r *PostgresRepository) SoftDeleteUser(ctx context.Context, userID, deletedBy int64) error {
	now := time.Now().UTC()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("accounts: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE users
		SET deleted_at = $2, deleted_by = $3, is_active = FALSE
		WHERE id = $1 AND deleted_at IS NULL
	`, userID, now, deletedBy)
	if err != nil {
		return fmt.Errorf("accounts: soft delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	if _, err := tx.Exec(ctx, `
		UPDATE patients
		SET deleted_at = $2, deleted_by = $3
		WHERE user_id = $1 AND deleted_at IS NULL
	`, userID, now, deletedBy); err != nil {
		return fmt.Errorf("accounts: soft delete patient: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("accounts: commit tx: %w", err)
	}
	return nil
}

func (r *PostgresRepository) execUserUpdate(ctx context.Context, query, op string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("accounts: %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// translateConstraint maps unique-violation errors onto the package
// sentinels so callers can branch without importing pgconn.
func translateConstraint(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch {
		case strings.Contains(pgErr.ConstraintName, "users_username"):
			return ErrUserExists
		case strings.Contains(pgErr.ConstraintName, "patients_mrn"),
			strings.Contains(pgErr.ConstraintName, "patients_user_id"):
			return ErrPatientExists
		}
	}
	return fmt.Errorf("accounts: %s: %w", op, err)
}
