package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/alillje/lillje-consulting-auth-service/internal/models"
)

// TokenRepository persists refresh records in Postgres. Each principal
// owns at most one record; rotation uses a compare-and-set update so
// two concurrent refreshes can never both win.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository creates a new instance of TokenRepository.
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Get returns the refresh record owned by the given principal.
func (r *TokenRepository) Get(ctx context.Context, owner string) (*models.RefreshRecord, error) {
	const query = `SELECT owner, current_token, used_tokens, expires_at, created_at, updated_at FROM refresh_records WHERE owner = $1 LIMIT 1`
	var record models.RefreshRecord
	if err := r.db.GetContext(ctx, &record, query, owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("get refresh record: %w", err)
	}
	return &record, nil
}

// Save inserts the record, or replaces an existing one in place. On
// replace the previous current token is pushed onto used_tokens, so a
// re-login retires the prior session's token instead of forgetting it.
func (r *TokenRepository) Save(ctx context.Context, record *models.RefreshRecord) error {
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.UsedTokens == nil {
		record.UsedTokens = []string{}
	}

	const query = `INSERT INTO refresh_records (owner, current_token, used_tokens, expires_at, created_at, updated_at)
		VALUES (:owner, :current_token, :used_tokens, :expires_at, :created_at, :updated_at)
		ON CONFLICT (owner) DO UPDATE SET
			used_tokens = array_append(refresh_records.used_tokens, refresh_records.current_token),
			current_token = EXCLUDED.current_token,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("save refresh record: %w", err)
	}
	return nil
}

// Rotate atomically replaces retiredToken with newToken for the owner.
// The WHERE clause doubles as the compare-and-set guard: it only
// matches while retiredToken is still current. Returns false when no
// row matched, meaning another request rotated first.
func (r *TokenRepository) Rotate(ctx context.Context, owner, retiredToken, newToken string, expiresAt time.Time) (bool, error) {
	const query = `UPDATE refresh_records
		SET current_token = $3, used_tokens = array_append(used_tokens, $2), expires_at = $4, updated_at = $5
		WHERE owner = $1 AND current_token = $2`
	result, err := r.db.ExecContext(ctx, query, owner, retiredToken, newToken, expiresAt, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("rotate refresh record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rotate refresh record rows: %w", err)
	}
	return affected > 0, nil
}

// FindByToken returns the record whose current token equals the given
// token string.
func (r *TokenRepository) FindByToken(ctx context.Context, token string) (*models.RefreshRecord, error) {
	const query = `SELECT owner, current_token, used_tokens, expires_at, created_at, updated_at FROM refresh_records WHERE current_token = $1 LIMIT 1`
	var record models.RefreshRecord
	if err := r.db.GetContext(ctx, &record, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("find refresh record by token: %w", err)
	}
	return &record, nil
}

// Revoke deletes the principal's record and with it the whole token
// family. Deleting an absent record is not an error.
func (r *TokenRepository) Revoke(ctx context.Context, owner string) error {
	const query = `DELETE FROM refresh_records WHERE owner = $1`
	if _, err := r.db.ExecContext(ctx, query, owner); err != nil {
		return fmt.Errorf("revoke refresh record: %w", err)
	}
	return nil
}

// DeleteByToken removes the record whose current token matches.
// Returns whether a record was actually deleted so logout can stay
// idempotent while callers still learn the outcome.
func (r *TokenRepository) DeleteByToken(ctx context.Context, token string) (bool, error) {
	const query = `DELETE FROM refresh_records WHERE current_token = $1`
	result, err := r.db.ExecContext(ctx, query, token)
	if err != nil {
		return false, fmt.Errorf("delete refresh record by token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete refresh record rows: %w", err)
	}
	return affected > 0, nil
}

// DeleteExpired purges records whose TTL has elapsed and returns how
// many were removed. Token validity is still governed by the embedded
// expiry; this only keeps the table from growing without bound.
func (r *TokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM refresh_records WHERE expires_at <= $1`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh records: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh records rows: %w", err)
	}
	return affected, nil
}
