package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alillje/lillje-consulting-auth-service/internal/models"
)

func TestSaveRefreshRecord(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec("INSERT INTO refresh_records").WillReturnResult(sqlmock.NewResult(0, 1))

	record := &models.RefreshRecord{
		Owner:        "u1",
		CurrentToken: "tok0",
		ExpiresAt:    time.Now().Add(24 * time.Hour),
	}
	err := repo.Save(context.Background(), record)
	require.NoError(t, err)
	assert.NotNil(t, record.UsedTokens)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRefreshRecord(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"owner", "current_token", "used_tokens", "expires_at", "created_at", "updated_at"}).
		AddRow("u1", "tok2", "{tok0,tok1}", now.Add(time.Hour), now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT owner, current_token, used_tokens, expires_at, created_at, updated_at FROM refresh_records WHERE owner = $1 LIMIT 1")).
		WithArgs("u1").
		WillReturnRows(rows)

	record, err := repo.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "tok2", record.CurrentToken)
	assert.True(t, record.HasUsed("tok0"))
	assert.True(t, record.HasUsed("tok1"))
	assert.False(t, record.HasUsed("tok2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRefreshRecordNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectQuery("SELECT owner, current_token").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRotateWins(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	expires := time.Now().Add(24 * time.Hour)
	mock.ExpectExec("UPDATE refresh_records").
		WithArgs("u1", "tok0", "tok1", expires, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rotated, err := repo.Rotate(context.Background(), "u1", "tok0", "tok1", expires)
	require.NoError(t, err)
	assert.True(t, rotated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRotateLosesRace(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	// Zero rows matched: another request already replaced tok0.
	mock.ExpectExec("UPDATE refresh_records").WillReturnResult(sqlmock.NewResult(0, 0))

	rotated, err := repo.Rotate(context.Background(), "u1", "tok0", "tok1", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, rotated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"owner", "current_token", "used_tokens", "expires_at", "created_at", "updated_at"}).
		AddRow("u1", "tok0", "{}", now.Add(time.Hour), now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT owner, current_token, used_tokens, expires_at, created_at, updated_at FROM refresh_records WHERE current_token = $1 LIMIT 1")).
		WithArgs("tok0").
		WillReturnRows(rows)

	record, err := repo.FindByToken(context.Background(), "tok0")
	require.NoError(t, err)
	assert.Equal(t, "u1", record.Owner)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByTokenNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectQuery("SELECT owner, current_token").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByToken(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevoke(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec("DELETE FROM refresh_records").
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Revoke(context.Background(), "u1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteByToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec("DELETE FROM refresh_records").
		WithArgs("tok0").
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := repo.DeleteByToken(context.Background(), "tok0")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteByTokenNoMatch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec("DELETE FROM refresh_records").WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := repo.DeleteByToken(context.Background(), "already-gone")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteExpired(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec("DELETE FROM refresh_records").WillReturnResult(sqlmock.NewResult(0, 3))

	purged, err := repo.DeleteExpired(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(3), purged)
	assert.NoError(t, mock.ExpectationsWereMet())
}
