package repository

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alillje/lillje-consulting-auth-service/internal/models"
)

func newRedisRepo(t *testing.T) (*miniredis.Miniredis, *RedisTokenRepository) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, NewRedisTokenRepository(client)
}

func TestRedisSaveAndGet(t *testing.T) {
	_, repo := newRedisRepo(t)
	ctx := context.Background()

	expires := time.Now().Add(time.Hour)
	err := repo.Save(ctx, &models.RefreshRecord{Owner: "u1", CurrentToken: "tok0", ExpiresAt: expires})
	require.NoError(t, err)

	record, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", record.Owner)
	assert.Equal(t, "tok0", record.CurrentToken)
	assert.Empty(t, record.UsedTokens)
	assert.WithinDuration(t, expires, record.ExpiresAt, time.Second)

	_, err = repo.Get(ctx, "ghost")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestRedisReLoginRetiresPreviousToken(t *testing.T) {
	_, repo := newRedisRepo(t)
	ctx := context.Background()

	expires := time.Now().Add(time.Hour)
	require.NoError(t, repo.Save(ctx, &models.RefreshRecord{Owner: "u1", CurrentToken: "tok0", ExpiresAt: expires}))
	require.NoError(t, repo.Save(ctx, &models.RefreshRecord{Owner: "u1", CurrentToken: "tok1", ExpiresAt: expires}))

	record, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "tok1", record.CurrentToken)
	assert.True(t, record.HasUsed("tok0"))

	_, err = repo.FindByToken(ctx, "tok0")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	found, err := repo.FindByToken(ctx, "tok1")
	require.NoError(t, err)
	assert.Equal(t, "u1", found.Owner)
}

func TestRedisRotate(t *testing.T) {
	_, repo := newRedisRepo(t)
	ctx := context.Background()

	expires := time.Now().Add(time.Hour)
	require.NoError(t, repo.Save(ctx, &models.RefreshRecord{Owner: "u1", CurrentToken: "tok0", ExpiresAt: expires}))

	rotated, err := repo.Rotate(ctx, "u1", "tok0", "tok1", expires.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, rotated)

	record, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "tok1", record.CurrentToken)
	assert.True(t, record.HasUsed("tok0"))

	// tok0 is no longer current, a second rotation attempt must lose.
	rotated, err = repo.Rotate(ctx, "u1", "tok0", "tok2", expires)
	require.NoError(t, err)
	assert.False(t, rotated)

	rotated, err = repo.Rotate(ctx, "ghost", "tok0", "tok1", expires)
	require.NoError(t, err)
	assert.False(t, rotated)
}

func TestRedisFindByToken(t *testing.T) {
	_, repo := newRedisRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &models.RefreshRecord{Owner: "u1", CurrentToken: "tok0", ExpiresAt: time.Now().Add(time.Hour)}))

	record, err := repo.FindByToken(ctx, "tok0")
	require.NoError(t, err)
	assert.Equal(t, "u1", record.Owner)

	_, err = repo.FindByToken(ctx, "never-issued")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestRedisDeleteByToken(t *testing.T) {
	_, repo := newRedisRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &models.RefreshRecord{Owner: "u1", CurrentToken: "tok0", ExpiresAt: time.Now().Add(time.Hour)}))

	deleted, err := repo.DeleteByToken(ctx, "tok0")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = repo.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	deleted, err = repo.DeleteByToken(ctx, "tok0")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestRedisDeleteByTokenIgnoresRetired(t *testing.T) {
	_, repo := newRedisRepo(t)
	ctx := context.Background()

	expires := time.Now().Add(time.Hour)
	require.NoError(t, repo.Save(ctx, &models.RefreshRecord{Owner: "u1", CurrentToken: "tok0", ExpiresAt: expires}))
	rotated, err := repo.Rotate(ctx, "u1", "tok0", "tok1", expires)
	require.NoError(t, err)
	require.True(t, rotated)

	deleted, err := repo.DeleteByToken(ctx, "tok0")
	require.NoError(t, err)
	assert.False(t, deleted)

	record, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "tok1", record.CurrentToken)
}

func TestRedisRevoke(t *testing.T) {
	_, repo := newRedisRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &models.RefreshRecord{Owner: "u1", CurrentToken: "tok0", ExpiresAt: time.Now().Add(time.Hour)}))

	require.NoError(t, repo.Revoke(ctx, "u1"))

	_, err := repo.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrRecordNotFound)
	_, err = repo.FindByToken(ctx, "tok0")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	// Revoking again is a no-op.
	require.NoError(t, repo.Revoke(ctx, "u1"))
}

func TestRedisDeleteExpired(t *testing.T) {
	mr, repo := newRedisRepo(t)
	ctx := context.Background()

	future := time.Now().Add(time.Hour)
	require.NoError(t, repo.Save(ctx, &models.RefreshRecord{Owner: "stale", CurrentToken: "tok0", ExpiresAt: future}))
	require.NoError(t, repo.Save(ctx, &models.RefreshRecord{Owner: "fresh", CurrentToken: "tok1", ExpiresAt: future}))

	// Simulate a record whose key TTL was lost while its stored expiry
	// lapsed; the sweep has to catch it.
	past := strconv.FormatInt(time.Now().Add(-time.Minute).Unix(), 10)
	mr.HSet(refreshRecordPrefix+"stale", "expires_at", past)

	purged, err := repo.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	_, err = repo.Get(ctx, "stale")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	record, err := repo.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, "tok1", record.CurrentToken)
}
