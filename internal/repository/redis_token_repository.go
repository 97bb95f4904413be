package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/alillje/lillje-consulting-auth-service/internal/models"
)

// Key layout: one hash per principal holding the record fields, one set
// holding retired token strings, and one reverse-index key per current
// token so FindByToken stays O(1). All three carry the record TTL.
const (
	refreshRecordPrefix = "rr:"
	refreshUsedPrefix   = "rru:"
	refreshTokenPrefix  = "rrt:"
)

const (
	rotateStatusMissing  int64 = 0
	rotateStatusMismatch int64 = 1
	rotateStatusRotated  int64 = 2
)

const saveRecordScript = `
local record_key = KEYS[1]
local used_key = KEYS[2]
local token_prefix = ARGV[1]
local owner = ARGV[2]
local token = ARGV[3]
local expires_at = tonumber(ARGV[4])
local now = tonumber(ARGV[5])

local previous = redis.call("HGET", record_key, "current_token")
if previous then
  redis.call("SADD", used_key, previous)
  redis.call("DEL", token_prefix .. previous)
  redis.call("HSET", record_key, "current_token", token, "expires_at", expires_at, "updated_at", now)
else
  redis.call("HSET", record_key, "owner", owner, "current_token", token, "expires_at", expires_at, "created_at", now, "updated_at", now)
end
redis.call("SET", token_prefix .. token, owner)
redis.call("EXPIREAT", record_key, expires_at)
redis.call("EXPIREAT", token_prefix .. token, expires_at)
if redis.call("EXISTS", used_key) == 1 then
  redis.call("EXPIREAT", used_key, expires_at)
end
return 1
`

var saveRecordLua = redis.NewScript(saveRecordScript)

const rotateRecordScript = `
local record_key = KEYS[1]
local used_key = KEYS[2]
local token_prefix = ARGV[1]
local owner = ARGV[2]
local retired = ARGV[3]
local new_token = ARGV[4]
local expires_at = tonumber(ARGV[5])
local now = tonumber(ARGV[6])

local current = redis.call("HGET", record_key, "current_token")
if not current then
  return 0
end
if current ~= retired then
  return 1
end

redis.call("SADD", used_key, retired)
redis.call("DEL", token_prefix .. retired)
redis.call("HSET", record_key, "current_token", new_token, "expires_at", expires_at, "updated_at", now)
redis.call("SET", token_prefix .. new_token, owner)
redis.call("EXPIREAT", record_key, expires_at)
redis.call("EXPIREAT", used_key, expires_at)
redis.call("EXPIREAT", token_prefix .. new_token, expires_at)
return 2
`

var rotateRecordLua = redis.NewScript(rotateRecordScript)

const revokeRecordScript = `
local record_key = KEYS[1]
local used_key = KEYS[2]
local token_prefix = ARGV[1]

local current = redis.call("HGET", record_key, "current_token")
if current then
  redis.call("DEL", token_prefix .. current)
end
local existed = redis.call("DEL", record_key)
redis.call("DEL", used_key)
return existed
`

var revokeRecordLua = redis.NewScript(revokeRecordScript)

const deleteByTokenScript = `
local token_prefix = ARGV[1]
local record_prefix = ARGV[2]
local used_prefix = ARGV[3]
local token = ARGV[4]

local owner = redis.call("GET", token_prefix .. token)
if not owner then
  return 0
end
local record_key = record_prefix .. owner
local current = redis.call("HGET", record_key, "current_token")
if current ~= token then
  return 0
end
redis.call("DEL", record_key)
redis.call("DEL", used_prefix .. owner)
redis.call("DEL", token_prefix .. token)
return 1
`

var deleteByTokenLua = redis.NewScript(deleteByTokenScript)

// RedisTokenRepository persists refresh records in Redis. Rotation and
// deletion run as Lua scripts so each record mutation is atomic; Redis
// key TTLs provide the background eviction for free.
type RedisTokenRepository struct {
	client *redis.Client
}

// NewRedisTokenRepository creates a new instance of RedisTokenRepository.
func NewRedisTokenRepository(client *redis.Client) *RedisTokenRepository {
	return &RedisTokenRepository{client: client}
}

func (r *RedisTokenRepository) recordKey(owner string) string {
	return refreshRecordPrefix + owner
}

func (r *RedisTokenRepository) usedKey(owner string) string {
	return refreshUsedPrefix + owner
}

// Get returns the refresh record owned by the given principal.
func (r *RedisTokenRepository) Get(ctx context.Context, owner string) (*models.RefreshRecord, error) {
	pipe := r.client.TxPipeline()
	hashCmd := pipe.HGetAll(ctx, r.recordKey(owner))
	usedCmd := pipe.SMembers(ctx, r.usedKey(owner))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get refresh record: %w", err)
	}

	fields := hashCmd.Val()
	if len(fields) == 0 {
		return nil, ErrRecordNotFound
	}

	record, err := recordFromFields(fields)
	if err != nil {
		return nil, err
	}
	record.UsedTokens = pq.StringArray(usedCmd.Val())
	return record, nil
}

// Save inserts the record, or replaces an existing one in place,
// pushing the previous current token onto the used set.
func (r *RedisTokenRepository) Save(ctx context.Context, record *models.RefreshRecord) error {
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	err := saveRecordLua.Run(ctx, r.client,
		[]string{r.recordKey(record.Owner), r.usedKey(record.Owner)},
		refreshTokenPrefix, record.Owner, record.CurrentToken, record.ExpiresAt.Unix(), now.Unix(),
	).Err()
	if err != nil {
		return fmt.Errorf("save refresh record: %w", err)
	}
	return nil
}

// Rotate atomically replaces retiredToken with newToken for the owner.
// Returns false when the record is gone or retiredToken is no longer
// current, meaning another request rotated first.
func (r *RedisTokenRepository) Rotate(ctx context.Context, owner, retiredToken, newToken string, expiresAt time.Time) (bool, error) {
	status, err := rotateRecordLua.Run(ctx, r.client,
		[]string{r.recordKey(owner), r.usedKey(owner)},
		refreshTokenPrefix, owner, retiredToken, newToken, expiresAt.Unix(), time.Now().UTC().Unix(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("rotate refresh record: %w", err)
	}

	switch status {
	case rotateStatusRotated:
		return true, nil
	case rotateStatusMissing, rotateStatusMismatch:
		return false, nil
	default:
		return false, fmt.Errorf("rotate refresh record: unknown script status %d", status)
	}
}

// FindByToken returns the record whose current token equals the given
// token string.
func (r *RedisTokenRepository) FindByToken(ctx context.Context, token string) (*models.RefreshRecord, error) {
	owner, err := r.client.Get(ctx, refreshTokenPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("find refresh record by token: %w", err)
	}

	record, err := r.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	if record.CurrentToken != token {
		return nil, ErrRecordNotFound
	}
	return record, nil
}

// Revoke deletes the principal's record and with it the whole token
// family. Deleting an absent record is not an error.
func (r *RedisTokenRepository) Revoke(ctx context.Context, owner string) error {
	err := revokeRecordLua.Run(ctx, r.client,
		[]string{r.recordKey(owner), r.usedKey(owner)},
		refreshTokenPrefix,
	).Err()
	if err != nil {
		return fmt.Errorf("revoke refresh record: %w", err)
	}
	return nil
}

// DeleteByToken removes the record whose current token matches and
// reports whether anything was deleted.
func (r *RedisTokenRepository) DeleteByToken(ctx context.Context, token string) (bool, error) {
	deleted, err := deleteByTokenLua.Run(ctx, r.client,
		[]string{},
		refreshTokenPrefix, refreshRecordPrefix, refreshUsedPrefix, token,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("delete refresh record by token: %w", err)
	}
	return deleted > 0, nil
}

// DeleteExpired walks record keys and purges any whose stored expiry
// has passed. Redis key TTLs normally handle this on their own; the
// sweep catches records whose TTL was lost or not yet applied.
func (r *RedisTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var purged int64
	iter := r.client.Scan(ctx, 0, refreshRecordPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := r.client.HGet(ctx, key, "expires_at").Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return purged, fmt.Errorf("read expiry for %s: %w", key, err)
		}
		expires, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || expires > now.Unix() {
			continue
		}
		if err := r.Revoke(ctx, strings.TrimPrefix(key, refreshRecordPrefix)); err != nil {
			return purged, err
		}
		purged++
	}
	if err := iter.Err(); err != nil {
		return purged, fmt.Errorf("scan refresh records: %w", err)
	}
	return purged, nil
}

func recordFromFields(fields map[string]string) (*models.RefreshRecord, error) {
	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse refresh record expiry: %w", err)
	}
	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse refresh record created_at: %w", err)
	}
	updatedAt, err := strconv.ParseInt(fields["updated_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse refresh record updated_at: %w", err)
	}

	return &models.RefreshRecord{
		Owner:        fields["owner"],
		CurrentToken: fields["current_token"],
		ExpiresAt:    time.Unix(expiresAt, 0).UTC(),
		CreatedAt:    time.Unix(createdAt, 0).UTC(),
		UpdatedAt:    time.Unix(updatedAt, 0).UTC(),
	}, nil
}
