package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrRefreshTokenInvalid is returned for unknown, expired, or revoked
// refresh tokens
var ErrRefreshTokenInvalid = errors.New("refresh token is invalid")

const (
	refreshKeyPrefix  = "docuvault:refresh:"
	refreshUserPrefix = "docuvault:refresh:user:"
)

// RefreshStore persists opaque refresh tokens in Redis. Session tokens are
// stateless; refresh tokens are the revocable handle, so deactivating a
// user ends their sessions within one token expiry.
type RefreshStore struct {
	client *redis.Client
	expiry time.Duration
}

// NewRefreshStore creates a refresh token store
func NewRefreshStore(client *redis.Client, expiry time.Duration) *RefreshStore {
	return &RefreshStore{client: client, expiry: expiry}
}

// Create mints a refresh token for a user and stores it with a TTL
func (s *RefreshStore) Create(ctx context.Context, userID int64) (string, error) {
	token := uuid.NewString()

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, refreshKeyPrefix+token, strconv.FormatInt(userID, 10), s.expiry)
	pipe.SAdd(ctx, refreshUserKey(userID), token)
	pipe.Expire(ctx, refreshUserKey(userID), s.expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}

	return token, nil
}

// Validate resolves a refresh token to its user ID
func (s *RefreshStore) Validate(ctx context.Context, token string) (int64, error) {
	val, err := s.client.Get(ctx, refreshKeyPrefix+token).Result()
	if err == redis.Nil {
		return 0, ErrRefreshTokenInvalid
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up refresh token: %w", err)
	}

	userID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt refresh token record: %w", err)
	}
	return userID, nil
}

// Revoke deletes a single refresh token
func (s *RefreshStore) Revoke(ctx context.Context, token string) error {
	userID, err := s.Validate(ctx, token)
	if err != nil {
		if errors.Is(err, ErrRefreshTokenInvalid) {
			return nil
		}
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, refreshKeyPrefix+token)
	pipe.SRem(ctx, refreshUserKey(userID), token)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAll deletes every refresh token held by a user. Used on
// deactivation and on password change.
func (s *RefreshStore) RevokeAll(ctx context.Context, userID int64) error {
	tokens, err := s.client.SMembers(ctx, refreshUserKey(userID)).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to list refresh tokens: %w", err)
	}

	pipe := s.client.TxPipeline()
	for _, token := range tokens {
		pipe.Del(ctx, refreshKeyPrefix+token)
	}
	pipe.Del(ctx, refreshUserKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return nil
}

func refreshUserKey(userID int64) string {
	return refreshUserPrefix + strconv.FormatInt(userID, 10)
}
