// Package session provides Valkey-backed bearer token sessions. A session is
// keyed by the token id carried in the JWT, stored as JSON with a TTL that
// matches the token's remaining lifetime, and indexed per user so every
// session of an account can be revoked at once.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is used when Create is given no expiry.
	DefaultTTL = 24 * time.Hour

	// keyPrefix namespaces session keys in Valkey to avoid collisions.
	keyPrefix = "session:"

	// userPrefix namespaces the per-user session index.
	userPrefix = "user_sessions:"
)

// Data holds the session payload stored in Valkey.
type Data struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store manages session lifecycle in Valkey.
type Store struct {
	client *redis.Client
}

// NewStore creates a session store backed by the given Valkey client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Create stores a session under tokenID. It expires with data.ExpiresAt, or
// after DefaultTTL when that is zero.
func (s *Store) Create(ctx context.Context, tokenID string, data *Data) error {
	now := time.Now()
	data.CreatedAt = now
	if data.ExpiresAt.IsZero() {
		data.ExpiresAt = now.Add(DefaultTTL)
	}
	ttl := time.Until(data.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session create: already expired")
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("session marshal: %w", err)
	}

	userKey := userPrefix + data.UserID.String()
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, keyPrefix+tokenID, payload, ttl)
	pipe.SAdd(ctx, userKey, tokenID)
	pipe.Expire(ctx, userKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	return nil
}

// Get retrieves the session for tokenID. Returns nil if it does not exist
// or has expired.
func (s *Store) Get(ctx context.Context, tokenID string) (*Data, error) {
	payload, err := s.client.Get(ctx, keyPrefix+tokenID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session get: %w", err)
	}

	var data Data
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("session unmarshal: %w", err)
	}
	return &data, nil
}

// Update replaces the session payload, keeping its remaining TTL.
func (s *Store) Update(ctx context.Context, tokenID string, data *Data) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("session marshal: %w", err)
	}

	err = s.client.SetArgs(ctx, keyPrefix+tokenID, payload, redis.SetArgs{KeepTTL: true, Mode: "XX"}).Err()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("session update: no such session")
	}
	if err != nil {
		return fmt.Errorf("session update: %w", err)
	}
	return nil
}

// Destroy removes one session. Destroying a missing session is not an error.
func (s *Store) Destroy(ctx context.Context, userID uuid.UUID, tokenID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keyPrefix+tokenID)
	pipe.SRem(ctx, userPrefix+userID.String(), tokenID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session destroy: %w", err)
	}
	return nil
}

// DestroyAll removes every session of a user except keepTokenID, which may
// be empty. It returns how many sessions were removed.
func (s *Store) DestroyAll(ctx context.Context, userID uuid.UUID, keepTokenID string) (int, error) {
	userKey := userPrefix + userID.String()
	ids, err := s.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, fmt.Errorf("session list: %w", err)
	}

	removed := 0
	pipe := s.client.TxPipeline()
	for _, id := range ids {
		if id == keepTokenID {
			continue
		}
		pipe.Del(ctx, keyPrefix+id)
		pipe.SRem(ctx, userKey, id)
		removed++
	}
	if removed == 0 {
		return 0, nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("session destroy all: %w", err)
	}
	return removed, nil
}
