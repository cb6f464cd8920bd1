package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore remembers sessions ended before their expiry, either one
// session by token id (logout) or every session of a user issued up to a
// point in time (password change).
type RevocationStore interface {
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
	RevokeUser(ctx context.Context, userID string, ttl time.Duration) error
	IsUserRevoked(ctx context.Context, userID string, issuedAt time.Time) (bool, error)
}

// CheckSession returns ErrSessionRevoked when the claims were revoked by
// either mechanism.
func CheckSession(ctx context.Context, store RevocationStore, claims *Claims) error {
	revoked, err := store.IsRevoked(ctx, claims.ID)
	if err != nil {
		return err
	}
	if revoked {
		return ErrSessionRevoked
	}
	revoked, err = store.IsUserRevoked(ctx, claims.UserID, claims.IssuedAtTime())
	if err != nil {
		return err
	}
	if revoked {
		return ErrSessionRevoked
	}
	return nil
}

const revocationKeyPrefix = "flexidesk:session:revoked:"

// RedisRevocationStore keeps revocations in Redis so every instance sees them.
type RedisRevocationStore struct {
	client redis.UniversalClient
}

// NewRedisRevocationStore wraps an existing client.
func NewRedisRevocationStore(client redis.UniversalClient) *RedisRevocationStore {
	return &RedisRevocationStore{client: client}
}

func sessionKey(sessionID string) string {
	return revocationKeyPrefix + "sid:" + sessionID
}

func userKey(userID string) string {
	return revocationKeyPrefix + "user:" + userID
}

// Revoke implements RevocationStore
func (s *RedisRevocationStore) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, sessionKey(sessionID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// IsRevoked implements RevocationStore
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Exists(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session revocation: %w", err)
	}
	return n > 0, nil
}

// RevokeUser implements RevocationStore. The stored value is the revocation
// time in Unix seconds.
func (s *RedisRevocationStore) RevokeUser(ctx context.Context, userID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, userKey(userID), time.Now().Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke user sessions: %w", err)
	}
	return nil
}

// IsUserRevoked implements RevocationStore
func (s *RedisRevocationStore) IsUserRevoked(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	raw, err := s.client.Get(ctx, userKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check user revocation: %w", err)
	}
	revokedAt, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, fmt.Errorf("failed to parse revocation timestamp: %w", err)
	}
	return issuedAt.Unix() <= revokedAt, nil
}

var _ RevocationStore = (*RedisRevocationStore)(nil)

// MemoryRevocationStore is a process-local RevocationStore for single
// instance deployments and tests.
type MemoryRevocationStore struct {
	mu       sync.Mutex
	sessions map[string]time.Time // session id -> entry expiry
	users    map[string]time.Time // user id -> revoked at
	now      func() time.Time
}

// NewMemoryRevocationStore creates an empty store.
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{
		sessions: make(map[string]time.Time),
		users:    make(map[string]time.Time),
		now:      time.Now,
	}
}

// Revoke implements RevocationStore
func (s *MemoryRevocationStore) Revoke(_ context.Context, sessionID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = s.now().Add(ttl)
	return nil
}

// IsRevoked implements RevocationStore. Expired entries are dropped lazily.
func (s *MemoryRevocationStore) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.sessions[sessionID]
	if !ok {
		return false, nil
	}
	if s.now().After(until) {
		delete(s.sessions, sessionID)
		return false, nil
	}
	return true, nil
}

// RevokeUser implements RevocationStore
func (s *MemoryRevocationStore) RevokeUser(_ context.Context, userID string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = s.now()
	return nil
}

// IsUserRevoked implements RevocationStore. Comparison is at second
// precision, the resolution of the token's iat claim.
func (s *MemoryRevocationStore) IsUserRevoked(_ context.Context, userID string, issuedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	revokedAt, ok := s.users[userID]
	if !ok {
		return false, nil
	}
	return issuedAt.Unix() <= revokedAt.Unix(), nil
}

var _ RevocationStore = (*MemoryRevocationStore)(nil)
