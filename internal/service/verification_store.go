package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEmptyVerificationToken indica un intento de guardar un token vacío.
var ErrEmptyVerificationToken = errors.New("empty verification token")

// VerificationTokenStore guarda tokens de verificación de email con TTL.
// Los tokens son de un solo uso: Consume los elimina al resolverlos.
type VerificationTokenStore interface {
	Store(token, userID string, ttl time.Duration) error
	Consume(token string) (userID string, ok bool, err error)
}

type memoryVerificationStore struct {
	mu    sync.Mutex
	items map[string]verificationEntry
}

type verificationEntry struct {
	userID    string
	expiresAt time.Time
}

func NewMemoryVerificationStore() VerificationTokenStore {
	return &memoryVerificationStore{
		items: make(map[string]verificationEntry),
	}
}

func (s *memoryVerificationStore) Store(token, userID string, ttl time.Duration) error {
	if strings.TrimSpace(token) == "" {
		return ErrEmptyVerificationToken
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[token] = verificationEntry{
		userID:    userID,
		expiresAt: time.Now().UTC().Add(ttl),
	}
	return nil
}

func (s *memoryVerificationStore) Consume(token string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.items[token]
	if !ok {
		return "", false, nil
	}
	delete(s.items, token)
	if time.Now().UTC().After(entry.expiresAt) {
		return "", false, nil
	}
	return entry.userID, true, nil
}

type redisVerificationStore struct {
	client redisKVClient
	prefix string
}

type redisKVClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
}

func NewRedisVerificationStore(client *redis.Client) VerificationTokenStore {
	if client == nil {
		return nil
	}
	return &redisVerificationStore{
		client: client,
		prefix: "verify:token:",
	}
}

func (s *redisVerificationStore) Store(token, userID string, ttl time.Duration) error {
	if strings.TrimSpace(token) == "" {
		return ErrEmptyVerificationToken
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	return s.client.Set(ctx, s.prefix+token, userID, ttl).Err()
}

func (s *redisVerificationStore) Consume(token string) (string, bool, error) {
	if strings.TrimSpace(token) == "" {
		return "", false, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	userID, err := s.client.GetDel(ctx, s.prefix+token).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		return "", false, err
	}
	return userID, true, nil
}
