package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/beatstore-backend/pkg/config"
	"github.com/angelmondragon/beatstore-backend/pkg/enums"
	"github.com/angelmondragon/beatstore-backend/pkg/redis"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return val, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryStore) DelIfValue(_ context.Context, key, expected string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[key] != expected {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

func (m *memoryStore) AccessSessionKey(accessID string) string {
	return "sess:" + accessID
}

var testJWT = config.JWTConfig{ExpirationMinutes: 15, RefreshTokenTTLMinutes: 60}

func newTestManager(t *testing.T) (*Manager, *memoryStore) {
	t.Helper()
	store := newMemoryStore()
	manager, err := newManager(store, testJWT)
	require.NoError(t, err)
	return manager, store
}

func TestManagerGenerateStoresDigestOnly(t *testing.T) {
	manager, store := newTestManager(t)
	ctx := context.Background()

	token, err := manager.Generate(ctx, "access-123", uuid.New(), enums.UserRoleBuyer)
	require.NoError(t, err)

	stored := store.data["sess:access-123"]
	assert.NotContains(t, stored, token)
	assert.Contains(t, stored, digest(token))
	assert.Equal(t, time.Hour, store.ttls["sess:access-123"])
}

func TestManagerRotate(t *testing.T) {
	manager, store := newTestManager(t)
	ctx := context.Background()
	userID := uuid.New()

	token, err := manager.Generate(ctx, "access-123", userID, enums.UserRoleBuyer)
	require.NoError(t, err)

	_, err = manager.Rotate(ctx, "access-123", "wrong")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	next, err := manager.Rotate(ctx, "access-123", token)
	require.NoError(t, err)
	assert.Equal(t, userID, next.UserID)
	assert.Equal(t, enums.UserRoleBuyer, next.Role)
	assert.NotEqual(t, "access-123", next.AccessID)
	assert.NotEqual(t, token, next.RefreshToken)
	assert.NotContains(t, store.data, "sess:access-123")
	assert.Contains(t, store.data, "sess:"+next.AccessID)

	_, err = manager.Rotate(ctx, "access-123", token)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken, "a rotated token must not be reusable")
}

func TestManagerRotateConcurrentReuseHasOneWinner(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()
	token, err := manager.Generate(ctx, "access-race", uuid.New(), enums.UserRoleBuyer)
	require.NoError(t, err)

	const callers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := manager.Rotate(ctx, "access-race", token); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestManagerRevokeAndHasSession(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	_, err := manager.Generate(ctx, "access-9", uuid.New(), enums.UserRoleAdmin)
	require.NoError(t, err)

	ok, err := manager.HasSession(ctx, "access-9")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, manager.Revoke(ctx, "access-9"))
	ok, err = manager.HasSession(ctx, "access-9")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = manager.HasSession(ctx, " ")
	assert.Error(t, err)
}

func TestManagerValidation(t *testing.T) {
	manager, _ := newTestManager(t)
	_, err := manager.Generate(context.Background(), "", uuid.New(), enums.UserRoleBuyer)
	assert.Error(t, err)
	_, err = manager.Generate(context.Background(), "a", uuid.Nil, enums.UserRoleBuyer)
	assert.Error(t, err)

	_, err = newManager(newMemoryStore(), config.JWTConfig{ExpirationMinutes: 60, RefreshTokenTTLMinutes: 30})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "must exceed"))

	_, err = NewManager(nil, testJWT)
	assert.Error(t, err)
}
