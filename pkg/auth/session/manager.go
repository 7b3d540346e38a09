// Package session keeps refresh sessions in Redis, one record per access
// token id. Only a digest of each refresh token is stored.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/beatstore-backend/pkg/config"
	"github.com/angelmondragon/beatstore-backend/pkg/enums"
	"github.com/angelmondragon/beatstore-backend/pkg/redis"
)

const refreshTokenBytes = 32

var (
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	errAccessIDRequired    = errors.New("access id is required")
)

type store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	DelIfValue(ctx context.Context, key, expected string) (bool, error)
	AccessSessionKey(accessID string) string
}

// Session is a live refresh grant. RefreshToken is only populated on the
// value returned from Rotate; the stored record keeps its digest.
type Session struct {
	AccessID     string         `json:"-"`
	UserID       uuid.UUID      `json:"user_id"`
	Role         enums.UserRole `json:"role"`
	RefreshToken string         `json:"-"`
	TokenDigest  string         `json:"token_digest"`
	IssuedAt     time.Time      `json:"issued_at"`
}

// AccessSessionChecker is what the auth middleware needs to reject tokens
// whose session was revoked.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

type Manager struct {
	store store
	ttl   time.Duration
	now   func() time.Time
}

// NewManager requires a refresh TTL strictly longer than the access TTL.
func NewManager(client *redis.Client, cfg config.JWTConfig) (*Manager, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return newManager(client, cfg)
}

func newManager(s store, cfg config.JWTConfig) (*Manager, error) {
	ttl := cfg.RefreshTokenTTL()
	accessTTL := time.Duration(cfg.ExpirationMinutes) * time.Minute
	if ttl <= 0 {
		return nil, errors.New("refresh token ttl must be positive")
	}
	if ttl <= accessTTL {
		return nil, fmt.Errorf("refresh token ttl (%s) must exceed access token ttl (%s)", ttl, accessTTL)
	}
	return &Manager{store: s, ttl: ttl, now: time.Now}, nil
}

// Generate opens a session for accessID and returns its refresh token.
func (m *Manager) Generate(ctx context.Context, accessID string, userID uuid.UUID, role enums.UserRole) (string, error) {
	if strings.TrimSpace(accessID) == "" {
		return "", errAccessIDRequired
	}
	if userID == uuid.Nil {
		return "", errors.New("user id is required")
	}
	next, err := m.issue(accessID, userID, role)
	if err != nil {
		return "", err
	}
	if _, err := m.save(ctx, next); err != nil {
		return "", err
	}
	return next.RefreshToken, nil
}

// Rotate exchanges a refresh token for a new session. The old record is
// claimed with a compare-and-delete, so when the same token is presented
// twice concurrently exactly one caller wins.
func (m *Manager) Rotate(ctx context.Context, oldAccessID, provided string) (*Session, error) {
	if strings.TrimSpace(oldAccessID) == "" || strings.TrimSpace(provided) == "" {
		return nil, ErrInvalidRefreshToken
	}

	key := m.store.AccessSessionKey(oldAccessID)
	raw, err := m.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	var current Session
	if err := json.Unmarshal([]byte(raw), &current); err != nil {
		return nil, ErrInvalidRefreshToken
	}
	if subtle.ConstantTimeCompare([]byte(current.TokenDigest), []byte(digest(provided))) != 1 {
		return nil, ErrInvalidRefreshToken
	}

	claimed, err := m.store.DelIfValue(ctx, key, raw)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrInvalidRefreshToken
	}

	next, err := m.issue(uuid.NewString(), current.UserID, current.Role)
	if err != nil {
		return nil, err
	}
	if _, err := m.save(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return errAccessIDRequired
	}
	return m.store.Del(ctx, m.store.AccessSessionKey(accessID))
}

// HasSession reports whether accessID still has a refresh session.
func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	if strings.TrimSpace(accessID) == "" {
		return false, errAccessIDRequired
	}
	_, err := m.store.Get(ctx, m.store.AccessSessionKey(accessID))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, err
	}
}

// NewAccessID mints the id shared by a JWT's jti and its session key.
func NewAccessID() string {
	return uuid.NewString()
}

func (m *Manager) issue(accessID string, userID uuid.UUID, role enums.UserRole) (*Session, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	return &Session{
		AccessID:     accessID,
		UserID:       userID,
		Role:         role,
		RefreshToken: token,
		TokenDigest:  digest(token),
		IssuedAt:     m.now().UTC(),
	}, nil
}

func (m *Manager) save(ctx context.Context, s *Session) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	if err := m.store.Set(ctx, m.store.AccessSessionKey(s.AccessID), string(raw), m.ttl); err != nil {
		return "", err
	}
	return string(raw), nil
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
