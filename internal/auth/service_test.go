package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgAuth "github.com/angelmondragon/beatstore-backend/pkg/auth"
	"github.com/angelmondragon/beatstore-backend/pkg/auth/session"
	"github.com/angelmondragon/beatstore-backend/pkg/config"
	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	"github.com/angelmondragon/beatstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
	"github.com/angelmondragon/beatstore-backend/pkg/security"
)

var testJWTConfig = config.JWTConfig{
	Secret:            "secret",
	Issuer:            "beatstore",
	ExpirationMinutes: 30,
}

func TestServiceLoginIssuesTokens(t *testing.T) {
	password := "drums-and-bass"
	user := &models.User{
		ID:           uuid.New(),
		Username:     "buyer",
		Email:        "buyer@example.com",
		PasswordHash: mustHashPassword(t, password),
		Role:         enums.UserRoleBuyer,
		IsActive:     true,
	}

	svc, sessions, err := buildTestService(user)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	resp, err := svc.Login(context.Background(), LoginRequest{Email: "Buyer@Example.com", Password: password})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	claims, err := pkgAuth.ParseAccessToken(testJWTConfig, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != user.ID || claims.Role != enums.UserRoleBuyer {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if resp.RefreshToken != "refresh-token" {
		t.Fatalf("expected refresh token from session manager, got %q", resp.RefreshToken)
	}
	if sessions.generatedFor != claims.ID {
		t.Fatalf("session must be keyed by the token id, got %q want %q", sessions.generatedFor, claims.ID)
	}
	if user.LastLoginAt == nil {
		t.Fatal("expected last login to be recorded")
	}
}

func TestServiceLoginByUsername(t *testing.T) {
	password := "drums-and-bass"
	user := &models.User{
		ID:           uuid.New(),
		Username:     "producer",
		Email:        "producer@example.com",
		PasswordHash: mustHashPassword(t, password),
		Role:         enums.UserRoleAdmin,
		IsActive:     true,
	}
	svc, _, err := buildTestService(user)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	resp, err := svc.Login(context.Background(), LoginRequest{Username: "producer", Password: password})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.User.Role != enums.UserRoleAdmin {
		t.Fatalf("expected admin user, got %s", resp.User.Role)
	}
}

func TestServiceLoginRejectsBadCredentials(t *testing.T) {
	password := "drums-and-bass"
	active := &models.User{
		ID:           uuid.New(),
		Email:        "buyer@example.com",
		PasswordHash: mustHashPassword(t, password),
		Role:         enums.UserRoleBuyer,
		IsActive:     true,
	}
	inactive := *active
	inactive.IsActive = false

	cases := []struct {
		name string
		user *models.User
		req  LoginRequest
	}{
		{name: "wrong password", user: active, req: LoginRequest{Email: active.Email, Password: "nope-nope"}},
		{name: "unknown user", user: nil, req: LoginRequest{Email: "ghost@example.com", Password: password}},
		{name: "inactive", user: &inactive, req: LoginRequest{Email: active.Email, Password: password}},
		{name: "no identifier", user: active, req: LoginRequest{Password: password}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _, err := buildTestService(tc.user)
			if err != nil {
				t.Fatalf("build service: %v", err)
			}
			_, err = svc.Login(context.Background(), tc.req)
			typed := pkgerrors.As(err)
			if typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
				t.Fatalf("expected unauthorized error, got %v", err)
			}
			if typed.Message() != invalidCredentialsMessage {
				t.Fatalf("expected uniform message, got %q", typed.Message())
			}
		})
	}
}

func TestServiceRefreshRotatesSession(t *testing.T) {
	user := &models.User{ID: uuid.New(), Email: "buyer@example.com", Role: enums.UserRoleBuyer, IsActive: true}
	svc, sessions, err := buildTestService(user)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	sessions.userID = user.ID
	sessions.role = user.Role
	expired := config.JWTConfig{Secret: testJWTConfig.Secret, Issuer: testJWTConfig.Issuer, ExpirationMinutes: 1}
	oldToken, err := pkgAuth.MintAccessToken(expired, time.Now().Add(-time.Hour), pkgAuth.AccessTokenPayload{
		UserID: user.ID,
		Role:   user.Role,
		JTI:    "old-access",
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	pair, err := svc.Refresh(context.Background(), oldToken, "refresh-token")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if sessions.rotatedFrom != "old-access" {
		t.Fatalf("expected rotation of old-access, got %q", sessions.rotatedFrom)
	}
	claims, err := pkgAuth.ParseAccessToken(testJWTConfig, pair.AccessToken)
	if err != nil {
		t.Fatalf("parse refreshed token: %v", err)
	}
	if claims.ID != "new-access" || pair.RefreshToken != "rotated-token" {
		t.Fatalf("unexpected pair %+v claims %+v", pair, claims)
	}

	if _, err := svc.Refresh(context.Background(), oldToken, "stolen"); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for mismatched refresh token, got %v", err)
	}
}

func TestServiceLoginUpgradesLegacyHash(t *testing.T) {
	user := &models.User{
		ID:       uuid.New(),
		Username: "oldtimer",
		Email:    "oldtimer@example.com",
		// pbkdf2_sha256 hash of "legacy-beats-pass" carried over from an import.
		PasswordHash: "pbkdf2_sha256$1000$seasalt123$ST2ki1z9PUF4sI0pJYCCIgL+llDZg40shvGVRBgJ10I=",
		Role:         enums.UserRoleBuyer,
		IsActive:     true,
	}
	svc, _, err := buildTestService(user)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	if _, err := svc.Login(context.Background(), LoginRequest{Username: "oldtimer", Password: "legacy-beats-pass"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if security.NeedsRehash(user.PasswordHash, config.PasswordConfig{}) {
		t.Fatalf("expected hash upgraded to argon2id, got %q", user.PasswordHash)
	}
	ok, err := security.VerifyPassword("legacy-beats-pass", user.PasswordHash)
	if err != nil || !ok {
		t.Fatalf("upgraded hash must still verify: ok=%v err=%v", ok, err)
	}
}

func TestServiceLogoutRevokesSession(t *testing.T) {
	user := &models.User{ID: uuid.New(), Role: enums.UserRoleBuyer, IsActive: true}
	svc, sessions, err := buildTestService(user)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	token, err := pkgAuth.MintAccessToken(testJWTConfig, time.Now(), pkgAuth.AccessTokenPayload{UserID: user.ID, Role: user.Role, JTI: "live-access"})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := svc.Logout(context.Background(), token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if sessions.revoked != "live-access" {
		t.Fatalf("expected live-access revoked, got %q", sessions.revoked)
	}
	if err := svc.Logout(context.Background(), "garbage"); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for garbage token, got %v", err)
	}
}

func buildTestService(user *models.User) (Service, *stubSessionManager, error) {
	sessionMgr := &stubSessionManager{refreshToken: "refresh-token"}
	svc, err := NewService(ServiceParams{
		UserRepo:       stubUserRepo{user: user},
		SessionManager: sessionMgr,
		JWTConfig:      testJWTConfig,
	})
	return svc, sessionMgr, err
}

func mustHashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := security.HashPassword(password, config.PasswordConfig{})
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return hash
}

type stubUserRepo struct {
	user *models.User
}

func (s stubUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, gorm.ErrRecordNotFound
	}
	return s.user, nil
}

func (s stubUserRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	if s.user == nil || s.user.Username != username {
		return nil, gorm.ErrRecordNotFound
	}
	return s.user, nil
}

func (s stubUserRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return s.user, nil
}

func (s stubUserRepo) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	if s.user == nil || s.user.ID != id {
		return gorm.ErrRecordNotFound
	}
	s.user.PasswordHash = hash
	return nil
}

func (s stubUserRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	if s.user != nil && s.user.ID == id {
		s.user.LastLoginAt = &at
	}
	return nil
}

type stubSessionManager struct {
	refreshToken string
	generatedFor string
	rotatedFrom  string
	revoked      string
	userID       uuid.UUID
	role         enums.UserRole
}

func (s *stubSessionManager) Generate(ctx context.Context, accessID string, userID uuid.UUID, role enums.UserRole) (string, error) {
	s.generatedFor = accessID
	s.userID = userID
	s.role = role
	return s.refreshToken, nil
}

func (s *stubSessionManager) Rotate(ctx context.Context, oldAccessID, provided string) (*session.Session, error) {
	if provided != s.refreshToken {
		return nil, session.ErrInvalidRefreshToken
	}
	s.rotatedFrom = oldAccessID
	return &session.Session{AccessID: "new-access", UserID: s.userID, Role: s.role, RefreshToken: "rotated-token"}, nil
}

func (s *stubSessionManager) Revoke(ctx context.Context, accessID string) error {
	s.revoked = accessID
	return nil
}
