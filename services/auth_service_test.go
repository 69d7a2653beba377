package services

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/akinalp/mqvi-gateway/database"
	"github.com/akinalp/mqvi-gateway/models"
	"github.com/akinalp/mqvi-gateway/pkg"
	"github.com/akinalp/mqvi-gateway/pkg/logger"
	"github.com/akinalp/mqvi-gateway/repository"
)

const testSecret = "test-secret-with-enough-entropy"

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "gateway.db"), database.Migrations(), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedUser(t *testing.T, repo repository.UserRepository, username, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	email := username + "@example.com"
	u := &models.User{Username: username, Email: &email, PasswordHash: string(hash)}
	require.NoError(t, repo.Create(t.Context(), u))
	return u
}

func newTestAuth(t *testing.T) (AuthService, SessionService, *models.User) {
	t.Helper()
	db := newTestDB(t)
	users := repository.NewSQLiteUserRepo(db.Conn)
	alice := seedUser(t, users, "alice", "correct horse")

	st, cfg, _ := newTestRegistry(t)
	sessions := NewSessionService(st, cfg, logger.Discard())

	return NewAuthService(users, sessions, testSecret, 15*time.Minute, logger.Discard()), sessions, alice
}

func TestAuthService_LoginIssuesSessionBoundToken(t *testing.T) {
	ctx := t.Context()
	auth, sessions, alice := newTestAuth(t)

	tokens, err := auth.Login(ctx, &models.LoginRequest{Username: "alice", Password: "correct horse", DeviceInfo: "phone"}, "10.0.0.7")
	require.NoError(t, err)
	assert.Empty(t, tokens.User.PasswordHash)
	require.NotNil(t, tokens.Session)
	assert.Equal(t, "10.0.0.7", tokens.Session.IPAddress)
	assert.Equal(t, "alice@example.com", tokens.Session.Email)

	claims, err := auth.ValidateAccessToken(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, tokens.Session.ID, claims.SessionID)

	_, err = sessions.ValidateSession(ctx, claims.SessionID)
	require.NoError(t, err)

	require.NoError(t, auth.Logout(ctx, claims.SessionID))
	_, err = sessions.ValidateSession(ctx, claims.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAuthService_LoginRejectsBadCredentials(t *testing.T) {
	ctx := t.Context()
	auth, _, _ := newTestAuth(t)

	_, err := auth.Login(ctx, &models.LoginRequest{Username: "alice", Password: "wrong"}, "")
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)

	_, err = auth.Login(ctx, &models.LoginRequest{Username: "nobody", Password: "x"}, "")
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)

	_, err = auth.Login(ctx, &models.LoginRequest{Username: " ", Password: "x"}, "")
	assert.ErrorIs(t, err, pkg.ErrBadRequest)
}

func TestAuthService_ValidateAccessTokenRejects(t *testing.T) {
	auth, _, _ := newTestAuth(t)

	sign := func(method jwt.SigningMethod, key any, claims *models.TokenClaims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}

	valid := &models.TokenClaims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	expired := &models.TokenClaims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}

	_, err := auth.ValidateAccessToken(sign(jwt.SigningMethodHS256, []byte(testSecret), valid))
	require.NoError(t, err)

	cases := map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": sign(jwt.SigningMethodHS256, []byte("other"), valid),
		"expired":      sign(jwt.SigningMethodHS256, []byte(testSecret), expired),
		"none alg":     sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid),
		"no user id":   sign(jwt.SigningMethodHS256, []byte(testSecret), &models.TokenClaims{}),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := auth.ValidateAccessToken(token)
			assert.ErrorIs(t, err, pkg.ErrUnauthorized)
		})
	}
}

func TestAuthService_RevokeOtherSessions(t *testing.T) {
	ctx := t.Context()
	auth, _, alice := newTestAuth(t)

	req := func() *models.LoginRequest {
		return &models.LoginRequest{Username: "alice", Password: "correct horse"}
	}
	first, err := auth.Login(ctx, req(), "")
	require.NoError(t, err)
	_, err = auth.Login(ctx, req(), "")
	require.NoError(t, err)
	_, err = auth.Login(ctx, req(), "")
	require.NoError(t, err)

	list, err := auth.ListSessions(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	n, err := auth.RevokeOtherSessions(ctx, alice.ID, first.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err = auth.ListSessions(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, first.Session.ID, list[0].ID)
}
