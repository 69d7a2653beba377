package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/mqvi-gateway/handlers"
	"github.com/akinalp/mqvi-gateway/models"
	"github.com/akinalp/mqvi-gateway/pkg"
)

type stubTokens map[string]*models.TokenClaims

func (s stubTokens) ValidateAccessToken(token string) (*models.TokenClaims, error) {
	if c, ok := s[token]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: invalid token", pkg.ErrUnauthorized)
}

type stubSessions struct{ err error }

func (s stubSessions) ValidateSession(_ context.Context, id string) (*models.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Session{ID: id}, nil
}

func serve(t *testing.T, m *AuthMiddleware, header string) (*httptest.ResponseRecorder, *models.TokenClaims) {
	t.Helper()
	var got *models.TokenClaims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = handlers.ClaimsFrom(r)
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	m.Require(next).ServeHTTP(rec, req)
	return rec, got
}

func TestRequire(t *testing.T) {
	tokens := stubTokens{
		"plain": {UserID: "u1", Username: "alice"},
		"bound": {UserID: "u2", Username: "bob", SessionID: "s2"},
	}

	tests := []struct {
		name     string
		header   string
		sessions stubSessions
		status   int
		userID   string
	}{
		{"missing header", "", stubSessions{}, http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic abc", stubSessions{}, http.StatusUnauthorized, ""},
		{"invalid token", "Bearer nope", stubSessions{}, http.StatusUnauthorized, ""},
		{"token without session", "Bearer plain", stubSessions{err: errors.New("unused")}, http.StatusNoContent, "u1"},
		{"live session", "Bearer bound", stubSessions{}, http.StatusNoContent, "u2"},
		{"expired session", "Bearer bound", stubSessions{err: fmt.Errorf("%w: session", pkg.ErrNotFound)}, http.StatusUnauthorized, ""},
		{"store down", "Bearer bound", stubSessions{err: fmt.Errorf("%w: get", pkg.ErrStoreUnavailable)}, http.StatusServiceUnavailable, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, claims := serve(t, NewAuthMiddleware(tokens, tt.sessions), tt.header)
			assert.Equal(t, tt.status, rec.Code)
			if tt.userID == "" {
				assert.Nil(t, claims)
				return
			}
			require.NotNil(t, claims)
			assert.Equal(t, tt.userID, claims.UserID)
		})
	}
}
