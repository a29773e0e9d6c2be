package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"compass/config"
	"compass/core"
	"compass/handlers/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protected(t *testing.T) (http.Handler, *auth.Auth) {
	t.Helper()
	a := auth.InitAuth(context.Background(), config.AuthConfig{JWTSecret: "secret"})
	h := AuthJWT(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := UserIDFromContext(r.Context())
		require.True(t, ok)
		w.Write([]byte(id))
	}))
	return h, a
}

func TestAuthJWTBearer(t *testing.T) {
	h, a := protected(t)
	token, err := a.CreateJWT(&core.User{Subject: "user-1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "user-1", rr.Body.String())
}

func TestAuthJWTCookie(t *testing.T) {
	h, a := protected(t)
	token, err := a.CreateJWT(&core.User{Subject: "user-2"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: auth.TokenCookie, Value: token})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "user-2", rr.Body.String())
}

func TestAuthJWTRejects(t *testing.T) {
	h, _ := protected(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"malformed", "Token abc"},
		{"invalid", "Bearer abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Contains(t, rr.Body.String(), "error")
		})
	}
}

func TestUserIDFromContextEmpty(t *testing.T) {
	_, ok := UserIDFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithClaims(context.Background(), &auth.AppClaims{})
	_, ok = UserIDFromContext(ctx)
	assert.False(t, ok)
}
