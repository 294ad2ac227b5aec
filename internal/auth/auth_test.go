package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	iss, err := NewIssuer("s3cret-value", time.Hour)
	require.NoError(t, err)

	token, err := iss.Issue("user-1")
	require.NoError(t, err)

	id, err := iss.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id)
}

func TestParseRejects(t *testing.T) {
	iss, err := NewIssuer("s3cret-value", time.Hour)
	require.NoError(t, err)
	other, err := NewIssuer("another-secret", time.Hour)
	require.NoError(t, err)

	foreign, err := other.Issue("user-1")
	require.NoError(t, err)

	expired, err := NewIssuer("s3cret-value", time.Minute)
	require.NoError(t, err)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, err := expired.Issue("user-1")
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": foreign,
		"expired":      old,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := iss.Parse(tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestNewIssuerDefaults(t *testing.T) {
	_, err := NewIssuer("", time.Hour)
	assert.ErrorIs(t, err, ErrEmptySecret)

	iss, err := NewIssuer("x", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenTTL, iss.ttl)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", hash)

	assert.NoError(t, CheckPassword(hash, "hunter22"))
	assert.ErrorIs(t, CheckPassword(hash, "wrong"), ErrInvalidCredentials)
}

type fakeUsers map[string]bool

func (f fakeUsers) UserExists(_ context.Context, id string) (bool, error) {
	if id == "broken" {
		return false, errors.New("db down")
	}
	return f[id], nil
}

func TestMiddleware(t *testing.T) {
	iss, err := NewIssuer("s3cret-value", time.Hour)
	require.NoError(t, err)
	good, _ := iss.Issue("u1")
	gone, _ := iss.Issue("u2")

	var seen string
	h := Middleware(iss, fakeUsers{"u1": true}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"no header", "", http.StatusUnauthorized, "Not authorized, no token"},
		{"not bearer", "Basic abc", http.StatusUnauthorized, "Not authorized, no token"},
		{"bad token", "Bearer nope", http.StatusUnauthorized, "Not authorized, token failed"},
		{"unknown user", "Bearer " + gone, http.StatusUnauthorized, "User not found"},
		{"ok", "Bearer " + good, http.StatusNoContent, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Contains(t, rec.Body.String(), tt.body)
				assert.Empty(t, seen)
			} else {
				assert.Equal(t, "u1", seen)
			}
		})
	}
}
