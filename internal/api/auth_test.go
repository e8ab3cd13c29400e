package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookline/booking-engine/internal/booking"
)

func okHandler(captured *Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := IdentityFrom(r.Context()); ok && captured != nil {
			*captured = id
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuthAcceptsValidToken(t *testing.T) {
	auth := NewAuthenticator("test-secret")
	want := Identity{UserID: uuid.New(), Email: "dana@example.com", Role: booking.RoleUser}

	token, err := auth.IssueToken(want, time.Hour)
	require.NoError(t, err)

	var got Identity
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	auth.RequireAuth(okHandler(&got)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, want, got)
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	auth := NewAuthenticator("test-secret")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	auth.RequireAuth(okHandler(nil)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthRejectsForgedToken(t *testing.T) {
	auth := NewAuthenticator("test-secret")
	other := NewAuthenticator("other-secret")

	token, err := other.IssueToken(Identity{UserID: uuid.New()}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	auth.RequireAuth(okHandler(nil)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthRejectsExpiredToken(t *testing.T) {
	auth := NewAuthenticator("test-secret")

	token, err := auth.IssueToken(Identity{UserID: uuid.New()}, -time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	auth.RequireAuth(okHandler(nil)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAdmin(t *testing.T) {
	auth := NewAuthenticator("test-secret")
	chain := func(role booking.Role) int {
		token, err := auth.IssueToken(Identity{UserID: uuid.New(), Role: role}, time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		auth.RequireAuth(auth.RequireAdmin(okHandler(nil))).ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, chain(booking.RoleAdmin))
	assert.Equal(t, http.StatusForbidden, chain(booking.RoleUser))
}
