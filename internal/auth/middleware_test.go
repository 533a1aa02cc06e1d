package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/techhaven/backend-pos/internal/common"
	"github.com/techhaven/backend-pos/internal/store/memory"
)

func issueToken(t *testing.T, svc *Service, role string) string {
	t.Helper()
	ctx := context.Background()
	_, err := svc.Register(ctx, "staff-"+role, "", role, "correct horse")
	require.NoError(t, err)
	result, err := svc.Login(ctx, "staff-"+role, "correct horse")
	require.NoError(t, err)
	return result.AccessToken
}

func TestRequireAuth(t *testing.T) {
	svc, err := NewService(Config{Staff: memory.New(), Secret: "test-secret"})
	require.NoError(t, err)
	mw := Middleware{Service: svc}

	var seenID int64
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID, _ = common.StaffID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	protected := mw.RequireAuth(next)

	rr := httptest.NewRecorder()
	protected.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	token := issueToken(t, svc, RoleCashier)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	protected.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotZero(t, seenID)
}

func TestRequireRole(t *testing.T) {
	svc, err := NewService(Config{Staff: memory.New(), Secret: "test-secret"})
	require.NoError(t, err)
	mw := Middleware{Service: svc}

	adminOnly := mw.RequireRole(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	cashierToken := issueToken(t, svc, RoleCashier)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+cashierToken)
	rr := httptest.NewRecorder()
	adminOnly.ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)

	adminToken := issueToken(t, svc, RoleAdmin)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rr = httptest.NewRecorder()
	adminOnly.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}
