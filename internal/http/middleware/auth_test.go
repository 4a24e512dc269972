// README: Tests for auth middleware and role gating.
package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"platera/internal/auth"
	"platera/internal/http/middleware"
	"platera/internal/types"
)

// stubVerifier is a test double for auth.Verifier.
type stubVerifier struct {
	ident auth.Identity
	err   error
}

func (s *stubVerifier) Verify(string) (auth.Identity, error) {
	return s.ident, s.err
}

func newTestRouter(verifier auth.Verifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Auth(verifier))
	r.GET("/test", func(c *gin.Context) {
		ident := middleware.CallerIdentity(c)
		c.JSON(http.StatusOK, gin.H{"user": ident.UserID, "role": ident.Role})
	})
	r.GET("/courier-only", middleware.RequireRole(types.RoleCourier), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestAuthMissingHeader(t *testing.T) {
	r := newTestRouter(&stubVerifier{ident: auth.Identity{UserID: "u1", Role: types.RoleCustomer}})
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuthInvalidBearerPrefix(t *testing.T) {
	r := newTestRouter(&stubVerifier{ident: auth.Identity{UserID: "u1", Role: types.RoleCustomer}})
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Token sometoken")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuthRejectedToken(t *testing.T) {
	r := newTestRouter(&stubVerifier{err: auth.ErrInvalidToken})
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer bad")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuthSetsIdentity(t *testing.T) {
	r := newTestRouter(&stubVerifier{ident: auth.Identity{UserID: "u1", Role: types.RoleCustomer}})
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRequireRole(t *testing.T) {
	cases := []struct {
		role types.Role
		want int
	}{
		{types.RoleCourier, http.StatusOK},
		{types.RoleCustomer, http.StatusForbidden},
		{types.RoleManager, http.StatusForbidden},
	}
	for _, tc := range cases {
		r := newTestRouter(&stubVerifier{ident: auth.Identity{UserID: "u1", Role: tc.role}})
		req := httptest.NewRequest(http.MethodGet, "/courier-only", nil)
		req.Header.Set("Authorization", "Bearer good")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Errorf("role %s: expected %d, got %d", tc.role, tc.want, w.Code)
		}
	}
}
