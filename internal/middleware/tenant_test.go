package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtlprog/flowtrack/internal/middleware"
)

const (
	orgID  = "3f1b6a52-8a3e-4c36-9a44-0d1c1b0e6f10"
	userID = "9b2c8e0a-5d7f-4e21-8c3b-6a4f2e1d0c9b"
)

func TestTenantMiddleware_Require(t *testing.T) {
	tests := []struct {
		name       string
		org        string
		user       string
		wantStatus int
	}{
		{name: "valid identity", org: orgID, user: userID, wantStatus: http.StatusNoContent},
		{name: "uppercase identity is canonicalized", org: "3F1B6A52-8A3E-4C36-9A44-0D1C1B0E6F10", user: userID, wantStatus: http.StatusNoContent},
		{name: "missing organization", user: userID, wantStatus: http.StatusUnauthorized},
		{name: "missing user", org: orgID, wantStatus: http.StatusUnauthorized},
		{name: "organization not a uuid", org: "acme", user: userID, wantStatus: http.StatusUnauthorized},
		{name: "user not a uuid", org: orgID, user: "42", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got middleware.Tenant
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				tenant, ok := middleware.GetTenantFromContext(r.Context())
				require.True(t, ok)
				got = tenant
				w.WriteHeader(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
			if tt.org != "" {
				req.Header.Set(middleware.HeaderOrganizationID, tt.org)
			}
			if tt.user != "" {
				req.Header.Set(middleware.HeaderUserID, tt.user)
			}
			w := httptest.NewRecorder()

			middleware.NewTenantMiddleware().Require(next).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusNoContent {
				assert.Equal(t, orgID, got.OrganizationID)
				assert.Equal(t, userID, got.UserID)
			} else {
				assert.Contains(t, w.Body.String(), "UNAUTHENTICATED")
			}
		})
	}
}

func TestGetTenantFromContext_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := middleware.GetTenantFromContext(req.Context())
	assert.False(t, ok)
}
