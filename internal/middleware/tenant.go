package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mtlprog/flowtrack/internal/handler/dto"
)

type contextKey string

const (
	// ContextKeyTenant is the key for storing the caller's tenant in request context.
	ContextKeyTenant contextKey = "tenant"
)

// Identity headers set by the upstream gateway after authentication.
const (
	HeaderOrganizationID = "X-Organization-ID"
	HeaderUserID         = "X-User-ID"
)

// Tenant identifies the calling organization and user.
type Tenant struct {
	OrganizationID string
	UserID         string
}

// TenantMiddleware reads caller identity from gateway headers.
type TenantMiddleware struct{}

// NewTenantMiddleware creates a new TenantMiddleware.
func NewTenantMiddleware() *TenantMiddleware {
	return &TenantMiddleware{}
}

// Require validates the identity headers and adds the tenant to request context.
// Requests without a valid organization and user are rejected with 401.
func (m *TenantMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		organizationID, ok := headerUUID(r, HeaderOrganizationID)
		if !ok {
			unauthorized(w, "missing or invalid "+HeaderOrganizationID+" header")
			return
		}

		userID, ok := headerUUID(r, HeaderUserID)
		if !ok {
			unauthorized(w, "missing or invalid "+HeaderUserID+" header")
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeyTenant, Tenant{
			OrganizationID: organizationID,
			UserID:         userID,
		})

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// headerUUID returns the canonical form of a UUID header value.
func headerUUID(r *http.Request, name string) (string, bool) {
	value := strings.TrimSpace(r.Header.Get(name))
	if value == "" {
		return "", false
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	if err := json.NewEncoder(w).Encode(dto.NewErrorResponse("UNAUTHENTICATED", message)); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// GetTenantFromContext retrieves the caller's tenant from request context.
func GetTenantFromContext(ctx context.Context) (Tenant, bool) {
	tenant, ok := ctx.Value(ContextKeyTenant).(Tenant)
	return tenant, ok && tenant.OrganizationID != ""
}
