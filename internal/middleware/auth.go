package middleware

import (
	"net/http"

	"github.com/rpattn/stockflow/internal/auth"

	"github.com/google/uuid"
)

const (
	tenantHeader = "X-Tenant-ID"
	userHeader   = "X-User-ID"
)

// TenantMiddleware lifts the tenant and user identity headers into the
// request context. Requests without a valid tenant header are rejected.
func TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := uuid.Parse(r.Header.Get(tenantHeader))
		if err != nil || tenantID == uuid.Nil {
			http.Error(w, "missing or invalid "+tenantHeader+" header", http.StatusUnauthorized)
			return
		}
		ctx := auth.ContextWithTenantID(r.Context(), tenantID)

		if userID, err := uuid.Parse(r.Header.Get(userHeader)); err == nil && userID != uuid.Nil {
			ctx = auth.ContextWithUserID(ctx, userID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
