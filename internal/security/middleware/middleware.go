package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/yourorg/fleetrent/internal/security/audit"
	"github.com/yourorg/fleetrent/internal/security/auth"
	"github.com/yourorg/fleetrent/internal/security/ratelimit"
)

type ClaimsContextKey struct{}

// isPublic reports whether a request needs no token: health, metrics, auth
// endpoints, CORS preflights and the read-only browsing surface of the public
// booking flow. Browsers send preflights without an Authorization header, so
// OPTIONS must never be challenged.
func isPublic(r *http.Request) bool {
	if r.Method == http.MethodOptions {
		return true
	}
	path := r.URL.Path
	switch path {
	case "/healthz", "/readyz", "/metrics":
		return true
	}
	if strings.HasPrefix(path, "/api/auth/") {
		return true
	}
	if r.Method == http.MethodGet {
		for _, prefix := range []string{"/api/vehicles", "/api/models", "/api/brands", "/api/insurance", "/api/branches"} {
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				return true
			}
		}
	}
	return false
}

// JWTMiddleware authenticates requests and stashes the token claims in the
// request context. The claims carry identity only; roles are re-read from
// the user store by the service layer.
func JWTMiddleware(tm *auth.TokenManager, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublic(r) {
				// Public routes still attach claims when a valid token
				// rides along, so staff-only reads under the public
				// prefixes can authorize.
				if authHeader := r.Header.Get("Authorization"); authHeader != "" {
					if tokenString, err := auth.ExtractToken(authHeader); err == nil {
						if claims, err := tm.ValidateToken(tokenString); err == nil {
							r = r.WithContext(context.WithValue(r.Context(), ClaimsContextKey{}, claims))
						}
					}
				}
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"success":false,"error":"missing authorization"}`, http.StatusUnauthorized)
				return
			}

			tokenString, err := auth.ExtractToken(authHeader)
			if err != nil {
				http.Error(w, `{"success":false,"error":"invalid authorization"}`, http.StatusUnauthorized)
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				http.Error(w, `{"success":false,"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware throttles mutating requests per caller. Reads stay
// unthrottled so the public catalog remains cheap to browse.
func RateLimitMiddleware(limiter *ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodDelete:
			default:
				next.ServeHTTP(w, r)
				return
			}

			if !limiter.Allow(callerKey(r)) {
				log.Warn("rate limit exceeded",
					slog.String("path", r.URL.Path),
					slog.String("caller", callerKey(r)),
				)
				http.Error(w, `{"success":false,"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AuditMiddleware records every mutating request against the reservation and
// vehicle surfaces before it is handled.
func AuditMiddleware(auditLog *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodDelete {
				userID := int64(0)
				if claims := GetClaimsFromContext(r.Context()); claims != nil {
					userID = claims.UserID
				}
				resource := ""
				switch {
				case strings.HasPrefix(r.URL.Path, "/api/reservations"):
					resource = "reservation"
				case strings.HasPrefix(r.URL.Path, "/api/vehicles"):
					resource = "vehicle"
				}
				if resource != "" {
					auditLog.LogAction(r.Context(), userID, strings.ToLower(r.Method), resource, resourceIDFromPath(r.URL.Path), "initiated", r.URL.Path)
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetClaimsFromContext returns the authenticated claims, or nil for public
// requests.
func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	if c := ctx.Value(ClaimsContextKey{}); c != nil {
		return c.(*auth.Claims)
	}
	return nil
}

// resourceIDFromPath pulls the identifier segment out of /api/<resource>/<id>
// style paths. Audit runs before mux routing, so r.PathValue is not usable
// here.
func resourceIDFromPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 3 && parts[0] == "api" {
		return parts[2]
	}
	return ""
}

func callerKey(r *http.Request) string {
	if claims := GetClaimsFromContext(r.Context()); claims != nil {
		return "user:" + claims.Email
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
