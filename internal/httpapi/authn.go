package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"datavault.org/internal/auth"
	"datavault.org/internal/obs"
)

const (
	tokenCookieName = "token"
	authHeader      = "Authorization"
	bearerPrefix    = "Bearer "
)

// extractToken pulls the raw credential out of the request: the "token"
// cookie wins; the Authorization header is the fallback. Purely syntactic —
// no decoding happens here. ok=false means no credential was presented,
// which is not an error at this layer.
func extractToken(r *http.Request) (string, bool) {
	if c, err := r.Cookie(tokenCookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	header := r.Header.Get(authHeader)
	if strings.HasPrefix(header, bearerPrefix) {
		token := header[len(bearerPrefix):]
		if token != "" {
			return token, true
		}
	}
	return "", false
}

// requireAuth gates a handler behind authentication and, when permission is
// non-empty, behind the caller's live effective permission set. Construction
// is pure wiring: every fallible step — extraction, decode, user load, the
// permission query — runs inside the per-request handler, so the wrapping
// layer is always ready to accept the next request no matter what any
// in-flight authorization is doing.
//
// Per request: extract → decode → load live user → active check →
// (permission check) → attach identity → forward. Any rejection writes the
// structured error envelope and the wrapped handler never runs.
func (a *API) requireAuth(permission string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := extractToken(r)
		if !ok {
			rejectAuth(w, r, auth.ErrUnauthorized)
			return
		}

		user, _, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			rejectAuth(w, r, err)
			return
		}

		if permission != "" {
			// Gate on the live graph, not the token's snapshot: grants and
			// revocations apply to every request after they land.
			if err := a.auth.RequirePermission(r.Context(), user.ID, permission); err != nil {
				rejectAuth(w, r, err)
				return
			}
		}

		ctx := auth.ContextWithUser(r.Context(), user)
		ctx = auth.ContextWithToken(ctx, token)
		next(w, r.WithContext(ctx))
	}
}

// rejectAuth counts the rejection and converts it to the wire taxonomy.
func rejectAuth(w http.ResponseWriter, r *http.Request, err error) {
	obs.CountAuthRejection(rejectionReason(err))
	handleAuthError(w, r, err)
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, auth.ErrNotFound):
		return "user_not_found"
	case errors.Is(err, auth.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, auth.ErrUserNotActive):
		return "user_not_active"
	case errors.Is(err, auth.ErrPermissionDenied):
		return "permission_denied"
	default:
		return "internal"
	}
}
