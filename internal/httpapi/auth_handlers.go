package httpapi

import (
	"net/http"
	"time"

	"datavault.org/internal/audit"
	"datavault.org/internal/auth"
)

const sessionCookieMaxAge = 7 * 24 * 60 * 60 // seconds

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginData struct {
	Token string    `json:"token"`
	User  auth.User `json:"user"`
}

// handleLogin verifies credentials and mints a token. The token travels both
// ways: in the response body for API clients and in a session cookie for
// browsers. The cookie outlives the token so clients hold a sliding window in
// which to refresh.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	user, token, err := a.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		auditCtx := audit.WithRequestID(r.Context(), RequestIDFromContext(r.Context()))
		_ = audit.LogEvent(auditCtx, "auth.login_failed", map[string]any{
			"username": req.Username,
			"remote":   clientIP(r),
		})
		handleAuthError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   sessionCookieMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	auditCtx := audit.WithRequestID(auth.ContextWithUser(r.Context(), user), RequestIDFromContext(r.Context()))
	_ = audit.LogEvent(auditCtx, "auth.login", map[string]any{
		"remote": clientIP(r),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"code": http.StatusOK,
		"data": loginData{Token: token, User: user},
		"msg":  "success",
	})
}

// handleLogout clears the session cookie. The token itself stays valid until
// expiry; there is no server-side revocation list.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	// best-effort identity for the audit trail; logout works without one
	if token, ok := extractToken(r); ok {
		if user, _, err := a.auth.Authenticate(r.Context(), token); err == nil {
			auditCtx := audit.WithRequestID(auth.ContextWithUser(r.Context(), user), RequestIDFromContext(r.Context()))
			_ = audit.LogEvent(auditCtx, "auth.logout", nil)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"code": http.StatusOK,
		"msg":  "success",
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "no credential presented")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleMeGroups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "no credential presented")
		return
	}
	groups, err := a.auth.GroupsForUsers(r.Context(), []int64{user.ID}, true)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	// one id in, exactly one entry out
	writeJSON(w, http.StatusOK, groups[0].Groups)
}

func (a *API) handleMePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "no credential presented")
		return
	}
	perms, err := a.auth.PermissionsFor(r.Context(), user.ID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, perms)
}
