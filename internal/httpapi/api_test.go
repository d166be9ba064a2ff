package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"datavault.org/internal/auth"
)

func TestHealthz(t *testing.T) {
	a := newTestAPI(t, activeUserStore())
	rec := httptest.NewRecorder()
	a.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected status field: %v", body["status"])
	}
}

func TestReadyWithoutDB(t *testing.T) {
	a := newTestAPI(t, activeUserStore())
	rec := httptest.NewRecorder()
	a.Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func loginStore(t *testing.T) *fakeStore {
	t.Helper()
	hashed, err := auth.HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	store := activeUserStore()
	for id, u := range store.users {
		u.HashedPassword = hashed
		store.users[id] = u
	}
	return store
}

func TestLoginSuccessSetsCookie(t *testing.T) {
	a := newTestAPI(t, loginStore(t))

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login",
		strings.NewReader(`{"username":"alice","password":"s3cret"}`))
	rec := httptest.NewRecorder()
	a.handleLogin(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Code int `json:"code"`
		Data struct {
			Token string    `json:"token"`
			User  auth.User `json:"user"`
		} `json:"data"`
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if body.Code != http.StatusOK || body.Msg != "success" {
		t.Fatalf("unexpected envelope: code=%d msg=%q", body.Code, body.Msg)
	}
	if body.Data.Token == "" {
		t.Fatal("expected a token in the response")
	}
	if body.Data.User.ID != 42 {
		t.Fatalf("unexpected user: %+v", body.Data.User)
	}
	if strings.Contains(rec.Body.String(), "hashed_password") {
		t.Fatal("password hash leaked into the response")
	}

	var sessionCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == tokenCookieName {
			sessionCookie = c
		}
	}
	if sessionCookie == nil {
		t.Fatal("expected a session cookie")
	}
	if !sessionCookie.HttpOnly || sessionCookie.Path != "/" {
		t.Fatalf("cookie attributes wrong: %+v", sessionCookie)
	}
	if sessionCookie.MaxAge != sessionCookieMaxAge {
		t.Fatalf("cookie max-age = %d, want %d", sessionCookie.MaxAge, sessionCookieMaxAge)
	}
	if sessionCookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("cookie samesite = %v, want Lax", sessionCookie.SameSite)
	}
	if sessionCookie.Value != body.Data.Token {
		t.Fatal("cookie token differs from body token")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	a := newTestAPI(t, loginStore(t))

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login",
		strings.NewReader(`{"username":"alice","password":"wrong"}`))
	rec := httptest.NewRecorder()
	a.handleLogin(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Code != codeInvalidCredentials {
		t.Fatalf("code = %d, want %d", env.Code, codeInvalidCredentials)
	}
}

func TestLoginUnknownUserSameAsWrongPassword(t *testing.T) {
	a := newTestAPI(t, loginStore(t))

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login",
		strings.NewReader(`{"username":"nobody","password":"s3cret"}`))
	rec := httptest.NewRecorder()
	a.handleLogin(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Code != codeInvalidCredentials {
		t.Fatalf("code = %d, want %d", env.Code, codeInvalidCredentials)
	}
}

func TestLoginInactiveUser(t *testing.T) {
	a := newTestAPI(t, loginStore(t))

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login",
		strings.NewReader(`{"username":"mallory","password":"s3cret"}`))
	rec := httptest.NewRecorder()
	a.handleLogin(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Code != codeUserNotActive {
		t.Fatalf("code = %d, want %d", env.Code, codeUserNotActive)
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	a := newTestAPI(t, activeUserStore())

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
	rec := httptest.NewRecorder()
	a.handleLogout(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var cleared *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == tokenCookieName {
			cleared = c
		}
	}
	if cleared == nil || cleared.Value != "" || cleared.MaxAge != -1 {
		t.Fatalf("expected an expired empty cookie, got %+v", cleared)
	}
}

func TestUsersGroupsBatchPreservesOrder(t *testing.T) {
	store := activeUserStore()
	store.groups = map[int64][]auth.Group{
		42: {{ID: 1, Name: "readers"}},
	}
	a := newTestAPI(t, store)

	token := mintToken(t, testSecret, 42, time.Now(), time.Hour)
	// grant users.read so the gate passes
	store.perms[42] = append(store.perms[42], auth.Permission{ID: 2, Name: auth.PermUsersRead})

	req := httptest.NewRequest(http.MethodGet, "/v1/users/groups?ids=99,42&include_permissions=true", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	a.requireAuth(auth.PermUsersRead, a.handleUsersGroupsBatch)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	var result []auth.UserGroups
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("len = %d, want 2", len(result))
	}
	if result[0].UserID != 99 || result[1].UserID != 42 {
		t.Fatalf("input order not preserved: %+v", result)
	}
	if len(result[0].Groups) != 0 {
		t.Fatalf("expected empty group list for unknown id, got %+v", result[0].Groups)
	}
	if len(result[1].Groups) != 1 || result[1].Groups[0].Name != "readers" {
		t.Fatalf("unexpected groups for 42: %+v", result[1].Groups)
	}
}

func TestUsersGroupsBatchRejectsBadIDs(t *testing.T) {
	a := newTestAPI(t, activeUserStore())

	req := httptest.NewRequest(http.MethodGet, "/v1/users/groups?ids=1,abc", nil)
	rec := httptest.NewRecorder()
	a.handleUsersGroupsBatch(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Code != codeBadRequest {
		t.Fatalf("code = %d, want %d", env.Code, codeBadRequest)
	}
}

func TestParseIDList(t *testing.T) {
	if ids, err := parseIDList(" 1, 2,3 "); err != nil || len(ids) != 3 {
		t.Fatalf("parseIDList = %v, %v", ids, err)
	}
	if ids, err := parseIDList(""); err != nil || len(ids) != 0 {
		t.Fatalf("empty input should yield empty list, got %v, %v", ids, err)
	}
	if _, err := parseIDList("0"); err == nil {
		t.Fatal("non-positive ids must be rejected")
	}
	if _, err := parseIDList("1,,2"); err == nil {
		t.Fatal("blank entries must be rejected")
	}
}

func TestLoginRejectsUnknownFields(t *testing.T) {
	a := newTestAPI(t, loginStore(t))

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login",
		strings.NewReader(`{"username":"alice","password":"s3cret","admin":true}`))
	rec := httptest.NewRecorder()
	a.handleLogin(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestMethodNotAllowedOnLogin(t *testing.T) {
	a := newTestAPI(t, activeUserStore())
	rec := httptest.NewRecorder()
	a.handleLogin(rec, httptest.NewRequest(http.MethodGet, "/v1/auth/login", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	if rec.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("Allow = %q", rec.Header().Get("Allow"))
	}
}
