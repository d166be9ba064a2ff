package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"datavault.org/internal/auth"
	"datavault.org/internal/dataset"
	"datavault.org/internal/obs"
)

// Numeric error codes returned to clients alongside the HTTP status.
// 10001 and 10002 predate the rest; the series extends from there.
const (
	codeInvalidCredentials = 10001
	codeInternal           = 10002
	codeUnauthorized       = 10003
	codeInvalidToken       = 10004
	codeUserNotActive      = 10005
	codePermissionDenied   = 10006
	codeBadRequest         = 10007
	codeNotFound           = 10008
	codeConflict           = 10009
)

var (
	errBadIDList = errors.New("ids must be a comma-separated list of positive integers")
	errBadPage   = errors.New("skip and limit must be non-negative integers")
)

// errorEnvelope is the only error shape that leaves the API.
type errorEnvelope struct {
	Code      int    `json:"code"`
	Msg       string `json:"msg"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status, code int, msg string) {
	writeJSON(w, status, errorEnvelope{
		Code:      code,
		Msg:       msg,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

// handleAuthError converts auth-layer failures into the wire taxonomy. Every
// collaborator error funnels through here exactly once; nothing below the
// taxonomy crosses the boundary, and internal detail goes to the log only.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "no credential presented")
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, codeInvalidToken, "invalid token")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, codeInvalidCredentials, "invalid credentials")
	case errors.Is(err, auth.ErrUserNotActive):
		writeError(w, r, http.StatusForbidden, codeUserNotActive, "user is not active")
	case errors.Is(err, auth.ErrPermissionDenied):
		writeError(w, r, http.StatusForbidden, codePermissionDenied, "permission denied")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
	default:
		logInternal(r, err)
		writeError(w, r, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

// handleStoreError covers the admin CRUD surface.
func handleStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, codeNotFound, "resource not found")
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, codeConflict, "resource already exists")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
	default:
		logInternal(r, err)
		writeError(w, r, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

func handleDatasetError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, dataset.ErrNotFound):
		writeError(w, r, http.StatusNotFound, codeNotFound, "dataset not found")
	case errors.Is(err, dataset.ErrConflict):
		writeError(w, r, http.StatusConflict, codeConflict, "dataset already exists")
	case errors.Is(err, dataset.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
	default:
		logInternal(r, err)
		writeError(w, r, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

func logInternal(r *http.Request, err error) {
	obs.LogError("unhandled error", err, map[string]any{
		"request_id": RequestIDFromContext(r.Context()),
		"method":     r.Method,
		"path":       r.URL.Path,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, codeBadRequest, "method not allowed")
}
