package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"datavault.org/internal/auth"
)

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.requireAuth(auth.PermPermissionsRead, a.listPermissions)(w, r)
	case http.MethodPost:
		a.requireAuth(auth.PermPermissionsManage, a.createPermission)(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := a.store.ListPermissions(r.Context())
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, perms)
}

func (a *API) createPermission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "name is required")
		return
	}
	perm, err := a.store.CreatePermission(r.Context(), req.Name)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.auditEvent(r, "permission.created", map[string]any{"permission_id": perm.ID, "name": perm.Name})
	writeJSON(w, http.StatusCreated, perm)
}

func (a *API) handlePermissionScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/permissions/")
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "invalid permission id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.requireAuth(auth.PermPermissionsRead, a.getPermission(id))(w, r)
	case http.MethodDelete:
		a.requireAuth(auth.PermPermissionsManage, a.deletePermission(id))(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) getPermission(id int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		perm, err := a.store.GetPermission(r.Context(), id)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, perm)
	}
}

func (a *API) deletePermission(id int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.store.DeletePermission(r.Context(), id); err != nil {
			handleStoreError(w, r, err)
			return
		}
		a.auditEvent(r, "permission.deleted", map[string]any{"permission_id": id})
		w.WriteHeader(http.StatusNoContent)
	}
}
