package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"datavault.org/internal/auth"
)

type createGroupRequest struct {
	Name string `json:"name"`
}

func (a *API) handleGroups(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.requireAuth(auth.PermGroupsRead, a.listGroups)(w, r)
	case http.MethodPost:
		a.requireAuth(auth.PermGroupsManage, a.createGroup)(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := a.store.ListGroups(r.Context())
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (a *API) createGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "name is required")
		return
	}
	group, err := a.store.CreateGroup(r.Context(), req.Name)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.auditEvent(r, "group.created", map[string]any{"group_id": group.ID, "name": group.Name})
	writeJSON(w, http.StatusCreated, group)
}

// handleGroupScoped dispatches /v1/groups/{id} and
// /v1/groups/{id}/permissions[/{permID}].
func (a *API) handleGroupScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/groups/")
	parts := strings.Split(rest, "/")
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "invalid group id")
		return
	}

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			a.requireAuth(auth.PermGroupsRead, a.getGroup(id))(w, r)
		case http.MethodDelete:
			a.requireAuth(auth.PermGroupsManage, a.deleteGroup(id))(w, r)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
		}
	case len(parts) == 2 && parts[1] == "permissions":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.requireAuth(auth.PermGroupsManage, a.grantPermission(id))(w, r)
	case len(parts) == 3 && parts[1] == "permissions":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		permID, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil || permID <= 0 {
			writeError(w, r, http.StatusBadRequest, codeBadRequest, "invalid permission id")
			return
		}
		a.requireAuth(auth.PermGroupsManage, a.revokePermission(id, permID))(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (a *API) getGroup(id int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group, err := a.store.GetGroup(r.Context(), id)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, group)
	}
}

func (a *API) deleteGroup(id int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.store.DeleteGroup(r.Context(), id); err != nil {
			handleStoreError(w, r, err)
			return
		}
		a.auditEvent(r, "group.deleted", map[string]any{"group_id": id})
		w.WriteHeader(http.StatusNoContent)
	}
}

func (a *API) grantPermission(groupID int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PermissionID int64 `json:"permission_id"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
			return
		}
		if req.PermissionID <= 0 {
			writeError(w, r, http.StatusBadRequest, codeBadRequest, "permission_id is required")
			return
		}
		if err := a.store.GrantPermission(r.Context(), groupID, req.PermissionID); err != nil {
			handleStoreError(w, r, err)
			return
		}
		a.auditEvent(r, "group.permission_granted", map[string]any{
			"group_id":      groupID,
			"permission_id": req.PermissionID,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

func (a *API) revokePermission(groupID, permissionID int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.store.RevokePermission(r.Context(), groupID, permissionID); err != nil {
			handleStoreError(w, r, err)
			return
		}
		a.auditEvent(r, "group.permission_revoked", map[string]any{
			"group_id":      groupID,
			"permission_id": permissionID,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}
