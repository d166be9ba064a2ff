package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"datavault.org/internal/audit"
	"datavault.org/internal/auth"
)

type createUserRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Nickname  string `json:"nickname"`
	AvatarURI string `json:"avatar_uri"`
}

type updateUserRequest struct {
	Nickname  *string `json:"nickname"`
	AvatarURI *string `json:"avatar_uri"`
	Password  *string `json:"password"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.requireAuth(auth.PermUsersRead, a.listUsers)(w, r)
	case http.MethodPost:
		a.requireAuth(auth.PermUsersCreate, a.createUser)(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := auth.UsersFilter{Username: strings.TrimSpace(q.Get("username"))}
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, codeBadRequest, "active must be a boolean")
			return
		}
		filter.Active = &active
	}
	var err error
	if filter.Skip, filter.Limit, err = pageParams(q.Get("skip"), q.Get("limit")); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	users, err := a.store.ListUsers(r.Context(), filter)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "username and password are required")
		return
	}
	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}
	user, err := a.store.CreateUser(r.Context(), req.Username, hashed, req.Nickname, req.AvatarURI)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.auditEvent(r, "user.created", map[string]any{"target_user_id": user.ID, "username": user.Username})
	writeJSON(w, http.StatusCreated, user)
}

// handleUserScoped dispatches /v1/users/{id} and its subresources:
// groups, activate, deactivate.
func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	parts := strings.Split(rest, "/")
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "invalid user id")
		return
	}

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			a.requireAuth(auth.PermUsersRead, a.getUser(id))(w, r)
		case http.MethodPut:
			a.requireAuth(auth.PermUsersUpdate, a.updateUser(id))(w, r)
		case http.MethodDelete:
			a.requireAuth(auth.PermUsersDelete, a.deleteUser(id))(w, r)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
		}
	case len(parts) == 2 && parts[1] == "activate":
		a.requirePost(auth.PermUsersUpdate, a.setUserActive(id, true))(w, r)
	case len(parts) == 2 && parts[1] == "deactivate":
		a.requirePost(auth.PermUsersUpdate, a.setUserActive(id, false))(w, r)
	case len(parts) == 2 && parts[1] == "groups":
		switch r.Method {
		case http.MethodGet:
			a.requireAuth(auth.PermUsersRead, a.getUserGroups(id))(w, r)
		case http.MethodPost:
			a.requireAuth(auth.PermGroupsManage, a.addUserGroup(id))(w, r)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	case len(parts) == 3 && parts[1] == "groups":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		groupID, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil || groupID <= 0 {
			writeError(w, r, http.StatusBadRequest, codeBadRequest, "invalid group id")
			return
		}
		a.requireAuth(auth.PermGroupsManage, a.removeUserGroup(id, groupID))(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (a *API) requirePost(permission string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.requireAuth(permission, next)(w, r)
	}
}

func (a *API) getUser(id int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := a.store.GetUserByID(r.Context(), id)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

func (a *API) updateUser(id int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
			return
		}
		upd := auth.UserUpdate{Nickname: req.Nickname, AvatarURI: req.AvatarURI}
		if req.Password != nil {
			hashed, err := auth.HashPassword(*req.Password)
			if err != nil {
				writeError(w, r, http.StatusInternalServerError, codeInternal, "internal error")
				return
			}
			upd.HashedPassword = &hashed
		}
		user, err := a.store.UpdateUser(r.Context(), id, upd)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		a.auditEvent(r, "user.updated", map[string]any{"target_user_id": id})
		writeJSON(w, http.StatusOK, user)
	}
}

func (a *API) setUserActive(id int64, active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.store.SetUserActive(r.Context(), id, active); err != nil {
			handleStoreError(w, r, err)
			return
		}
		event := "user.deactivated"
		if active {
			event = "user.activated"
		}
		a.auditEvent(r, event, map[string]any{"target_user_id": id})
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "is_active": active})
	}
}

func (a *API) deleteUser(id int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.store.DeleteUser(r.Context(), id); err != nil {
			handleStoreError(w, r, err)
			return
		}
		a.auditEvent(r, "user.deleted", map[string]any{"target_user_id": id})
		w.WriteHeader(http.StatusNoContent)
	}
}

func (a *API) getUserGroups(id int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groups, err := a.auth.GroupsForUsers(r.Context(), []int64{id}, true)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, groups[0].Groups)
	}
}

func (a *API) addUserGroup(userID int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			GroupID int64 `json:"group_id"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
			return
		}
		if req.GroupID <= 0 {
			writeError(w, r, http.StatusBadRequest, codeBadRequest, "group_id is required")
			return
		}
		membership, err := a.store.AddUserToGroup(r.Context(), userID, req.GroupID)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		a.auditEvent(r, "user.group_added", map[string]any{"target_user_id": userID, "group_id": req.GroupID})
		writeJSON(w, http.StatusCreated, membership)
	}
}

func (a *API) removeUserGroup(userID, groupID int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.store.RemoveUserFromGroup(r.Context(), userID, groupID); err != nil {
			handleStoreError(w, r, err)
			return
		}
		a.auditEvent(r, "user.group_removed", map[string]any{"target_user_id": userID, "group_id": groupID})
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleUsersGroupsBatch resolves group memberships for many users in one
// request: GET /v1/users/groups?ids=1,2,3&include_permissions=true. The
// response preserves the requested id order and carries an empty group list
// for ids with no memberships.
func (a *API) handleUsersGroupsBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	q := r.URL.Query()
	ids, err := parseIDList(q.Get("ids"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	includePermissions := false
	if v := q.Get("include_permissions"); v != "" {
		includePermissions, err = strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, codeBadRequest, "include_permissions must be a boolean")
			return
		}
	}
	result, err := a.auth.GroupsForUsers(r.Context(), ids, includePermissions)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseIDList(raw string) ([]int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []int64{}, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil || id <= 0 {
			return nil, errBadIDList
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func pageParams(skipRaw, limitRaw string) (skip, limit int, err error) {
	if skipRaw != "" {
		if skip, err = strconv.Atoi(skipRaw); err != nil || skip < 0 {
			return 0, 0, errBadPage
		}
	}
	if limitRaw != "" {
		if limit, err = strconv.Atoi(limitRaw); err != nil || limit < 0 {
			return 0, 0, errBadPage
		}
	}
	return skip, limit, nil
}

func (a *API) auditEvent(r *http.Request, event string, fields map[string]any) {
	ctx := audit.WithRequestID(r.Context(), RequestIDFromContext(r.Context()))
	_ = audit.LogEvent(ctx, event, fields)
}
