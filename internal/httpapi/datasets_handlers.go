package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"datavault.org/internal/auth"
	"datavault.org/internal/dataset"
)

type createDatasetRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type updateDatasetRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (a *API) handleDatasets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.requireAuth(auth.PermDatasetsRead, a.listDatasets)(w, r)
	case http.MethodPost:
		a.requireAuth(auth.PermDatasetsCreate, a.createDataset)(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listDatasets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := dataset.Filter{Name: strings.TrimSpace(q.Get("name"))}
	var err error
	if filter.Skip, filter.Limit, err = pageParams(q.Get("skip"), q.Get("limit")); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	items, err := a.datasets.ListDatasets(r.Context(), filter)
	if err != nil {
		handleDatasetError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) createDataset(w http.ResponseWriter, r *http.Request) {
	var req createDatasetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "name is required")
		return
	}
	item, err := a.datasets.CreateDataset(r.Context(), req.Name, req.Description)
	if err != nil {
		handleDatasetError(w, r, err)
		return
	}
	a.auditEvent(r, "dataset.created", map[string]any{"dataset_id": item.ID, "name": item.Name})
	writeJSON(w, http.StatusCreated, item)
}

func (a *API) handleDatasetScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/datasets/")
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "invalid dataset id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.requireAuth(auth.PermDatasetsRead, a.getDataset(id))(w, r)
	case http.MethodPut:
		a.requireAuth(auth.PermDatasetsUpdate, a.updateDataset(id))(w, r)
	case http.MethodDelete:
		a.requireAuth(auth.PermDatasetsDelete, a.deleteDataset(id))(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) getDataset(id int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := a.datasets.GetDataset(r.Context(), id)
		if err != nil {
			handleDatasetError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

func (a *API) updateDataset(id int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateDatasetRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
			return
		}
		item, err := a.datasets.UpdateDataset(r.Context(), id, dataset.Update{
			Name:        req.Name,
			Description: req.Description,
		})
		if err != nil {
			handleDatasetError(w, r, err)
			return
		}
		a.auditEvent(r, "dataset.updated", map[string]any{"dataset_id": id})
		writeJSON(w, http.StatusOK, item)
	}
}

func (a *API) deleteDataset(id int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.datasets.DeleteDataset(r.Context(), id); err != nil {
			handleDatasetError(w, r, err)
			return
		}
		a.auditEvent(r, "dataset.deleted", map[string]any{"dataset_id": id})
		w.WriteHeader(http.StatusNoContent)
	}
}
