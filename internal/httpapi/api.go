package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"datavault.org/internal/auth"
	"datavault.org/internal/dataset"
	"datavault.org/internal/obs"
)

// ReadyProbe — readiness check for the service chain (DB ping when a pool is
// attached). Authorization work never runs here: readiness must stay trivially
// cheap while requests are in flight.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API — HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	auth     *auth.Service
	store    auth.AdminStore
	datasets dataset.Service

	rateBurst  int
	ratePerSec int
}

// New wires routes over the injected collaborators. authSvc gates protected
// routes; store backs the admin surface; datasets backs the CRUD surface.
func New(rp ReadyProbe, version string, authSvc *auth.Service, store auth.AdminStore, datasets dataset.Service) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		auth:       authSvc,
		store:      store,
		datasets:   datasets,
		rateBurst:  20,
		ratePerSec: 10,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)

	// current user
	a.mux.HandleFunc("/v1/users/me", a.requireAuth("", a.handleMe))
	a.mux.HandleFunc("/v1/users/me/groups", a.requireAuth("", a.handleMeGroups))
	a.mux.HandleFunc("/v1/users/me/permissions", a.requireAuth("", a.handleMePermissions))

	// admin: users (batch endpoint before the scoped prefix dispatch)
	a.mux.HandleFunc("/v1/users", a.handleUsers)
	a.mux.HandleFunc("/v1/users/groups", a.requireAuth(auth.PermUsersRead, a.handleUsersGroupsBatch))
	a.mux.HandleFunc("/v1/users/", a.handleUserScoped)

	// admin: groups and permissions
	a.mux.HandleFunc("/v1/groups", a.handleGroups)
	a.mux.HandleFunc("/v1/groups/", a.handleGroupScoped)
	a.mux.HandleFunc("/v1/permissions", a.handlePermissions)
	a.mux.HandleFunc("/v1/permissions/", a.handlePermissionScoped)

	// datasets
	a.mux.HandleFunc("/v1/datasets", a.handleDatasets)
	a.mux.HandleFunc("/v1/datasets/", a.handleDatasetScoped)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = obs.Instrument(h)
	h = LoggingJSON(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = RequestID(h)
	return h
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "datavault-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "datavault-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
