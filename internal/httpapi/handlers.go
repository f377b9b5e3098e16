// Package httpapi exposes the lifecycle orchestrator over HTTP. Handlers
// translate transport concerns only; all workflow rules live in the
// lifecycle package.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"toolvault.org/internal/auth"
	"toolvault.org/internal/lifecycle"
	"toolvault.org/internal/obs"
)

// ReadyProbe reports whether downstream dependencies answer.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the lifecycle service.
type API struct {
	mux        *http.ServeMux
	svc        *lifecycle.Service
	users      auth.Store
	readyProbe ReadyProbe
	version    string
	tokenTTL   time.Duration
}

func New(svc *lifecycle.Service, users auth.Store, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		svc:        svc,
		users:      users,
		readyProbe: rp,
		version:    version,
		tokenTTL:   12 * time.Hour,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/token", a.handleToken)
	a.mux.HandleFunc("/v1/users", a.handleUsers)

	a.mux.HandleFunc("/v1/assets", a.handleAssetsCollection)
	a.mux.HandleFunc("/v1/assets/", a.handleAssetResource)
	a.mux.HandleFunc("/v1/movements", a.handleMovementsCollection)
	a.mux.HandleFunc("/v1/movements/", a.handleMovementResource)
	a.mux.HandleFunc("/v1/calibrations", a.handleCalibrationsCollection)
	a.mux.HandleFunc("/v1/calibrations/", a.handleCalibrationResource)
	a.mux.HandleFunc("/v1/quarantines", a.handleQuarantinesCollection)
	a.mux.HandleFunc("/v1/quarantines/", a.handleQuarantineResource)
	a.mux.HandleFunc("/v1/decommissions", a.handleDecommissionsCollection)
	a.mux.HandleFunc("/v1/decommissions/", a.handleDecommissionResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the instrumented handler with authentication applied.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.withAuth(a.mux))
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "toolvault-api",
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
		"name":    "toolvault-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
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

// handleLifecycleError maps failure kinds to HTTP statuses. The whole 409
// family shares the status code; the kind in the payload keeps the causes
// distinguishable, and retryable marks the ones worth repeating unchanged.
func handleLifecycleError(w http.ResponseWriter, r *http.Request, err error) {
	kind := lifecycle.KindOf(err)
	switch kind {
	case lifecycle.KindValidation:
		writeKindError(w, r, http.StatusBadRequest, kind, err)
	case lifecycle.KindNotFound:
		writeKindError(w, r, http.StatusNotFound, kind, err)
	case lifecycle.KindForbidden:
		writeKindError(w, r, http.StatusForbidden, kind, err)
	case lifecycle.KindInvalidTransition, lifecycle.KindDuplicateActive,
		lifecycle.KindConflict, lifecycle.KindAssetRetired:
		writeKindError(w, r, http.StatusConflict, kind, err)
	case lifecycle.KindBusy:
		w.Header().Set("Retry-After", "1")
		writeKindError(w, r, http.StatusServiceUnavailable, kind, err)
	default:
		switch {
		case errors.Is(err, auth.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "not found")
		case errors.Is(err, auth.ErrForbidden):
			writeError(w, r, http.StatusForbidden, "forbidden")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
	}
}

func writeKindError(w http.ResponseWriter, r *http.Request, code int, kind lifecycle.Kind, err error) {
	payload := map[string]any{
		"error": err.Error(),
		"kind":  string(kind),
	}
	var le *lifecycle.Error
	if errors.As(err, &le) && le.Retryable() {
		payload["retryable"] = true
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func requirePrincipal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
	}
	return p, ok
}
