package httpapi

import (
	"net/http"
	"strings"
	"time"

	"toolvault.org/internal/lifecycle"
)

type registerAssetRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Location    string `json:"location"`
}

type createMovementRequest struct {
	Type        string `json:"type"`
	AssetID     string `json:"asset_id"`
	Responsible string `json:"responsible"`
	Notes       string `json:"notes"`
}

type cancelMovementRequest struct {
	Reason string `json:"reason"`
}

type sendCalibrationRequest struct {
	AssetID             string    `json:"asset_id"`
	Provider            string    `json:"provider"`
	SendDate            time.Time `json:"send_date"`
	EstimatedReturnDate time.Time `json:"estimated_return_date"`
}

type receiveCalibrationRequest struct {
	ReturnDate          time.Time  `json:"return_date"`
	Result              string     `json:"result"`
	NextCalibrationDate *time.Time `json:"next_calibration_date"`
	Certificate         string     `json:"certificate"`
}

type placeQuarantineRequest struct {
	AssetID string `json:"asset_id"`
	Reason  string `json:"reason"`
}

type requestDecommissionRequest struct {
	AssetID string `json:"asset_id"`
	Reason  string `json:"reason"`
}

// resourceParts splits "/v1/<collection>/{id}[/{action}]" into id and action.
func resourceParts(path, prefix string) (id, action string, ok bool) {
	rest := strings.TrimPrefix(path, prefix)
	if rest == "" || rest == path {
		return "", "", false
	}
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	switch len(parts) {
	case 1:
		return parts[0], "", parts[0] != ""
	case 2:
		return parts[0], parts[1], parts[0] != "" && parts[1] != ""
	}
	return "", "", false
}

// --- assets ---

func (a *API) handleAssetsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.registerAsset(w, r)
	case http.MethodGet:
		a.listAssets(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAssetResource(w http.ResponseWriter, r *http.Request) {
	id, action, ok := resourceParts(r.URL.Path, "/v1/assets/")
	if !ok {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	switch action {
	case "":
		a.getAsset(w, r, id)
	case "status":
		a.getAssetStatus(w, r, id)
	case "audit":
		a.getAuditTrail(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) registerAsset(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req registerAssetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	created, err := a.svc.RegisterAsset(r.Context(), p, lifecycle.RegisterAssetInput{
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		Location:    req.Location,
	})
	if err != nil {
		handleLifecycleError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/assets/"+created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) listAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := a.svc.ListAssets(r.Context())
	if err != nil {
		handleLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": assets})
}

func (a *API) getAsset(w http.ResponseWriter, r *http.Request, id string) {
	found, err := a.svc.GetAsset(r.Context(), id)
	if err != nil {
		handleLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (a *API) getAssetStatus(w http.ResponseWriter, r *http.Request, id string) {
	status, version, err := a.svc.GetAssetStatus(r.Context(), id)
	if err != nil {
		handleLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"asset_id": id,
		"status":   status,
		"version":  version,
	})
}

func (a *API) getAuditTrail(w http.ResponseWriter, r *http.Request, id string) {
	trail, err := a.svc.GetAuditTrail(r.Context(), id)
	if err != nil {
		handleLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": trail})
}

// --- movements ---

func (a *API) handleMovementsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req createMovementRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	m, err := a.svc.CreateMovement(r.Context(), p, lifecycle.CreateMovementInput{
		Type:        lifecycle.MovementType(req.Type),
		AssetID:     req.AssetID,
		Responsible: req.Responsible,
		Notes:       req.Notes,
	})
	if err != nil {
		handleLifecycleError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/movements/"+m.ID)
	writeJSON(w, http.StatusCreated, m)
}

func (a *API) handleMovementResource(w http.ResponseWriter, r *http.Request) {
	id, action, ok := resourceParts(r.URL.Path, "/v1/movements/")
	if !ok {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if action == "" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		m, err := a.svc.GetMovement(r.Context(), id)
		if err != nil {
			handleLifecycleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
		return
	}

	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var (
		m   lifecycle.Movement
		err error
	)
	switch action {
	case "approve":
		m, err = a.svc.ApproveMovement(r.Context(), p, id)
	case "complete":
		m, err = a.svc.CompleteMovement(r.Context(), p, id)
	case "cancel":
		var req cancelMovementRequest
		if derr := decodeJSON(w, r, &req); derr != nil {
			writeError(w, r, http.StatusBadRequest, derr.Error())
			return
		}
		m, err = a.svc.CancelMovement(r.Context(), p, id, req.Reason)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if err != nil {
		handleLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// --- calibrations ---

func (a *API) handleCalibrationsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req sendCalibrationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := a.svc.SendToCalibration(r.Context(), p, lifecycle.SendToCalibrationInput{
		AssetID:             req.AssetID,
		Provider:            req.Provider,
		SendDate:            req.SendDate,
		EstimatedReturnDate: req.EstimatedReturnDate,
	})
	if err != nil {
		handleLifecycleError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/calibrations/"+rec.ID)
	writeJSON(w, http.StatusCreated, rec)
}

func (a *API) handleCalibrationResource(w http.ResponseWriter, r *http.Request) {
	id, action, ok := resourceParts(r.URL.Path, "/v1/calibrations/")
	if !ok {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	// alerts is a collection-level read, not a record action
	if id == "alerts" && action == "" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		alerts, err := a.svc.ListCalibrationAlerts(r.Context())
		if err != nil {
			handleLifecycleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": alerts,
			"as_of": time.Now().UTC(),
		})
		return
	}

	if action == "" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		rec, err := a.svc.GetCalibration(r.Context(), id)
		if err != nil {
			handleLifecycleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
		return
	}

	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var (
		rec lifecycle.CalibrationRecord
		err error
	)
	switch action {
	case "start":
		rec, err = a.svc.MarkCalibrationInProcess(r.Context(), p, id)
	case "receive":
		var req receiveCalibrationRequest
		if derr := decodeJSON(w, r, &req); derr != nil {
			writeError(w, r, http.StatusBadRequest, derr.Error())
			return
		}
		rec, err = a.svc.ReceiveFromCalibration(r.Context(), p, lifecycle.ReceiveFromCalibrationInput{
			RecordID:            id,
			ReturnDate:          req.ReturnDate,
			Result:              lifecycle.CalibrationResult(req.Result),
			NextCalibrationDate: req.NextCalibrationDate,
			Certificate:         req.Certificate,
		})
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if err != nil {
		handleLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// --- quarantines ---

func (a *API) handleQuarantinesCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req placeQuarantineRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := a.svc.PlaceInQuarantine(r.Context(), p, req.AssetID, req.Reason)
	if err != nil {
		handleLifecycleError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/quarantines/"+rec.ID)
	writeJSON(w, http.StatusCreated, rec)
}

func (a *API) handleQuarantineResource(w http.ResponseWriter, r *http.Request) {
	id, action, ok := resourceParts(r.URL.Path, "/v1/quarantines/")
	if !ok {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if action == "" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		rec, err := a.svc.GetQuarantine(r.Context(), id)
		if err != nil {
			handleLifecycleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
		return
	}

	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var (
		rec lifecycle.QuarantineRecord
		err error
	)
	switch action {
	case "resolve":
		rec, err = a.svc.ResolveQuarantine(r.Context(), p, id)
	case "escalate":
		rec, err = a.svc.EscalateQuarantine(r.Context(), p, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if err != nil {
		handleLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// --- decommissions ---

func (a *API) handleDecommissionsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req requestDecommissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	d, err := a.svc.RequestDecommission(r.Context(), p, req.AssetID, req.Reason)
	if err != nil {
		handleLifecycleError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/decommissions/"+d.ID)
	writeJSON(w, http.StatusCreated, d)
}

func (a *API) handleDecommissionResource(w http.ResponseWriter, r *http.Request) {
	id, action, ok := resourceParts(r.URL.Path, "/v1/decommissions/")
	if !ok {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if action == "" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		d, err := a.svc.GetDecommission(r.Context(), id)
		if err != nil {
			handleLifecycleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
		return
	}

	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var (
		d   lifecycle.DecommissionRequest
		err error
	)
	switch action {
	case "approve":
		d, err = a.svc.ApproveDecommission(r.Context(), p, id)
	case "complete":
		d, err = a.svc.CompleteDecommission(r.Context(), p, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if err != nil {
		handleLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
