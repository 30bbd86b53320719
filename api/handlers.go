/*
handlers.go - HTTP API handlers for the fillup engine

PURPOSE:
  Exposes the fillup chain engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the engine service.

ENDPOINTS:
  Vehicles:
    GET    /api/vehicles                      List vehicles
    POST   /api/vehicles                      Create vehicle
    GET    /api/vehicles/{id}                 Get vehicle
    PUT    /api/vehicles/{id}/baseline        Change baseline odometer
    GET    /api/vehicles/{id}/stats           Chain statistics

  Fillups:
    GET    /api/vehicles/{id}/fillups         List fillups (chain order)
    POST   /api/vehicles/{id}/fillups         Record fillup
    POST   /api/vehicles/{id}/fillups/import  Bulk import
    PATCH  /api/vehicles/{id}/fillups/{fid}   Partial edit
    DELETE /api/vehicles/{id}/fillups/{fid}   Delete

ERROR HANDLING:
  - 400: Validation errors, invalid input
  - 404: Vehicle or fillup not found
  - 500: Internal errors, including partial chain writes (the response body
         then carries applied-vs-attempted counts)
  Consistency warnings are NOT errors: the mutation succeeds with 200/201 and
  the warnings ride along in the response body.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tanklog/fillup-engine/engine"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *engine.Service
}

// NewHandler creates a new handler around the engine service.
func NewHandler(svc *engine.Service) *Handler {
	return &Handler{Service: svc}
}

// =============================================================================
// VEHICLE HANDLERS
// =============================================================================

// ListVehicles returns all vehicles.
func (h *Handler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := h.Service.ListVehicles(r.Context())
	if err != nil {
		writeEngineError(w, "Failed to list vehicles", err)
		return
	}

	dtos := make([]VehicleDTO, len(vehicles))
	for i, v := range vehicles {
		dtos[i] = toVehicleDTO(v)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateVehicle creates a new vehicle.
func (h *Handler) CreateVehicle(w http.ResponseWriter, r *http.Request) {
	var req CreateVehicleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	v, err := h.Service.CreateVehicle(r.Context(), engine.VehicleInput{
		Name:             req.Name,
		BaselineOdometer: userDecimal(req.BaselineOdometer),
		MileageMode:      engine.MileageMode(req.MileageMode),
	})
	if err != nil {
		writeEngineError(w, "Failed to create vehicle", err)
		return
	}

	writeJSON(w, http.StatusCreated, toVehicleDTO(v))
}

// GetVehicle returns a single vehicle.
func (h *Handler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	id := engine.VehicleID(chi.URLParam(r, "id"))

	v, err := h.Service.GetVehicle(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to get vehicle", err)
		return
	}
	writeJSON(w, http.StatusOK, toVehicleDTO(v))
}

// ChangeBaseline updates a vehicle's baseline odometer and recalculates its
// whole chain.
func (h *Handler) ChangeBaseline(w http.ResponseWriter, r *http.Request) {
	id := engine.VehicleID(chi.URLParam(r, "id"))

	var req BaselineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.Service.ChangeVehicleBaseline(r.Context(), id, userDecimal(req.BaselineOdometer))
	if err != nil {
		writeEngineError(w, "Failed to change baseline", err)
		return
	}
	writeJSON(w, http.StatusOK, toMutationResponse(res))
}

// GetStats returns chain statistics for a vehicle.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	id := engine.VehicleID(chi.URLParam(r, "id"))

	st, err := h.Service.VehicleStats(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to compute stats", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsDTO(st))
}

// =============================================================================
// FILLUP HANDLERS
// =============================================================================

// ListFillups returns a vehicle's fillups in chain order.
func (h *Handler) ListFillups(w http.ResponseWriter, r *http.Request) {
	id := engine.VehicleID(chi.URLParam(r, "id"))

	fillups, err := h.Service.ListFillups(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to list fillups", err)
		return
	}
	writeJSON(w, http.StatusOK, toFillupDTOs(fillups))
}

// CreateFillup records a new fillup and recalculates the chain.
func (h *Handler) CreateFillup(w http.ResponseWriter, r *http.Request) {
	id := engine.VehicleID(chi.URLParam(r, "id"))

	var req CreateFillupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in, err := toFillupInput(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use RFC 3339 or YYYY-MM-DD)", err)
		return
	}

	res, err := h.Service.CreateFillup(r.Context(), id, in)
	if err != nil {
		writeEngineError(w, "Failed to create fillup", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMutationResponse(res))
}

// UpdateFillup applies a partial edit and recalculates the chain.
func (h *Handler) UpdateFillup(w http.ResponseWriter, r *http.Request) {
	vehicleID := engine.VehicleID(chi.URLParam(r, "id"))
	fillupID := engine.FillupID(chi.URLParam(r, "fillupID"))

	var req UpdateFillupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	upd := engine.FillupUpdate{
		FuelAmount:       userDecimalPtr(req.FuelAmount),
		TotalPrice:       userDecimalPtr(req.TotalPrice),
		Odometer:         userDecimalPtr(req.Odometer),
		DistanceTraveled: userDecimalPtr(req.DistanceTraveled),
	}
	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use RFC 3339 or YYYY-MM-DD)", err)
			return
		}
		upd.Date = &date
	}

	res, err := h.Service.UpdateFillup(r.Context(), vehicleID, fillupID, upd)
	if err != nil {
		writeEngineError(w, "Failed to update fillup", err)
		return
	}
	writeJSON(w, http.StatusOK, toMutationResponse(res))
}

// DeleteFillup removes a fillup and recalculates the remaining chain.
func (h *Handler) DeleteFillup(w http.ResponseWriter, r *http.Request) {
	vehicleID := engine.VehicleID(chi.URLParam(r, "id"))
	fillupID := engine.FillupID(chi.URLParam(r, "fillupID"))

	res, err := h.Service.DeleteFillup(r.Context(), vehicleID, fillupID)
	if err != nil {
		writeEngineError(w, "Failed to delete fillup", err)
		return
	}
	writeJSON(w, http.StatusOK, toMutationResponse(res))
}

// ImportFillups bulk-inserts already-parsed records and recalculates once.
func (h *Handler) ImportFillups(w http.ResponseWriter, r *http.Request) {
	id := engine.VehicleID(chi.URLParam(r, "id"))

	var req ImportFillupsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Fillups) == 0 {
		writeError(w, http.StatusBadRequest, "At least one fillup is required", nil)
		return
	}

	inputs := make([]engine.FillupInput, len(req.Fillups))
	for i, f := range req.Fillups {
		in, err := toFillupInput(f)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use RFC 3339 or YYYY-MM-DD)", err)
			return
		}
		inputs[i] = in
	}

	res, err := h.Service.BatchImportFillups(r.Context(), id, inputs)
	if err != nil {
		writeEngineError(w, "Failed to import fillups", err)
		return
	}
	writeJSON(w, http.StatusOK, toMutationResponse(res))
}

// =============================================================================
// HELPERS
// =============================================================================

func toFillupInput(req CreateFillupRequest) (engine.FillupInput, error) {
	date, err := parseDate(req.Date)
	if err != nil {
		return engine.FillupInput{}, err
	}
	return engine.FillupInput{
		Date:             date,
		FuelAmount:       userDecimal(req.FuelAmount),
		TotalPrice:       userDecimal(req.TotalPrice),
		Odometer:         userDecimalPtr(req.Odometer),
		DistanceTraveled: userDecimalPtr(req.DistanceTraveled),
	}, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps engine error classes to HTTP statuses.
func writeEngineError(w http.ResponseWriter, message string, err error) {
	var chainErr *engine.ChainWriteError
	switch {
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case errors.As(err, &chainErr):
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "Chain update incomplete",
			Code:  "chain_write_failed",
			Details: map[string]any{
				"applied":   chainErr.Applied,
				"attempted": chainErr.Attempted,
				"cause":     chainErr.Cause.Error(),
			},
		})
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
