package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/paysentry/internal/domain"
)

// ZoneRequest is the request body for creating or replacing a safe zone.
// Omitted Enabled defaults to true; omitted AlertOnExit follows the zone kind.
type ZoneRequest struct {
	ID           string            `json:"id,omitempty"`
	Name         string            `json:"name"`
	Kind         domain.ZoneKind   `json:"kind"`
	Center       domain.Coordinate `json:"center"`
	RadiusMeters float64           `json:"radiusMeters"`
	Enabled      *bool             `json:"enabled,omitempty"`
	AlertOnExit  *bool             `json:"alertOnExit,omitempty"`
}

func (req *ZoneRequest) toZone(id string) (*domain.SafeZone, string) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, "name is required"
	}

	kind := req.Kind
	if kind == "" {
		kind = domain.ZoneCustom
	}
	if !kind.Valid() {
		return nil, "kind must be home, work, or custom"
	}
	if req.RadiusMeters <= 0 {
		return nil, "radiusMeters must be positive"
	}
	if !validCoordinate(req.Center) {
		return nil, "center is out of range"
	}

	zone := &domain.SafeZone{
		ID:           id,
		Name:         name,
		Kind:         kind,
		Center:       req.Center,
		RadiusMeters: req.RadiusMeters,
		Enabled:      true,
		AlertOnExit:  domain.DefaultAlertOnExit(kind),
	}
	if req.Enabled != nil {
		zone.Enabled = *req.Enabled
	}
	if req.AlertOnExit != nil {
		zone.AlertOnExit = *req.AlertOnExit
	}
	return zone, ""
}

// ListZones handles GET /zones.
func (h *Handler) ListZones(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	zones, err := h.repo.ListSafeZones(ctx, GetUserID(ctx))
	if err != nil {
		writeRepoError(w, err, "safe zones")
		return
	}
	if zones == nil {
		zones = []*domain.SafeZone{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"zones": zones,
		"count": len(zones),
	})
}

// CreateZone handles POST /zones.
func (h *Handler) CreateZone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)

	var req ZoneRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	zone, problem := req.toZone(id)
	if problem != "" {
		writeError(w, http.StatusBadRequest, problem)
		return
	}

	if _, err := h.repo.GetSafeZone(ctx, userID, id); err == nil {
		writeError(w, http.StatusConflict, "safe zone already exists")
		return
	}

	if err := h.repo.SaveSafeZone(ctx, userID, zone); err != nil {
		writeRepoError(w, err, "safe zone")
		return
	}

	saved, err := h.repo.GetSafeZone(ctx, userID, id)
	if err != nil {
		writeRepoError(w, err, "safe zone")
		return
	}

	slog.Info("safe zone created", "user_id", userID, "zone_id", id, "kind", zone.Kind)
	writeJSON(w, http.StatusCreated, saved)
}

// GetZone handles GET /zones/{id}.
func (h *Handler) GetZone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	zone, err := h.repo.GetSafeZone(ctx, GetUserID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeRepoError(w, err, "safe zone")
		return
	}

	writeJSON(w, http.StatusOK, zone)
}

// UpdateZone handles PUT /zones/{id}. The zone must already exist.
func (h *Handler) UpdateZone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)
	zoneID := chi.URLParam(r, "id")

	existing, err := h.repo.GetSafeZone(ctx, userID, zoneID)
	if err != nil {
		writeRepoError(w, err, "safe zone")
		return
	}

	var req ZoneRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	zone, problem := req.toZone(zoneID)
	if problem != "" {
		writeError(w, http.StatusBadRequest, problem)
		return
	}
	zone.CreatedAt = existing.CreatedAt

	if err := h.repo.SaveSafeZone(ctx, userID, zone); err != nil {
		writeRepoError(w, err, "safe zone")
		return
	}

	saved, err := h.repo.GetSafeZone(ctx, userID, zoneID)
	if err != nil {
		writeRepoError(w, err, "safe zone")
		return
	}

	writeJSON(w, http.StatusOK, saved)
}

// DeleteZone handles DELETE /zones/{id}.
func (h *Handler) DeleteZone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)
	zoneID := chi.URLParam(r, "id")

	if err := h.repo.DeleteSafeZone(ctx, userID, zoneID); err != nil {
		writeRepoError(w, err, "safe zone")
		return
	}

	slog.Info("safe zone deleted", "user_id", userID, "zone_id", zoneID)
	w.WriteHeader(http.StatusNoContent)
}

// CheckLocation handles POST /locations/check: zone membership, unusual
// location and nearby fraud alerts for a coordinate, without recording it.
func (h *Handler) CheckLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)

	var loc domain.Coordinate
	if !decodeJSON(w, r, &loc) {
		return
	}
	if !validCoordinate(loc) {
		writeError(w, http.StatusBadRequest, "location is out of range")
		return
	}
	if loc.CapturedAt.IsZero() {
		loc.CapturedAt = time.Now().UTC()
	}

	check, err := h.processor.CheckLocation(ctx, userID, loc)
	if err != nil {
		slog.Error("location check failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "location check failed")
		return
	}

	writeJSON(w, http.StatusOK, check)
}

// FraudAlertRequest is the request body for reporting a fraud hotspot.
type FraudAlertRequest struct {
	Title        string            `json:"title"`
	Description  string            `json:"description,omitempty"`
	Location     domain.Coordinate `json:"location"`
	RadiusMeters float64           `json:"radiusMeters"`
	Severity     string            `json:"severity"`
}

// ListFraudAlerts handles GET /fraud-alerts.
func (h *Handler) ListFraudAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.repo.ListFraudAlerts(r.Context())
	if err != nil {
		writeRepoError(w, err, "fraud alerts")
		return
	}
	if alerts == nil {
		alerts = []*domain.FraudAlert{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// CreateFraudAlert handles POST /fraud-alerts. Alerts are visible to every user.
func (h *Handler) CreateFraudAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req FraudAlertRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.RadiusMeters <= 0 {
		writeError(w, http.StatusBadRequest, "radiusMeters must be positive")
		return
	}
	if !validCoordinate(req.Location) {
		writeError(w, http.StatusBadRequest, "location is out of range")
		return
	}

	alert := &domain.FraudAlert{
		ID:           uuid.New().String(),
		Title:        strings.TrimSpace(req.Title),
		Description:  req.Description,
		Location:     req.Location,
		RadiusMeters: req.RadiusMeters,
		Severity:     req.Severity,
		ReportedAt:   time.Now().UTC(),
	}

	if err := h.repo.SaveFraudAlert(ctx, alert); err != nil {
		writeRepoError(w, err, "fraud alert")
		return
	}

	slog.Info("fraud alert reported", "alert_id", alert.ID, "user_id", GetUserID(ctx))
	writeJSON(w, http.StatusCreated, alert)
}
