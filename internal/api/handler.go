package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/paysentry/internal/address"
	"github.com/opensource-finance/paysentry/internal/domain"
	"github.com/opensource-finance/paysentry/internal/history"
	"github.com/opensource-finance/paysentry/internal/repository"
	"github.com/opensource-finance/paysentry/internal/risk"
	"github.com/opensource-finance/paysentry/internal/scan"
)

// maxListLimit caps ?limit= on list endpoints.
const maxListLimit = 500

// Handler holds dependencies for API handlers.
type Handler struct {
	riskCfg   domain.RiskConfig
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	processor *scan.Processor
	history   *history.Service
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(riskCfg domain.RiskConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, processor *scan.Processor, hist *history.Service, version string) *Handler {
	return &Handler{
		riskCfg:   riskCfg,
		repo:      repo,
		cache:     cache,
		bus:       bus,
		processor: processor,
		history:   hist,
		version:   version,
	}
}

// ScanRequest is the request body for POST /scans.
type ScanRequest struct {
	QR       string              `json:"qr"`
	Amount   decimal.NullDecimal `json:"amount"`
	Location *domain.Coordinate  `json:"location,omitempty"`
}

// CreateScan handles POST /scans: evaluates a scanned QR string for the user.
// A string that is not a payment address is answered with valid=false.
func (h *Handler) CreateScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)

	var req ScanRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.QR) == "" {
		writeError(w, http.StatusBadRequest, "qr is required")
		return
	}
	if req.Location != nil && !validCoordinate(*req.Location) {
		writeError(w, http.StatusBadRequest, "location is out of range")
		return
	}

	out, err := h.processor.Process(ctx, userID, scan.Request{
		Raw:      req.QR,
		Amount:   req.Amount,
		Location: req.Location,
		TraceID:  GetTraceID(ctx),
	})
	if errors.Is(err, scan.ErrInvalidRequest) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.Error("scan processing failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "scan processing failed")
		return
	}

	writeJSON(w, http.StatusOK, out)
}

// ListScans handles GET /scans: the user's scan history, newest first.
func (h *Handler) ListScans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	scans, err := h.repo.ListScans(ctx, userID, limit)
	if err != nil {
		slog.Error("failed to list scans", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list scans")
		return
	}
	if scans == nil {
		scans = []*domain.ScanRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"scans": scans,
		"count": len(scans),
	})
}

// ParseRequest is the request body for POST /parse and POST /classify.
type ParseRequest struct {
	QR string `json:"qr"`
}

// Parse handles POST /parse.
func (h *Handler) Parse(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	addr, err := h.processor.Parser().Parse(req.QR)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":  "not a valid payment address",
			"reason": address.Reason(err),
		})
		return
	}

	writeJSON(w, http.StatusOK, addr)
}

// Classify handles POST /classify: parse then classify without persisting.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	addr, err := h.processor.Parser().Parse(req.QR)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":  "not a valid payment address",
			"reason": address.Reason(err),
		})
		return
	}

	result, cached := h.processor.Classify(r.Context(), addr)
	writeJSON(w, http.StatusOK, map[string]any{
		"address": addr,
		"risk":    result,
		"cached":  cached,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check bus health
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRules returns stored custom rules and how many the classifier has loaded.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	configs, err := h.repo.ListRuleConfigs(r.Context())
	if err != nil {
		slog.Error("failed to list rules", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list rules")
		return
	}
	if configs == nil {
		configs = []*domain.RuleConfig{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  configs,
		"count":  len(configs),
		"loaded": h.processor.Classifier().RulesCount(),
	})
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Points      int    `json:"points"`
	Reason      string `json:"reason"`
	Enabled     bool   `json:"enabled"`
}

// CreateRule validates and stores a custom classifier rule.
// Rules are global; call POST /rules/reload to apply them.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeError(w, http.StatusBadRequest, "id, name, and expression are required")
		return
	}
	if req.Points < -100 || req.Points > 100 {
		writeError(w, http.StatusBadRequest, "points must be between -100 and 100")
		return
	}

	rule := &domain.RuleConfig{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Points:      req.Points,
		Reason:      req.Reason,
		Enabled:     req.Enabled,
	}

	if err := risk.ValidateRule(rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid CEL expression: "+err.Error())
		return
	}

	if err := h.repo.SaveRuleConfig(ctx, rule); err != nil {
		slog.Error("failed to save rule config", "id", rule.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save rule")
		return
	}

	slog.Info("rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules rebuilds the classifier from the stored rules.
// Cached classifications from the previous rule set are not served afterwards.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	configs, err := h.repo.ListRuleConfigs(r.Context())
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load rules from database")
		return
	}

	classifier, err := risk.NewClassifier(h.riskCfg, configs)
	if err != nil {
		slog.Error("failed to reload rules", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reload rules: "+err.Error())
		return
	}
	h.processor.SetClassifier(classifier)

	slog.Info("rules reloaded from database", "count", classifier.RulesCount())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   classifier.RulesCount(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeRepoError maps repository sentinels onto HTTP statuses.
func writeRepoError(w http.ResponseWriter, err error, what string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, repository.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("repository operation failed", "resource", what, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to access "+what)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	return true
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, true
}

func validCoordinate(c domain.Coordinate) bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}
