package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/paysentry/internal/domain"
	"github.com/opensource-finance/paysentry/internal/history"
)

// ListSuggestions handles GET /suggestions: suggestions for the user's latest scan.
func (h *Handler) ListSuggestions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)

	latest, err := h.history.Latest(ctx, userID)
	if errors.Is(err, history.ErrNoScans) {
		writeJSON(w, http.StatusOK, map[string]any{
			"suggestions": []domain.Suggestion{},
			"count":       0,
		})
		return
	}
	if err != nil {
		slog.Error("failed to load latest scan", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load suggestions")
		return
	}

	suggestions, err := h.processor.Suggestions(ctx, userID, *latest)
	if err != nil {
		slog.Error("failed to generate suggestions", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load suggestions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"scanId":      latest.ID,
		"suggestions": suggestions,
		"count":       len(suggestions),
	})
}

// DismissSuggestion handles POST /suggestions/{id}/dismiss.
func (h *Handler) DismissSuggestion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)
	suggestionID := chi.URLParam(r, "id")

	if err := h.repo.DismissSuggestion(ctx, userID, suggestionID); err != nil {
		writeRepoError(w, err, "suggestion")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"dismissed": suggestionID,
	})
}

// FavoriteRequest is the request body for POST /favorites.
type FavoriteRequest struct {
	Identifier string `json:"identifier"`
}

// ListFavorites handles GET /favorites.
func (h *Handler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	favorites, err := h.repo.ListFavorites(ctx, GetUserID(ctx))
	if err != nil {
		writeRepoError(w, err, "favorites")
		return
	}
	if favorites == nil {
		favorites = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"favorites": favorites,
		"count":     len(favorites),
	})
}

// AddFavorite handles POST /favorites. Identifiers are stored lower-cased,
// the same form the parser produces.
func (h *Handler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req FavoriteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	identifier := strings.ToLower(strings.TrimSpace(req.Identifier))
	if strings.Count(identifier, "@") != 1 {
		writeError(w, http.StatusBadRequest, "identifier must be in user@handle form")
		return
	}

	if err := h.repo.AddFavorite(ctx, GetUserID(ctx), identifier); err != nil {
		writeRepoError(w, err, "favorite")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"identifier": identifier,
	})
}

// RemoveFavorite handles DELETE /favorites/{identifier}.
func (h *Handler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identifier := strings.ToLower(chi.URLParam(r, "identifier"))

	if err := h.repo.RemoveFavorite(ctx, GetUserID(ctx), identifier); err != nil {
		writeRepoError(w, err, "favorite")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetPreferences handles GET /preferences.
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	prefs, err := h.repo.GetPreferences(ctx, GetUserID(ctx))
	if err != nil {
		writeRepoError(w, err, "preferences")
		return
	}

	writeJSON(w, http.StatusOK, prefs)
}

// UpdatePreferences handles PUT /preferences.
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)

	var prefs domain.Preferences
	if !decodeJSON(w, r, &prefs) {
		return
	}
	if prefs.TravelMode.AlertThresholdKm < 0 {
		writeError(w, http.StatusBadRequest, "travelMode.alertThresholdKm must not be negative")
		return
	}

	if err := h.repo.SavePreferences(ctx, userID, &prefs); err != nil {
		writeRepoError(w, err, "preferences")
		return
	}

	slog.Info("preferences updated",
		"user_id", userID,
		"smart_suggestions", prefs.EnableSmartSuggestions,
		"travel_mode", prefs.TravelMode.Enabled,
	)
	writeJSON(w, http.StatusOK, prefs)
}
