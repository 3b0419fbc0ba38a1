package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opensource-finance/paysentry/internal/domain"
)

// AddFavorite marks an identifier as a favorite. Adding twice is a no-op.
func (r *SQLRepository) AddFavorite(ctx context.Context, userID string, identifier string) error {
	if userID == "" || identifier == "" {
		return fmt.Errorf("%w: userID and identifier are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO favorites (user_id, identifier, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, identifier) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), userID, identifier, now())
	return err
}

// RemoveFavorite unmarks a favorite.
func (r *SQLRepository) RemoveFavorite(ctx context.Context, userID string, identifier string) error {
	if userID == "" {
		return fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}

	query := `DELETE FROM favorites WHERE user_id = ? AND identifier = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), userID, identifier)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// ListFavorites returns a user's favorite identifiers in the order they were added.
func (r *SQLRepository) ListFavorites(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}

	query := `SELECT identifier FROM favorites WHERE user_id = ? ORDER BY created_at, identifier`
	return r.listStrings(ctx, query, userID)
}

// DismissSuggestion records that a user dismissed a suggestion.
func (r *SQLRepository) DismissSuggestion(ctx context.Context, userID string, suggestionID string) error {
	if userID == "" || suggestionID == "" {
		return fmt.Errorf("%w: userID and suggestion id are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO dismissed_suggestions (user_id, suggestion_id, dismissed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, suggestion_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), userID, suggestionID, now())
	return err
}

// ListDismissedSuggestions returns the ids a user dismissed.
func (r *SQLRepository) ListDismissedSuggestions(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}

	query := `SELECT suggestion_id FROM dismissed_suggestions WHERE user_id = ? ORDER BY dismissed_at, suggestion_id`
	return r.listStrings(ctx, query, userID)
}

// GetPreferences returns a user's preferences, or the defaults if none were saved.
func (r *SQLRepository) GetPreferences(ctx context.Context, userID string) (*domain.Preferences, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}

	query := `
		SELECT enable_smart_suggestions, travel_enabled, travel_threshold_km
		FROM preferences
		WHERE user_id = ?
	`

	var smart, travel int
	var prefs domain.Preferences

	err := r.db.QueryRowContext(ctx, r.rebind(query), userID).Scan(
		&smart, &travel, &prefs.TravelMode.AlertThresholdKm,
	)
	if errors.Is(err, sql.ErrNoRows) {
		def := domain.DefaultPreferences()
		return &def, nil
	}
	if err != nil {
		return nil, err
	}

	prefs.EnableSmartSuggestions = smart == 1
	prefs.TravelMode.Enabled = travel == 1
	return &prefs, nil
}

// SavePreferences creates or replaces a user's preferences.
func (r *SQLRepository) SavePreferences(ctx context.Context, userID string, prefs *domain.Preferences) error {
	if userID == "" {
		return fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}
	if prefs == nil {
		return fmt.Errorf("%w: preferences are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO preferences (
			user_id, enable_smart_suggestions, travel_enabled, travel_threshold_km, updated_at
		) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			enable_smart_suggestions = excluded.enable_smart_suggestions,
			travel_enabled = excluded.travel_enabled,
			travel_threshold_km = excluded.travel_threshold_km,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		userID, boolToInt(prefs.EnableSmartSuggestions),
		boolToInt(prefs.TravelMode.Enabled), prefs.TravelMode.AlertThresholdKm,
		now(),
	)
	return err
}

// SaveRuleConfig creates or updates a custom classifier rule.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, rule *domain.RuleConfig) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	ts := now()

	query := `
		INSERT INTO rule_configs (
			id, name, description, expression, points, reason, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			points = excluded.points,
			reason = excluded.reason,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Expression,
		rule.Points, rule.Reason, boolToInt(rule.Enabled),
		ts, ts,
	)
	return err
}

// ListRuleConfigs returns every custom rule, enabled or not, ordered by name.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context) ([]*domain.RuleConfig, error) {
	query := `
		SELECT id, name, description, expression, points, reason, enabled, created_at, updated_at
		FROM rule_configs
		ORDER BY name, id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		var cfg domain.RuleConfig
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.Name, &cfg.Description, &cfg.Expression,
			&cfg.Points, &cfg.Reason, &enabled, &cfg.CreatedAt, &cfg.UpdatedAt,
		); err != nil {
			return nil, err
		}

		cfg.Enabled = enabled == 1
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

func (r *SQLRepository) listStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}

	return out, rows.Err()
}
