package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opensource-finance/paysentry/internal/domain"
)

// SaveSafeZone creates or updates a user's safe zone.
func (r *SQLRepository) SaveSafeZone(ctx context.Context, userID string, zone *domain.SafeZone) error {
	if userID == "" {
		return fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}
	if zone == nil || zone.ID == "" {
		return fmt.Errorf("%w: zone id is required", ErrInvalidInput)
	}

	ts := now()
	created := zone.CreatedAt
	if created.IsZero() {
		created = ts
	}

	query := `
		INSERT INTO safe_zones (
			id, user_id, name, kind, latitude, longitude, radius_meters,
			enabled, alert_on_exit, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, user_id) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			radius_meters = excluded.radius_meters,
			enabled = excluded.enabled,
			alert_on_exit = excluded.alert_on_exit,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		zone.ID, userID, zone.Name, string(zone.Kind),
		zone.Center.Latitude, zone.Center.Longitude, zone.RadiusMeters,
		boolToInt(zone.Enabled), boolToInt(zone.AlertOnExit),
		created.UTC(), ts,
	)
	return err
}

// GetSafeZone retrieves a safe zone with user isolation.
func (r *SQLRepository) GetSafeZone(ctx context.Context, userID string, zoneID string) (*domain.SafeZone, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, user_id, name, kind, latitude, longitude, radius_meters,
			   enabled, alert_on_exit, created_at, updated_at
		FROM safe_zones
		WHERE user_id = ? AND id = ?
	`

	zone, err := scanZone(r.db.QueryRowContext(ctx, r.rebind(query), userID, zoneID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return zone, nil
}

// ListSafeZones returns a user's zones in creation order, which is also the
// order zone matching walks them.
func (r *SQLRepository) ListSafeZones(ctx context.Context, userID string) ([]*domain.SafeZone, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, user_id, name, kind, latitude, longitude, radius_meters,
			   enabled, alert_on_exit, created_at, updated_at
		FROM safe_zones
		WHERE user_id = ?
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var zones []*domain.SafeZone
	for rows.Next() {
		zone, err := scanZone(rows)
		if err != nil {
			return nil, err
		}
		zones = append(zones, zone)
	}

	return zones, rows.Err()
}

// DeleteSafeZone removes a user's safe zone.
func (r *SQLRepository) DeleteSafeZone(ctx context.Context, userID string, zoneID string) error {
	if userID == "" {
		return fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}

	query := `DELETE FROM safe_zones WHERE user_id = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), userID, zoneID)
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

// SaveFraudAlert creates or updates a community fraud alert.
func (r *SQLRepository) SaveFraudAlert(ctx context.Context, alert *domain.FraudAlert) error {
	if alert == nil || alert.ID == "" {
		return fmt.Errorf("%w: alert id is required", ErrInvalidInput)
	}

	reported := alert.ReportedAt
	if reported.IsZero() {
		reported = now()
	}

	query := `
		INSERT INTO fraud_alerts (
			id, title, description, latitude, longitude, radius_meters, severity, reported_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			radius_meters = excluded.radius_meters,
			severity = excluded.severity
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		alert.ID, alert.Title, alert.Description,
		alert.Location.Latitude, alert.Location.Longitude, alert.RadiusMeters,
		alert.Severity, reported.UTC(),
	)
	return err
}

// ListFraudAlerts returns all fraud alerts, newest first.
func (r *SQLRepository) ListFraudAlerts(ctx context.Context) ([]*domain.FraudAlert, error) {
	query := `
		SELECT id, title, description, latitude, longitude, radius_meters, severity, reported_at
		FROM fraud_alerts
		ORDER BY reported_at DESC, id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.FraudAlert
	for rows.Next() {
		var a domain.FraudAlert
		if err := rows.Scan(
			&a.ID, &a.Title, &a.Description,
			&a.Location.Latitude, &a.Location.Longitude, &a.RadiusMeters,
			&a.Severity, &a.ReportedAt,
		); err != nil {
			return nil, err
		}
		alerts = append(alerts, &a)
	}

	return alerts, rows.Err()
}

func scanZone(row rowScanner) (*domain.SafeZone, error) {
	var z domain.SafeZone
	var kind string
	var enabled, alertOnExit int

	if err := row.Scan(
		&z.ID, &z.UserID, &z.Name, &kind,
		&z.Center.Latitude, &z.Center.Longitude, &z.RadiusMeters,
		&enabled, &alertOnExit, &z.CreatedAt, &z.UpdatedAt,
	); err != nil {
		return nil, err
	}

	z.Kind = domain.ZoneKind(kind)
	z.Enabled = enabled == 1
	z.AlertOnExit = alertOnExit == 1
	return &z, nil
}
