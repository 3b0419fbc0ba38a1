package repository

// Schema definitions for the PaySentry database.
// Compatible with both SQLite and PostgreSQL.

const schemaScans = `
CREATE TABLE IF NOT EXISTS scans (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    identifier TEXT NOT NULL,
    merchant_name TEXT NOT NULL DEFAULT '',
    amount TEXT,
    status TEXT NOT NULL,
    score INTEGER NOT NULL,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scans_user_time ON scans(user_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_scans_identifier ON scans(user_id, identifier);
`

const schemaLocationRecords = `
CREATE TABLE IF NOT EXISTS location_records (
    scan_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    latitude REAL NOT NULL,
    longitude REAL NOT NULL,
    accuracy REAL,
    captured_at TIMESTAMP NOT NULL,
    merchant_name TEXT NOT NULL DEFAULT '',
    in_safe_zone INTEGER NOT NULL DEFAULT 0,
    matched_zone_name TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (user_id, scan_id)
);

CREATE INDEX IF NOT EXISTS idx_location_records_time ON location_records(user_id, captured_at);
`

const schemaSafeZones = `
CREATE TABLE IF NOT EXISTS safe_zones (
    id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    name TEXT NOT NULL,
    kind TEXT NOT NULL,
    latitude REAL NOT NULL,
    longitude REAL NOT NULL,
    radius_meters REAL NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    alert_on_exit INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_safe_zones_user ON safe_zones(user_id);
`

const schemaFraudAlerts = `
CREATE TABLE IF NOT EXISTS fraud_alerts (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    latitude REAL NOT NULL,
    longitude REAL NOT NULL,
    radius_meters REAL NOT NULL,
    severity TEXT NOT NULL DEFAULT '',
    reported_at TIMESTAMP NOT NULL
);
`

const schemaFavorites = `
CREATE TABLE IF NOT EXISTS favorites (
    user_id TEXT NOT NULL,
    identifier TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (user_id, identifier)
);
`

const schemaDismissedSuggestions = `
CREATE TABLE IF NOT EXISTS dismissed_suggestions (
    user_id TEXT NOT NULL,
    suggestion_id TEXT NOT NULL,
    dismissed_at TIMESTAMP NOT NULL,
    PRIMARY KEY (user_id, suggestion_id)
);
`

const schemaPreferences = `
CREATE TABLE IF NOT EXISTS preferences (
    user_id TEXT PRIMARY KEY,
    enable_smart_suggestions INTEGER NOT NULL DEFAULT 1,
    travel_enabled INTEGER NOT NULL DEFAULT 0,
    travel_threshold_km REAL NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL
);
`

// schemaRuleConfigs holds operator-defined CEL rules for the classifier.
// Rules are global; they apply to every user's scans.
const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    expression TEXT NOT NULL,
    points INTEGER NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaScans,
		schemaLocationRecords,
		schemaSafeZones,
		schemaFraudAlerts,
		schemaFavorites,
		schemaDismissedSuggestions,
		schemaPreferences,
		schemaRuleConfigs,
	}
}
