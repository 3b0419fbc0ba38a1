// Package domain defines the core interfaces and types for PaySentry.
package domain

import (
	"context"
	"time"
)

// GlobalScope is the owner used for records shared by all users,
// such as fraud alerts and classifier rules.
const GlobalScope = "*"

// Repository defines the interface for data persistence.
// All user-scoped methods require userID for strict isolation.
type Repository interface {
	// Scan history
	SaveScan(ctx context.Context, userID string, scan *ScanRecord) error
	GetScan(ctx context.Context, userID string, scanID string) (*ScanRecord, error)
	ListScans(ctx context.Context, userID string, limit int) ([]*ScanRecord, error)

	// CountScansByIdentifier counts all of the user's scans per identifier,
	// skipping excludeScanID.
	CountScansByIdentifier(ctx context.Context, userID string, excludeScanID string) (map[string]int, error)

	// Location history
	SaveLocationRecord(ctx context.Context, userID string, rec *LocationRecord) error
	ListLocationRecords(ctx context.Context, userID string, limit int) ([]*LocationRecord, error)

	// Safe zones
	SaveSafeZone(ctx context.Context, userID string, zone *SafeZone) error
	GetSafeZone(ctx context.Context, userID string, zoneID string) (*SafeZone, error)
	ListSafeZones(ctx context.Context, userID string) ([]*SafeZone, error)
	DeleteSafeZone(ctx context.Context, userID string, zoneID string) error

	// Fraud alerts (global)
	SaveFraudAlert(ctx context.Context, alert *FraudAlert) error
	ListFraudAlerts(ctx context.Context) ([]*FraudAlert, error)

	// Favorites
	AddFavorite(ctx context.Context, userID string, identifier string) error
	RemoveFavorite(ctx context.Context, userID string, identifier string) error
	ListFavorites(ctx context.Context, userID string) ([]string, error)

	// Suggestion dismissals
	DismissSuggestion(ctx context.Context, userID string, suggestionID string) error
	ListDismissedSuggestions(ctx context.Context, userID string) ([]string, error)

	// Preferences; a user without saved preferences gets DefaultPreferences.
	GetPreferences(ctx context.Context, userID string) (*Preferences, error)
	SavePreferences(ctx context.Context, userID string, prefs *Preferences) error

	// Classifier rule configuration (global)
	SaveRuleConfig(ctx context.Context, rule *RuleConfig) error
	ListRuleConfigs(ctx context.Context) ([]*RuleConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
