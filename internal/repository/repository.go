// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/paysentry/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

const defaultListLimit = 100

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveScan stores a scan record for a user.
func (r *SQLRepository) SaveScan(ctx context.Context, userID string, scan *domain.ScanRecord) error {
	if userID == "" {
		return fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}
	if scan == nil || scan.ID == "" {
		return fmt.Errorf("%w: scan id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO scans (
			id, user_id, identifier, merchant_name, amount, status, score, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		scan.ID, userID, scan.Identifier, scan.MerchantName,
		scan.Amount, string(scan.Status), scan.Score, scan.Timestamp.UTC(),
	)
	return err
}

// GetScan retrieves a scan by ID with user isolation.
func (r *SQLRepository) GetScan(ctx context.Context, userID string, scanID string) (*domain.ScanRecord, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, user_id, identifier, merchant_name, amount, status, score, timestamp
		FROM scans
		WHERE user_id = ? AND id = ?
	`

	scan, err := scanRecord(r.db.QueryRowContext(ctx, r.rebind(query), userID, scanID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return scan, nil
}

// ListScans returns a user's most recent scans, newest first.
func (r *SQLRepository) ListScans(ctx context.Context, userID string, limit int) ([]*domain.ScanRecord, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT id, user_id, identifier, merchant_name, amount, status, score, timestamp
		FROM scans
		WHERE user_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scans []*domain.ScanRecord
	for rows.Next() {
		scan, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, scan)
	}

	return scans, rows.Err()
}

// CountScansByIdentifier returns the number of scans per identifier across the
// user's whole history, skipping excludeScanID.
func (r *SQLRepository) CountScansByIdentifier(ctx context.Context, userID string, excludeScanID string) (map[string]int, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}

	query := `
		SELECT identifier, COUNT(*)
		FROM scans
		WHERE user_id = ? AND id <> ?
		GROUP BY identifier
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), userID, excludeScanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var identifier string
		var n int
		if err := rows.Scan(&identifier, &n); err != nil {
			return nil, err
		}
		counts[identifier] = n
	}

	return counts, rows.Err()
}

// SaveLocationRecord stores the location captured with a scan.
func (r *SQLRepository) SaveLocationRecord(ctx context.Context, userID string, rec *domain.LocationRecord) error {
	if userID == "" {
		return fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}
	if rec == nil || rec.ScanID == "" {
		return fmt.Errorf("%w: scan id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO location_records (
			scan_id, user_id, latitude, longitude, accuracy, captured_at,
			merchant_name, in_safe_zone, matched_zone_name
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var accuracy sql.NullFloat64
	if rec.Location.Accuracy != nil {
		accuracy = sql.NullFloat64{Float64: *rec.Location.Accuracy, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.ScanID, userID,
		rec.Location.Latitude, rec.Location.Longitude, accuracy,
		rec.Location.CapturedAt.UTC(),
		rec.MerchantName, boolToInt(rec.InSafeZone), rec.MatchedZoneName,
	)
	return err
}

// ListLocationRecords returns a user's most recent location records, newest first.
func (r *SQLRepository) ListLocationRecords(ctx context.Context, userID string, limit int) ([]*domain.LocationRecord, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT scan_id, latitude, longitude, accuracy, captured_at,
			   merchant_name, in_safe_zone, matched_zone_name
		FROM location_records
		WHERE user_id = ?
		ORDER BY captured_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.LocationRecord
	for rows.Next() {
		var rec domain.LocationRecord
		var accuracy sql.NullFloat64
		var inZone int

		if err := rows.Scan(
			&rec.ScanID, &rec.Location.Latitude, &rec.Location.Longitude,
			&accuracy, &rec.Location.CapturedAt,
			&rec.MerchantName, &inZone, &rec.MatchedZoneName,
		); err != nil {
			return nil, err
		}

		if accuracy.Valid {
			v := accuracy.Float64
			rec.Location.Accuracy = &v
		}
		rec.InSafeZone = inZone == 1
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.ScanRecord, error) {
	var scan domain.ScanRecord
	var status string

	if err := row.Scan(
		&scan.ID, &scan.UserID, &scan.Identifier, &scan.MerchantName,
		&scan.Amount, &status, &scan.Score, &scan.Timestamp,
	); err != nil {
		return nil, err
	}

	scan.Status = domain.ScanStatus(status)
	return &scan, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func now() time.Time {
	return time.Now().UTC()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
