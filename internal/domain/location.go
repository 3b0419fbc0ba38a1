package domain

import "time"

// Coordinate is a single location sample in degrees.
type Coordinate struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   *float64  `json:"accuracy,omitempty"` // meters
	CapturedAt time.Time `json:"capturedAt"`
}

// ZoneKind classifies a safe zone.
type ZoneKind string

const (
	ZoneHome   ZoneKind = "home"
	ZoneWork   ZoneKind = "work"
	ZoneCustom ZoneKind = "custom"
)

// Valid reports whether k is a known zone kind.
func (k ZoneKind) Valid() bool {
	switch k {
	case ZoneHome, ZoneWork, ZoneCustom:
		return true
	}
	return false
}

// DefaultAlertOnExit returns the exit-alert default for a zone kind.
// Home and work zones alert on exit unless the user says otherwise.
func DefaultAlertOnExit(kind ZoneKind) bool {
	return kind == ZoneHome || kind == ZoneWork
}

// SafeZone is a user-defined geofence considered low risk.
type SafeZone struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId,omitempty"`
	Name         string     `json:"name"`
	Kind         ZoneKind   `json:"kind"`
	Center       Coordinate `json:"center"`
	RadiusMeters float64    `json:"radiusMeters"`
	Enabled      bool       `json:"enabled"`
	AlertOnExit  bool       `json:"alertOnExit"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// LocationRecord ties a location sample to a scan event. Immutable once created.
type LocationRecord struct {
	ScanID          string     `json:"scanId"`
	Location        Coordinate `json:"location"`
	MerchantName    string     `json:"merchantName,omitempty"`
	InSafeZone      bool       `json:"inSafeZone"`
	MatchedZoneName string     `json:"matchedZoneName,omitempty"`
}

// FraudAlert is a reported fraud hotspot with its own alert radius.
type FraudAlert struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Location     Coordinate `json:"location"`
	RadiusMeters float64    `json:"radiusMeters"`
	Severity     string     `json:"severity"`
	ReportedAt   time.Time  `json:"reportedAt"`
}

// UnusualLocation is the result of a centroid-deviation check.
type UnusualLocation struct {
	Unusual    bool    `json:"unusual"`
	Reason     string  `json:"reason,omitempty"`
	DistanceKm float64 `json:"distanceKm,omitempty"`
}
