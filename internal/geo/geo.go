// Package geo detects location anomalies around a scan: safe-zone membership,
// deviation from the user's usual area, and proximity to reported fraud hotspots.
//
// All coordinates are in degrees and all distances in meters unless a name says
// otherwise. Functions here are pure and never mutate their inputs.
package geo

import (
	"fmt"
	"math"
	"sort"

	"github.com/opensource-finance/paysentry/internal/domain"
)

// EarthRadiusMeters is the mean Earth radius used by Distance.
const EarthRadiusMeters = 6371000.0

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b domain.Coordinate) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := lat2 - lat1
	dLon := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// MatchSafeZone returns the first enabled zone containing loc, in caller order.
func MatchSafeZone(loc domain.Coordinate, zones []domain.SafeZone) (domain.SafeZone, bool) {
	for _, z := range zones {
		if z.Enabled && contains(z, loc) {
			return z, true
		}
	}
	return domain.SafeZone{}, false
}

// CheckFraudAlerts returns every alert whose own radius covers loc.
func CheckFraudAlerts(loc domain.Coordinate, alerts []domain.FraudAlert) []domain.FraudAlert {
	var matched []domain.FraudAlert
	for _, a := range alerts {
		if Distance(a.Location, loc) <= a.RadiusMeters {
			matched = append(matched, a)
		}
	}
	return matched
}

// RecordLocation builds the location record for a scan.
func RecordLocation(scanID string, loc domain.Coordinate, merchantName string, zones []domain.SafeZone) domain.LocationRecord {
	rec := domain.LocationRecord{
		ScanID:       scanID,
		Location:     loc,
		MerchantName: merchantName,
	}
	if z, ok := MatchSafeZone(loc, zones); ok {
		rec.InSafeZone = true
		rec.MatchedZoneName = z.Name
	}
	return rec
}

// ZoneExits returns the enabled exit-alerting zones that contain previous but not current.
func ZoneExits(previous, current domain.Coordinate, zones []domain.SafeZone) []domain.SafeZone {
	var exited []domain.SafeZone
	for _, z := range zones {
		if !z.Enabled || !z.AlertOnExit {
			continue
		}
		if contains(z, previous) && !contains(z, current) {
			exited = append(exited, z)
		}
	}
	return exited
}

// Detector flags scans made far from where the user usually pays.
type Detector struct {
	cfg domain.GeoConfig
}

// NewDetector creates a detector. Zero config values take the defaults.
func NewDetector(cfg domain.GeoConfig) *Detector {
	def := domain.DefaultGeoConfig()
	if cfg.DefaultThresholdKm <= 0 {
		cfg.DefaultThresholdKm = def.DefaultThresholdKm
	}
	if cfg.TravelThresholdKm <= 0 {
		cfg.TravelThresholdKm = def.TravelThresholdKm
	}
	if cfg.CentroidWindow <= 0 {
		cfg.CentroidWindow = def.CentroidWindow
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	return &Detector{cfg: cfg}
}

// Config returns the effective configuration.
func (d *Detector) Config() domain.GeoConfig {
	return d.cfg
}

// IsUnusualLocation compares current against the centroid of the most recent
// history records. Empty history is never unusual.
func (d *Detector) IsUnusualLocation(current domain.Coordinate, history []domain.LocationRecord, travel domain.TravelMode) domain.UnusualLocation {
	if len(history) == 0 {
		return domain.UnusualLocation{}
	}

	center := centroid(mostRecent(history, d.cfg.CentroidWindow))
	km := Distance(current, center) / 1000
	threshold := d.Threshold(travel)

	if km <= threshold {
		return domain.UnusualLocation{DistanceKm: km}
	}
	return domain.UnusualLocation{
		Unusual:    true,
		Reason:     fmt.Sprintf("%.1f km from your usual area (limit %.0f km)", km, threshold),
		DistanceKm: km,
	}
}

// Threshold returns the distance in kilometers beyond which a location is unusual.
func (d *Detector) Threshold(travel domain.TravelMode) float64 {
	if !travel.Enabled {
		return d.cfg.DefaultThresholdKm
	}
	if travel.AlertThresholdKm > 0 {
		return travel.AlertThresholdKm
	}
	return d.cfg.TravelThresholdKm
}

func contains(z domain.SafeZone, loc domain.Coordinate) bool {
	return Distance(z.Center, loc) <= z.RadiusMeters
}

// mostRecent returns up to n records, newest first. Ties keep caller order.
func mostRecent(history []domain.LocationRecord, n int) []domain.LocationRecord {
	sorted := make([]domain.LocationRecord, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Location.CapturedAt.After(sorted[j].Location.CapturedAt)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func centroid(records []domain.LocationRecord) domain.Coordinate {
	var lat, lon float64
	for _, r := range records {
		lat += r.Location.Latitude
		lon += r.Location.Longitude
	}
	n := float64(len(records))
	return domain.Coordinate{Latitude: lat / n, Longitude: lon / n}
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
