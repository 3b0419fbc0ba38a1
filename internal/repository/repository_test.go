package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/paysentry/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "paysentry-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	userID := "user-001"
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetScan", func(t *testing.T) {
		scan := &domain.ScanRecord{
			ID:           "scan-001",
			Identifier:   "shop@ybl",
			MerchantName: "Corner Shop",
			Amount:       decimal.NewNullDecimal(decimal.RequireFromString("249.50")),
			Status:       domain.ScanSafe,
			Score:        0,
			Timestamp:    base,
		}

		if err := repo.SaveScan(ctx, userID, scan); err != nil {
			t.Fatalf("SaveScan failed: %v", err)
		}

		got, err := repo.GetScan(ctx, userID, scan.ID)
		if err != nil {
			t.Fatalf("GetScan failed: %v", err)
		}

		if got.Identifier != scan.Identifier {
			t.Errorf("expected identifier %s, got %s", scan.Identifier, got.Identifier)
		}
		if got.UserID != userID {
			t.Errorf("expected user %s, got %s", userID, got.UserID)
		}
		if !got.Amount.Valid || !got.Amount.Decimal.Equal(scan.Amount.Decimal) {
			t.Errorf("expected amount %s, got %+v", scan.Amount.Decimal, got.Amount)
		}
		if got.Status != domain.ScanSafe {
			t.Errorf("expected status safe, got %s", got.Status)
		}
		if !got.Timestamp.Equal(base) {
			t.Errorf("expected timestamp %v, got %v", base, got.Timestamp)
		}
	})

	t.Run("ScanWithoutAmount", func(t *testing.T) {
		scan := &domain.ScanRecord{
			ID:         "scan-002",
			Identifier: "kyc-support@upi",
			Status:     domain.ScanRisky,
			Score:      90,
			Timestamp:  base.Add(time.Hour),
		}
		if err := repo.SaveScan(ctx, userID, scan); err != nil {
			t.Fatalf("SaveScan failed: %v", err)
		}

		got, err := repo.GetScan(ctx, userID, scan.ID)
		if err != nil {
			t.Fatalf("GetScan failed: %v", err)
		}
		if got.Amount.Valid {
			t.Errorf("expected no amount, got %s", got.Amount.Decimal)
		}
		if got.Score != 90 {
			t.Errorf("expected score 90, got %d", got.Score)
		}
	})

	t.Run("ListScansNewestFirst", func(t *testing.T) {
		scans, err := repo.ListScans(ctx, userID, 10)
		if err != nil {
			t.Fatalf("ListScans failed: %v", err)
		}
		if len(scans) != 2 {
			t.Fatalf("expected 2 scans, got %d", len(scans))
		}
		if scans[0].ID != "scan-002" {
			t.Errorf("expected newest scan first, got %s", scans[0].ID)
		}

		limited, err := repo.ListScans(ctx, userID, 1)
		if err != nil {
			t.Fatalf("ListScans failed: %v", err)
		}
		if len(limited) != 1 {
			t.Errorf("expected limit to apply, got %d", len(limited))
		}
	})

	t.Run("UserIsolation", func(t *testing.T) {
		_, err := repo.GetScan(ctx, "user-002", "scan-001")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for different user, got: %v", err)
		}

		scans, err := repo.ListScans(ctx, "user-002", 10)
		if err != nil {
			t.Fatalf("ListScans failed: %v", err)
		}
		if len(scans) != 0 {
			t.Errorf("expected no scans for other user, got %d", len(scans))
		}
	})

	t.Run("RequiresUserID", func(t *testing.T) {
		err := repo.SaveScan(ctx, "", &domain.ScanRecord{ID: "x"})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}

		_, err = repo.ListScans(ctx, "", 10)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}

		_, err = repo.ListFavorites(ctx, "")
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("LocationRecords", func(t *testing.T) {
		acc := 12.5
		for i := 0; i < 3; i++ {
			rec := &domain.LocationRecord{
				ScanID: fmt.Sprintf("scan-loc-%d", i),
				Location: domain.Coordinate{
					Latitude:   12.97 + float64(i)*0.01,
					Longitude:  77.59,
					CapturedAt: base.Add(time.Duration(i) * time.Minute),
				},
				MerchantName:    "Cafe",
				InSafeZone:      i == 0,
				MatchedZoneName: "",
			}
			if i == 0 {
				rec.Location.Accuracy = &acc
				rec.MatchedZoneName = "Home"
			}
			if err := repo.SaveLocationRecord(ctx, userID, rec); err != nil {
				t.Fatalf("SaveLocationRecord failed: %v", err)
			}
		}

		recs, err := repo.ListLocationRecords(ctx, userID, 10)
		if err != nil {
			t.Fatalf("ListLocationRecords failed: %v", err)
		}
		if len(recs) != 3 {
			t.Fatalf("expected 3 records, got %d", len(recs))
		}
		if recs[0].ScanID != "scan-loc-2" {
			t.Errorf("expected newest record first, got %s", recs[0].ScanID)
		}

		oldest := recs[2]
		if !oldest.InSafeZone || oldest.MatchedZoneName != "Home" {
			t.Errorf("expected zone membership to round-trip, got %+v", oldest)
		}
		if oldest.Location.Accuracy == nil || *oldest.Location.Accuracy != acc {
			t.Errorf("expected accuracy %.1f, got %v", acc, oldest.Location.Accuracy)
		}
		if recs[0].Location.Accuracy != nil {
			t.Error("expected nil accuracy when not captured")
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.GetScan(ctx, userID, "nonexistent")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}

		_, err = repo.GetSafeZone(ctx, userID, "nonexistent")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestCountScansByIdentifier(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	identifiers := []string{"shop@ybl", "shop@ybl", "cafe@oksbi", "shop@ybl"}
	for i, id := range identifiers {
		scan := &domain.ScanRecord{
			ID:         fmt.Sprintf("count-%d", i),
			Identifier: id,
			Status:     domain.ScanSafe,
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.SaveScan(ctx, "user-001", scan); err != nil {
			t.Fatalf("SaveScan failed: %v", err)
		}
	}
	other := &domain.ScanRecord{ID: "count-other", Identifier: "shop@ybl", Status: domain.ScanSafe, Timestamp: base}
	if err := repo.SaveScan(ctx, "user-002", other); err != nil {
		t.Fatalf("SaveScan failed: %v", err)
	}

	counts, err := repo.CountScansByIdentifier(ctx, "user-001", "count-3")
	if err != nil {
		t.Fatalf("CountScansByIdentifier failed: %v", err)
	}
	if counts["shop@ybl"] != 2 {
		t.Errorf("expected 2 shop scans excluding count-3, got %d", counts["shop@ybl"])
	}
	if counts["cafe@oksbi"] != 1 {
		t.Errorf("expected 1 cafe scan, got %d", counts["cafe@oksbi"])
	}

	_, err = repo.CountScansByIdentifier(ctx, "", "")
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty userID, got %v", err)
	}
}

func TestSafeZonesAndAlerts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	userID := "user-001"

	home := &domain.SafeZone{
		ID:           "zone-home",
		Name:         "Home",
		Kind:         domain.ZoneHome,
		Center:       domain.Coordinate{Latitude: 12.9716, Longitude: 77.5946},
		RadiusMeters: 300,
		Enabled:      true,
		AlertOnExit:  true,
		CreatedAt:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	work := &domain.SafeZone{
		ID:           "zone-work",
		Name:         "Office",
		Kind:         domain.ZoneWork,
		Center:       domain.Coordinate{Latitude: 12.93, Longitude: 77.62},
		RadiusMeters: 500,
		Enabled:      true,
		CreatedAt:    time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
	}

	t.Run("SaveAndList", func(t *testing.T) {
		for _, z := range []*domain.SafeZone{work, home} {
			if err := repo.SaveSafeZone(ctx, userID, z); err != nil {
				t.Fatalf("SaveSafeZone failed: %v", err)
			}
		}

		zones, err := repo.ListSafeZones(ctx, userID)
		if err != nil {
			t.Fatalf("ListSafeZones failed: %v", err)
		}
		if len(zones) != 2 {
			t.Fatalf("expected 2 zones, got %d", len(zones))
		}
		if zones[0].ID != "zone-home" {
			t.Errorf("expected creation order, got %s first", zones[0].ID)
		}
		if !zones[0].AlertOnExit || zones[1].AlertOnExit {
			t.Error("alert-on-exit flag did not round-trip")
		}
	})

	t.Run("Update", func(t *testing.T) {
		updated := *home
		updated.RadiusMeters = 800
		updated.Enabled = false
		if err := repo.SaveSafeZone(ctx, userID, &updated); err != nil {
			t.Fatalf("SaveSafeZone failed: %v", err)
		}

		got, err := repo.GetSafeZone(ctx, userID, home.ID)
		if err != nil {
			t.Fatalf("GetSafeZone failed: %v", err)
		}
		if got.RadiusMeters != 800 || got.Enabled {
			t.Errorf("expected update to apply, got %+v", got)
		}
		if got.Kind != domain.ZoneHome {
			t.Errorf("expected kind home, got %s", got.Kind)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.DeleteSafeZone(ctx, userID, work.ID); err != nil {
			t.Fatalf("DeleteSafeZone failed: %v", err)
		}
		if err := repo.DeleteSafeZone(ctx, userID, work.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
		if err := repo.DeleteSafeZone(ctx, "user-002", home.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected other user's delete to miss, got %v", err)
		}
	})

	t.Run("FraudAlerts", func(t *testing.T) {
		alerts := []*domain.FraudAlert{
			{ID: "alert-1", Title: "Skimmer", Location: domain.Coordinate{Latitude: 12.97, Longitude: 77.59}, RadiusMeters: 200, Severity: "high", ReportedAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
			{ID: "alert-2", Title: "Fake QR stickers", Location: domain.Coordinate{Latitude: 12.98, Longitude: 77.60}, RadiusMeters: 100, Severity: "medium", ReportedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		}
		for _, a := range alerts {
			if err := repo.SaveFraudAlert(ctx, a); err != nil {
				t.Fatalf("SaveFraudAlert failed: %v", err)
			}
		}

		got, err := repo.ListFraudAlerts(ctx)
		if err != nil {
			t.Fatalf("ListFraudAlerts failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 alerts, got %d", len(got))
		}
		if got[0].ID != "alert-2" {
			t.Errorf("expected newest alert first, got %s", got[0].ID)
		}
		if got[1].RadiusMeters != 200 {
			t.Errorf("expected radius 200, got %.0f", got[1].RadiusMeters)
		}
	})
}

func TestUserSettings(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	userID := "user-001"

	t.Run("Favorites", func(t *testing.T) {
		for _, id := range []string{"a@ybl", "b@ybl", "a@ybl"} {
			if err := repo.AddFavorite(ctx, userID, id); err != nil {
				t.Fatalf("AddFavorite failed: %v", err)
			}
		}

		favs, err := repo.ListFavorites(ctx, userID)
		if err != nil {
			t.Fatalf("ListFavorites failed: %v", err)
		}
		if len(favs) != 2 {
			t.Fatalf("expected 2 favorites, got %v", favs)
		}

		if err := repo.RemoveFavorite(ctx, userID, "a@ybl"); err != nil {
			t.Fatalf("RemoveFavorite failed: %v", err)
		}
		if err := repo.RemoveFavorite(ctx, userID, "a@ybl"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}

		favs, _ = repo.ListFavorites(ctx, userID)
		if len(favs) != 1 || favs[0] != "b@ybl" {
			t.Errorf("expected [b@ybl], got %v", favs)
		}
	})

	t.Run("Dismissals", func(t *testing.T) {
		for _, id := range []string{"favorite:m@x", "safety-streak", "favorite:m@x"} {
			if err := repo.DismissSuggestion(ctx, userID, id); err != nil {
				t.Fatalf("DismissSuggestion failed: %v", err)
			}
		}

		ids, err := repo.ListDismissedSuggestions(ctx, userID)
		if err != nil {
			t.Fatalf("ListDismissedSuggestions failed: %v", err)
		}
		if len(ids) != 2 {
			t.Errorf("expected 2 dismissals, got %v", ids)
		}

		other, _ := repo.ListDismissedSuggestions(ctx, "user-002")
		if len(other) != 0 {
			t.Errorf("expected no dismissals for other user, got %v", other)
		}
	})

	t.Run("PreferencesDefault", func(t *testing.T) {
		prefs, err := repo.GetPreferences(ctx, "new-user")
		if err != nil {
			t.Fatalf("GetPreferences failed: %v", err)
		}
		if !prefs.EnableSmartSuggestions || prefs.TravelMode.Enabled {
			t.Errorf("expected defaults, got %+v", prefs)
		}
	})

	t.Run("PreferencesRoundTrip", func(t *testing.T) {
		in := &domain.Preferences{
			EnableSmartSuggestions: false,
			TravelMode:             domain.TravelMode{Enabled: true, AlertThresholdKm: 250},
		}
		if err := repo.SavePreferences(ctx, userID, in); err != nil {
			t.Fatalf("SavePreferences failed: %v", err)
		}

		got, err := repo.GetPreferences(ctx, userID)
		if err != nil {
			t.Fatalf("GetPreferences failed: %v", err)
		}
		if *got != *in {
			t.Errorf("expected %+v, got %+v", in, got)
		}
	})

	t.Run("RuleConfigs", func(t *testing.T) {
		rules := []*domain.RuleConfig{
			{ID: "r2", Name: "Zeta", Expression: `handle == "xyz"`, Points: 10, Reason: "xyz handle", Enabled: true},
			{ID: "r1", Name: "Alpha", Expression: `merchant_code == ""`, Points: 5, Reason: "no merchant code", Enabled: false},
		}
		for _, r := range rules {
			if err := repo.SaveRuleConfig(ctx, r); err != nil {
				t.Fatalf("SaveRuleConfig failed: %v", err)
			}
		}

		got, err := repo.ListRuleConfigs(ctx)
		if err != nil {
			t.Fatalf("ListRuleConfigs failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 rules, got %d", len(got))
		}
		if got[0].Name != "Alpha" || got[0].Enabled {
			t.Errorf("expected disabled Alpha first, got %+v", got[0])
		}
		if got[1].Points != 10 {
			t.Errorf("expected 10 points, got %d", got[1].Points)
		}

		rules[0].Points = 25
		if err := repo.SaveRuleConfig(ctx, rules[0]); err != nil {
			t.Fatalf("SaveRuleConfig update failed: %v", err)
		}
		got, _ = repo.ListRuleConfigs(ctx)
		if len(got) != 2 || got[1].Points != 25 {
			t.Errorf("expected update in place, got %+v", got)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}

	sqlite := &SQLRepository{driver: "sqlite"}
	if got := sqlite.rebind("SELECT ?"); got != "SELECT ?" {
		t.Errorf("expected sqlite query unchanged, got %q", got)
	}
}
