// Package history assembles the per-user views the risk core evaluates against.
package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/opensource-finance/paysentry/internal/domain"
	"github.com/opensource-finance/paysentry/internal/suggest"
)

// ErrNoScans is returned when a user has no scan history yet.
var ErrNoScans = errors.New("no scans recorded")

// Service reads scan, location and preference history from the repository.
type Service struct {
	repo          domain.Repository
	scanLimit     int
	locationLimit int
}

// NewService creates a history service. Limits bound how many records are
// loaded per evaluation; zero means the package defaults.
func NewService(repo domain.Repository, scanLimit, locationLimit int) *Service {
	if scanLimit <= 0 {
		scanLimit = domain.DefaultSuggestionConfig().HistoryLimit
	}
	if locationLimit <= 0 {
		locationLimit = domain.DefaultGeoConfig().HistoryLimit
	}
	return &Service{
		repo:          repo,
		scanLimit:     scanLimit,
		locationLimit: locationLimit,
	}
}

// Snapshot is an immutable view of a user's history around one scan.
type Snapshot struct {
	Current            domain.ScanRecord
	History            []domain.ScanRecord
	MerchantScanCounts map[string]int
	Favorites          []string
	Preferences        domain.Preferences
	Dismissed          map[string]struct{}
}

// SuggestInput returns the suggestion engine input for this snapshot.
func (s *Snapshot) SuggestInput() suggest.Input {
	return suggest.Input{
		Current:            s.Current,
		History:            s.History,
		MerchantScanCounts: s.MerchantScanCounts,
		Favorites:          s.Favorites,
		Preferences:        s.Preferences,
	}
}

// FilterDismissed drops suggestions the user already dismissed. Order is kept.
func (s *Snapshot) FilterDismissed(suggestions []domain.Suggestion) []domain.Suggestion {
	out := make([]domain.Suggestion, 0, len(suggestions))
	for _, sg := range suggestions {
		if _, ok := s.Dismissed[sg.ID]; ok {
			continue
		}
		out = append(out, sg)
	}
	return out
}

// Snapshot loads history for userID. The current scan must already be persisted;
// if it fell outside the loaded window it is added so history always contains it.
// Merchant counts span the user's whole history and exclude the current scan.
func (s *Service) Snapshot(ctx context.Context, userID string, current domain.ScanRecord) (*Snapshot, error) {
	if userID == "" {
		return nil, fmt.Errorf("userID is required")
	}

	scans, err := s.repo.ListScans(ctx, userID, s.scanLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load scan history: %w", err)
	}

	history := make([]domain.ScanRecord, 0, len(scans)+1)
	seen := false
	for _, sc := range scans {
		history = append(history, *sc)
		if sc.ID == current.ID {
			seen = true
		}
	}
	if !seen {
		history = append(history, current)
	}

	// Counts cover the full history, not just the loaded window.
	counts, err := s.repo.CountScansByIdentifier(ctx, userID, current.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count merchant scans: %w", err)
	}

	favorites, err := s.repo.ListFavorites(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load favorites: %w", err)
	}

	prefs, err := s.repo.GetPreferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}

	dismissedIDs, err := s.repo.ListDismissedSuggestions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load dismissed suggestions: %w", err)
	}
	dismissed := make(map[string]struct{}, len(dismissedIDs))
	for _, id := range dismissedIDs {
		dismissed[id] = struct{}{}
	}

	return &Snapshot{
		Current:            current,
		History:            history,
		MerchantScanCounts: counts,
		Favorites:          favorites,
		Preferences:        *prefs,
		Dismissed:          dismissed,
	}, nil
}

// Latest returns the user's most recent scan.
func (s *Service) Latest(ctx context.Context, userID string) (*domain.ScanRecord, error) {
	if userID == "" {
		return nil, fmt.Errorf("userID is required")
	}
	scans, err := s.repo.ListScans(ctx, userID, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest scan: %w", err)
	}
	if len(scans) == 0 {
		return nil, ErrNoScans
	}
	return scans[0], nil
}

// Locations returns the user's recent location records, newest first.
func (s *Service) Locations(ctx context.Context, userID string) ([]domain.LocationRecord, error) {
	if userID == "" {
		return nil, fmt.Errorf("userID is required")
	}
	recs, err := s.repo.ListLocationRecords(ctx, userID, s.locationLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load location history: %w", err)
	}
	out := make([]domain.LocationRecord, len(recs))
	for i, r := range recs {
		out[i] = *r
	}
	return out, nil
}

// Preferences returns the user's preferences, defaults when none were saved.
func (s *Service) Preferences(ctx context.Context, userID string) (domain.Preferences, error) {
	prefs, err := s.repo.GetPreferences(ctx, userID)
	if err != nil {
		return domain.Preferences{}, fmt.Errorf("failed to load preferences: %w", err)
	}
	return *prefs, nil
}
