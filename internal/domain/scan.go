package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScanStatus is the stored outcome of a scan.
type ScanStatus string

const (
	ScanSafe    ScanStatus = "safe"
	ScanWarning ScanStatus = "warning"
	ScanRisky   ScanStatus = "risky"
)

// ScanRecord is one evaluated scan in a user's history.
type ScanRecord struct {
	ID           string              `json:"id"`
	UserID       string              `json:"userId,omitempty"`
	Identifier   string              `json:"identifier"`
	MerchantName string              `json:"merchantName,omitempty"`
	Amount       decimal.NullDecimal `json:"amount"`
	Status       ScanStatus          `json:"status"`
	Score        int                 `json:"score"`
	Timestamp    time.Time           `json:"timestamp"`
}

// SuggestionKind names the rule that produced a suggestion.
type SuggestionKind string

const (
	SuggestFavorite      SuggestionKind = "favorite_candidate"
	SuggestNewMerchant   SuggestionKind = "new_merchant_high_amount"
	SuggestUnusualAmount SuggestionKind = "unusual_amount"
	SuggestSafetyStreak  SuggestionKind = "safety_streak"
	SuggestRepeatedRisk  SuggestionKind = "repeated_risk"
	SuggestDiversify     SuggestionKind = "diversification_tip"
	SuggestActiveUser    SuggestionKind = "active_user_tip"
)

// Suggestion is an ephemeral behavioural hint. ID is stable per trigger so
// callers can persist dismissals.
type Suggestion struct {
	ID          string         `json:"id"`
	Kind        SuggestionKind `json:"kind"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Dismissible bool           `json:"dismissible"`
	Priority    int            `json:"priority"`
}

// TravelMode relaxes the unusual-location threshold.
type TravelMode struct {
	Enabled          bool    `json:"enabled"`
	AlertThresholdKm float64 `json:"alertThresholdKm"`
}

// Preferences are the per-user switches the core consults.
type Preferences struct {
	EnableSmartSuggestions bool       `json:"enableSmartSuggestions"`
	TravelMode             TravelMode `json:"travelMode"`
}

// DefaultPreferences returns preferences for a user who never saved any.
func DefaultPreferences() Preferences {
	return Preferences{EnableSmartSuggestions: true}
}
