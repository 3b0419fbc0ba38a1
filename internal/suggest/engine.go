// Package suggest derives behavioural suggestions from a user's scan history.
package suggest

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/paysentry/internal/domain"
)

// Suggestion priorities. Higher is shown first.
const (
	PriorityUnusualAmount = 10
	PriorityRepeatedRisk  = 10
	PriorityNewMerchant   = 9
	PriorityFavorite      = 8
	PrioritySafetyStreak  = 5
	PriorityActiveUser    = 4
	PriorityDiversify     = 3
)

// Input is everything one evaluation looks at. History must already contain
// Current; MerchantScanCounts counts only scans before Current.
type Input struct {
	Current            domain.ScanRecord
	History            []domain.ScanRecord
	MerchantScanCounts map[string]int
	Favorites          []string
	Preferences        domain.Preferences
}

// Engine evaluates the suggestion rules. It holds no state besides its config.
type Engine struct {
	cfg                 domain.SuggestionConfig
	highAmount          decimal.Decimal
	unusualAmount       decimal.Decimal
	unusualAmountFactor decimal.Decimal
}

// NewEngine creates an engine. Zero config values take the defaults.
func NewEngine(cfg domain.SuggestionConfig) *Engine {
	def := domain.DefaultSuggestionConfig()
	if cfg.FavoriteTriggerCount <= 0 {
		cfg.FavoriteTriggerCount = def.FavoriteTriggerCount
	}
	if cfg.HighAmountThreshold <= 0 {
		cfg.HighAmountThreshold = def.HighAmountThreshold
	}
	if cfg.UnusualAmountThreshold <= 0 {
		cfg.UnusualAmountThreshold = def.UnusualAmountThreshold
	}
	if cfg.SafetyStreakWindow <= 0 {
		cfg.SafetyStreakWindow = def.SafetyStreakWindow
	}
	if cfg.DiversificationMinScans <= 0 {
		cfg.DiversificationMinScans = def.DiversificationMinScans
	}
	if cfg.DiversificationMinMerchants <= 0 {
		cfg.DiversificationMinMerchants = def.DiversificationMinMerchants
	}
	if cfg.ActiveUserMinScans <= 0 {
		cfg.ActiveUserMinScans = def.ActiveUserMinScans
	}
	if cfg.ActiveUserWindow <= 0 {
		cfg.ActiveUserWindow = def.ActiveUserWindow
	}
	if cfg.ActiveUserSpan <= 0 {
		cfg.ActiveUserSpan = def.ActiveUserSpan
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}

	return &Engine{
		cfg:                 cfg,
		highAmount:          decimal.NewFromFloat(cfg.HighAmountThreshold),
		unusualAmount:       decimal.NewFromFloat(cfg.UnusualAmountThreshold),
		unusualAmountFactor: decimal.NewFromInt(2),
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() domain.SuggestionConfig {
	return e.cfg
}

// Generate returns suggestions sorted by descending priority. Equal priorities
// keep rule order. Dismissals are not consulted here.
func (e *Engine) Generate(in Input) []domain.Suggestion {
	if !in.Preferences.EnableSmartSuggestions {
		return []domain.Suggestion{}
	}

	recent := newestFirst(in.History)
	out := make([]domain.Suggestion, 0, 4)

	rules := []func(Input, []domain.ScanRecord) (domain.Suggestion, bool){
		e.favoriteCandidate,
		e.newMerchantHighAmount,
		e.unusualAmountRule,
		e.safetyStreak,
		e.repeatedRisk,
		e.diversification,
		e.activeUser,
	}
	for _, rule := range rules {
		if s, ok := rule(in, recent); ok {
			out = append(out, s)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

func (e *Engine) favoriteCandidate(in Input, _ []domain.ScanRecord) (domain.Suggestion, bool) {
	id := in.Current.Identifier
	count := in.MerchantScanCounts[id]
	if count < e.cfg.FavoriteTriggerCount || in.Current.Status != domain.ScanSafe || isFavorite(in.Favorites, id) {
		return domain.Suggestion{}, false
	}
	return domain.Suggestion{
		ID:          "favorite:" + id,
		Kind:        domain.SuggestFavorite,
		Title:       "Add to favorites?",
		Message:     fmt.Sprintf("You have paid %s %d times. Save it as a favorite for quicker, safer payments.", payeeLabel(in.Current), count),
		Dismissible: true,
		Priority:    PriorityFavorite,
	}, true
}

func (e *Engine) newMerchantHighAmount(in Input, _ []domain.ScanRecord) (domain.Suggestion, bool) {
	id := in.Current.Identifier
	if in.MerchantScanCounts[id] != 0 || !in.Current.Amount.Valid || !in.Current.Amount.Decimal.GreaterThan(e.highAmount) {
		return domain.Suggestion{}, false
	}
	return domain.Suggestion{
		ID:          "new-merchant:" + id,
		Kind:        domain.SuggestNewMerchant,
		Title:       "First payment to this payee",
		Message:     fmt.Sprintf("This is your first payment to %s and the amount is %s. Verify who you are paying before sending large amounts.", payeeLabel(in.Current), in.Current.Amount.Decimal.StringFixed(2)),
		Dismissible: true,
		Priority:    PriorityNewMerchant,
	}, true
}

func (e *Engine) unusualAmountRule(in Input, _ []domain.ScanRecord) (domain.Suggestion, bool) {
	cur := in.Current
	if !cur.Amount.Valid || !cur.Amount.Decimal.GreaterThan(e.unusualAmount) {
		return domain.Suggestion{}, false
	}

	sum := decimal.Zero
	n := int64(0)
	for i := range in.History {
		r := &in.History[i]
		if r.Identifier != cur.Identifier || !r.Amount.Valid || isCurrent(cur, r) {
			continue
		}
		sum = sum.Add(r.Amount.Decimal)
		n++
	}
	if n == 0 {
		return domain.Suggestion{}, false
	}

	avg := sum.Div(decimal.NewFromInt(n))
	if !cur.Amount.Decimal.GreaterThan(avg.Mul(e.unusualAmountFactor)) {
		return domain.Suggestion{}, false
	}
	return domain.Suggestion{
		ID:          "unusual-amount:" + cur.Identifier,
		Kind:        domain.SuggestUnusualAmount,
		Title:       "Unusually large payment",
		Message:     fmt.Sprintf("%s is more than twice your usual %s to %s. Double-check before you pay.", cur.Amount.Decimal.StringFixed(2), avg.StringFixed(2), payeeLabel(cur)),
		Dismissible: true,
		Priority:    PriorityUnusualAmount,
	}, true
}

func (e *Engine) safetyStreak(_ Input, recent []domain.ScanRecord) (domain.Suggestion, bool) {
	window := e.cfg.SafetyStreakWindow
	if len(recent) < window {
		return domain.Suggestion{}, false
	}
	for _, r := range recent[:window] {
		if r.Status != domain.ScanSafe {
			return domain.Suggestion{}, false
		}
	}
	return domain.Suggestion{
		ID:          "safety-streak",
		Kind:        domain.SuggestSafetyStreak,
		Title:       "Great safety streak",
		Message:     fmt.Sprintf("Your last %d scans were all safe. Keep checking every payee before you pay.", window),
		Dismissible: true,
		Priority:    PrioritySafetyStreak,
	}, true
}

func (e *Engine) repeatedRisk(in Input, _ []domain.ScanRecord) (domain.Suggestion, bool) {
	cur := in.Current
	if cur.Status != domain.ScanRisky {
		return domain.Suggestion{}, false
	}

	risky := 0
	for i := range in.History {
		r := &in.History[i]
		if r.Identifier == cur.Identifier && r.Status == domain.ScanRisky && !isCurrent(cur, r) {
			risky++
		}
	}
	if risky <= 1 {
		return domain.Suggestion{}, false
	}
	return domain.Suggestion{
		ID:          "repeated-risk:" + cur.Identifier,
		Kind:        domain.SuggestRepeatedRisk,
		Title:       "Repeatedly risky payee",
		Message:     fmt.Sprintf("%s has been flagged as risky %d times before. Consider blocking and reporting it.", payeeLabel(cur), risky),
		Dismissible: false,
		Priority:    PriorityRepeatedRisk,
	}, true
}

func (e *Engine) diversification(in Input, _ []domain.ScanRecord) (domain.Suggestion, bool) {
	if len(in.History) < e.cfg.DiversificationMinScans {
		return domain.Suggestion{}, false
	}
	merchants := make(map[string]struct{})
	for i := range in.History {
		merchants[in.History[i].Identifier] = struct{}{}
	}
	if len(merchants) >= e.cfg.DiversificationMinMerchants {
		return domain.Suggestion{}, false
	}
	return domain.Suggestion{
		ID:          "diversification",
		Kind:        domain.SuggestDiversify,
		Title:       "Most payments go to a few payees",
		Message:     fmt.Sprintf("Your %d scans went to only %d payees. Saving them as favorites makes look-alike addresses easier to spot.", len(in.History), len(merchants)),
		Dismissible: true,
		Priority:    PriorityDiversify,
	}, true
}

func (e *Engine) activeUser(in Input, recent []domain.ScanRecord) (domain.Suggestion, bool) {
	if len(recent) < e.cfg.ActiveUserMinScans {
		return domain.Suggestion{}, false
	}
	window := recent
	if len(window) > e.cfg.ActiveUserWindow {
		window = window[:e.cfg.ActiveUserWindow]
	}
	span := window[0].Timestamp.Sub(window[len(window)-1].Timestamp)
	if span >= e.cfg.ActiveUserSpan {
		return domain.Suggestion{}, false
	}
	return domain.Suggestion{
		ID:          "active-user",
		Kind:        domain.SuggestActiveUser,
		Title:       "You scan a lot",
		Message:     fmt.Sprintf("You made %d scans in %s. Favorites and safe zones can speed up your regular payments.", len(window), humanSpan(span)),
		Dismissible: true,
		Priority:    PriorityActiveUser,
	}, true
}

// newestFirst returns a copy of history ordered by descending timestamp.
func newestFirst(history []domain.ScanRecord) []domain.ScanRecord {
	sorted := make([]domain.ScanRecord, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	return sorted
}

// isCurrent reports whether r is the scan being evaluated.
func isCurrent(cur domain.ScanRecord, r *domain.ScanRecord) bool {
	if cur.ID != "" {
		return r.ID == cur.ID
	}
	return r.Identifier == cur.Identifier && r.Timestamp.Equal(cur.Timestamp)
}

func isFavorite(favorites []string, id string) bool {
	for _, f := range favorites {
		if f == id {
			return true
		}
	}
	return false
}

func payeeLabel(r domain.ScanRecord) string {
	if r.MerchantName != "" && r.MerchantName != domain.UnknownPayee {
		return r.MerchantName
	}
	return r.Identifier
}

func humanSpan(d time.Duration) string {
	if d < 24*time.Hour {
		return fmt.Sprintf("%d hours", int(d.Hours()))
	}
	return fmt.Sprintf("%d days", int(d.Hours()/24))
}
