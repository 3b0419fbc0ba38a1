package suggest

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/paysentry/internal/domain"
)

var base = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func scan(id, identifier string, status domain.ScanStatus, at time.Time) domain.ScanRecord {
	return domain.ScanRecord{
		ID:         id,
		Identifier: identifier,
		Status:     status,
		Timestamp:  at,
	}
}

func withAmount(r domain.ScanRecord, amount string) domain.ScanRecord {
	r.Amount = decimal.NewNullDecimal(decimal.RequireFromString(amount))
	return r
}

func enabled() domain.Preferences {
	return domain.DefaultPreferences()
}

func kinds(suggestions []domain.Suggestion) []domain.SuggestionKind {
	out := make([]domain.SuggestionKind, len(suggestions))
	for i, s := range suggestions {
		out[i] = s.Kind
	}
	return out
}

func find(suggestions []domain.Suggestion, kind domain.SuggestionKind) (domain.Suggestion, bool) {
	for _, s := range suggestions {
		if s.Kind == kind {
			return s, true
		}
	}
	return domain.Suggestion{}, false
}

// repeatedHistory builds n scans for identifier, one per interval, ending at current.
func repeatedHistory(n int, identifier string, status domain.ScanStatus, interval time.Duration) []domain.ScanRecord {
	out := make([]domain.ScanRecord, n)
	for i := 0; i < n; i++ {
		out[i] = scan(fmt.Sprintf("s%d", i), identifier, status, base.Add(time.Duration(i)*interval))
	}
	return out
}

func TestKillSwitch(t *testing.T) {
	e := NewEngine(domain.DefaultSuggestionConfig())
	history := repeatedHistory(60, "m@x", domain.ScanSafe, time.Minute)

	got := e.Generate(Input{
		Current:            history[len(history)-1],
		History:            history,
		MerchantScanCounts: map[string]int{"m@x": 59},
		Preferences:        domain.Preferences{EnableSmartSuggestions: false},
	})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFavoriteCandidate(t *testing.T) {
	e := NewEngine(domain.DefaultSuggestionConfig())
	history := repeatedHistory(6, "m@x", domain.ScanSafe, time.Hour)
	cur := history[len(history)-1]

	t.Run("Fires", func(t *testing.T) {
		got := e.Generate(Input{
			Current:            cur,
			History:            history,
			MerchantScanCounts: map[string]int{"m@x": 5},
			Preferences:        enabled(),
		})
		s, ok := find(got, domain.SuggestFavorite)
		require.True(t, ok)
		assert.Equal(t, 8, s.Priority)
		assert.True(t, s.Dismissible)
		assert.Equal(t, "favorite:m@x", s.ID)
	})

	t.Run("AlreadyFavorite", func(t *testing.T) {
		got := e.Generate(Input{
			Current:            cur,
			History:            history,
			MerchantScanCounts: map[string]int{"m@x": 5},
			Favorites:          []string{"m@x"},
			Preferences:        enabled(),
		})
		_, ok := find(got, domain.SuggestFavorite)
		assert.False(t, ok)
	})

	t.Run("BelowTrigger", func(t *testing.T) {
		got := e.Generate(Input{
			Current:            cur,
			History:            history[3:],
			MerchantScanCounts: map[string]int{"m@x": 2},
			Preferences:        enabled(),
		})
		_, ok := find(got, domain.SuggestFavorite)
		assert.False(t, ok)
	})

	t.Run("NotSafe", func(t *testing.T) {
		warn := cur
		warn.Status = domain.ScanWarning
		got := e.Generate(Input{
			Current:            warn,
			History:            append(history[:5:5], warn),
			MerchantScanCounts: map[string]int{"m@x": 5},
			Preferences:        enabled(),
		})
		_, ok := find(got, domain.SuggestFavorite)
		assert.False(t, ok)
	})
}

func TestNewMerchantHighAmount(t *testing.T) {
	e := NewEngine(domain.DefaultSuggestionConfig())

	t.Run("Fires", func(t *testing.T) {
		cur := withAmount(scan("c", "new@ybl", domain.ScanSafe, base), "1500")
		got := e.Generate(Input{
			Current:            cur,
			History:            []domain.ScanRecord{cur},
			MerchantScanCounts: map[string]int{},
			Preferences:        enabled(),
		})
		require.Len(t, got, 1)
		assert.Equal(t, domain.SuggestNewMerchant, got[0].Kind)
		assert.Equal(t, 9, got[0].Priority)
	})

	t.Run("ThresholdIsExclusive", func(t *testing.T) {
		cur := withAmount(scan("c", "new@ybl", domain.ScanSafe, base), "1000")
		got := e.Generate(Input{Current: cur, History: []domain.ScanRecord{cur}, Preferences: enabled()})
		assert.Empty(t, got)
	})

	t.Run("NoAmount", func(t *testing.T) {
		cur := scan("c", "new@ybl", domain.ScanSafe, base)
		got := e.Generate(Input{Current: cur, History: []domain.ScanRecord{cur}, Preferences: enabled()})
		assert.Empty(t, got)
	})

	t.Run("KnownMerchant", func(t *testing.T) {
		prev := scan("p", "known@ybl", domain.ScanSafe, base)
		cur := withAmount(scan("c", "known@ybl", domain.ScanSafe, base.Add(time.Hour)), "1500")
		got := e.Generate(Input{
			Current:            cur,
			History:            []domain.ScanRecord{prev, cur},
			MerchantScanCounts: map[string]int{"known@ybl": 1},
			Preferences:        enabled(),
		})
		_, ok := find(got, domain.SuggestNewMerchant)
		assert.False(t, ok)
	})
}

func TestUnusualAmount(t *testing.T) {
	e := NewEngine(domain.DefaultSuggestionConfig())
	p1 := withAmount(scan("p1", "rent@ybl", domain.ScanSafe, base), "2000")
	p2 := withAmount(scan("p2", "rent@ybl", domain.ScanSafe, base.Add(time.Hour)), "4000")
	other := withAmount(scan("o1", "shop@ybl", domain.ScanSafe, base.Add(2*time.Hour)), "1")
	counts := map[string]int{"rent@ybl": 2, "shop@ybl": 1}

	t.Run("Fires", func(t *testing.T) {
		cur := withAmount(scan("c", "rent@ybl", domain.ScanSafe, base.Add(3*time.Hour)), "12000")
		got := e.Generate(Input{
			Current:            cur,
			History:            []domain.ScanRecord{p1, p2, other, cur},
			MerchantScanCounts: counts,
			Preferences:        enabled(),
		})
		s, ok := find(got, domain.SuggestUnusualAmount)
		require.True(t, ok)
		assert.Equal(t, 10, s.Priority)
		assert.True(t, s.Dismissible)
		assert.Contains(t, s.Message, "3000.00")
	})

	t.Run("NotTwiceTheAverage", func(t *testing.T) {
		big := withAmount(scan("p3", "rent@ybl", domain.ScanSafe, base), "9000")
		cur := withAmount(scan("c", "rent@ybl", domain.ScanSafe, base.Add(3*time.Hour)), "12000")
		got := e.Generate(Input{
			Current:            cur,
			History:            []domain.ScanRecord{big, p2, cur},
			MerchantScanCounts: counts,
			Preferences:        enabled(),
		})
		_, ok := find(got, domain.SuggestUnusualAmount)
		assert.False(t, ok)
	})

	t.Run("NoPriorAmounts", func(t *testing.T) {
		prior := scan("p", "rent@ybl", domain.ScanSafe, base)
		cur := withAmount(scan("c", "rent@ybl", domain.ScanSafe, base.Add(time.Hour)), "50000")
		got := e.Generate(Input{
			Current:            cur,
			History:            []domain.ScanRecord{prior, cur},
			MerchantScanCounts: map[string]int{"rent@ybl": 1},
			Preferences:        enabled(),
		})
		_, ok := find(got, domain.SuggestUnusualAmount)
		assert.False(t, ok)
	})

	t.Run("BelowAbsoluteThreshold", func(t *testing.T) {
		cur := withAmount(scan("c", "rent@ybl", domain.ScanSafe, base.Add(3*time.Hour)), "9500")
		small := withAmount(scan("p", "rent@ybl", domain.ScanSafe, base), "10")
		got := e.Generate(Input{
			Current:            cur,
			History:            []domain.ScanRecord{small, cur},
			MerchantScanCounts: map[string]int{"rent@ybl": 1},
			Preferences:        enabled(),
		})
		_, ok := find(got, domain.SuggestUnusualAmount)
		assert.False(t, ok)
	})
}

func TestSafetyStreak(t *testing.T) {
	e := NewEngine(domain.DefaultSuggestionConfig())

	t.Run("EleventhScanAfterTenSafe", func(t *testing.T) {
		history := make([]domain.ScanRecord, 0, 11)
		history = append(history, scan("s0", "bad@xyz", domain.ScanRisky, base))
		for i := 1; i <= 10; i++ {
			history = append(history, scan(fmt.Sprintf("s%d", i), fmt.Sprintf("m%d@ybl", i), domain.ScanSafe, base.Add(time.Duration(i)*time.Hour)))
		}
		cur := history[len(history)-1]

		got := e.Generate(Input{
			Current:            cur,
			History:            history,
			MerchantScanCounts: map[string]int{},
			Preferences:        enabled(),
		})
		s, ok := find(got, domain.SuggestSafetyStreak)
		require.True(t, ok)
		assert.Equal(t, 5, s.Priority)
		assert.True(t, s.Dismissible)
	})

	t.Run("RiskyScanInWindow", func(t *testing.T) {
		history := repeatedHistory(12, "m@ybl", domain.ScanSafe, time.Hour)
		history[8].Status = domain.ScanWarning
		got := e.Generate(Input{
			Current:     history[len(history)-1],
			History:     history,
			Favorites:   []string{"m@ybl"},
			Preferences: enabled(),
		})
		_, ok := find(got, domain.SuggestSafetyStreak)
		assert.False(t, ok)
	})

	t.Run("TooFewScans", func(t *testing.T) {
		history := repeatedHistory(9, "m@ybl", domain.ScanSafe, time.Hour)
		got := e.Generate(Input{
			Current:     history[len(history)-1],
			History:     history,
			Favorites:   []string{"m@ybl"},
			Preferences: enabled(),
		})
		_, ok := find(got, domain.SuggestSafetyStreak)
		assert.False(t, ok)
	})

	t.Run("UsesTimestampsNotSliceOrder", func(t *testing.T) {
		history := repeatedHistory(11, "m@ybl", domain.ScanSafe, time.Hour)
		// Oldest scan is risky but placed last in the slice.
		oldest := history[0]
		oldest.Status = domain.ScanRisky
		history = append(history[1:], oldest)

		got := e.Generate(Input{
			Current:     history[len(history)-2],
			History:     history,
			Favorites:   []string{"m@ybl"},
			Preferences: enabled(),
		})
		_, ok := find(got, domain.SuggestSafetyStreak)
		assert.True(t, ok)
	})
}

func TestRepeatedRisk(t *testing.T) {
	e := NewEngine(domain.DefaultSuggestionConfig())
	r1 := scan("r1", "bad@xyz", domain.ScanRisky, base)
	r2 := scan("r2", "bad@xyz", domain.ScanRisky, base.Add(time.Hour))
	cur := scan("c", "bad@xyz", domain.ScanRisky, base.Add(2*time.Hour))

	t.Run("Fires", func(t *testing.T) {
		got := e.Generate(Input{
			Current:            cur,
			History:            []domain.ScanRecord{r1, r2, cur},
			MerchantScanCounts: map[string]int{"bad@xyz": 2},
			Preferences:        enabled(),
		})
		s, ok := find(got, domain.SuggestRepeatedRisk)
		require.True(t, ok)
		assert.Equal(t, 10, s.Priority)
		assert.False(t, s.Dismissible)
	})

	t.Run("OnePriorRiskyIsNotEnough", func(t *testing.T) {
		got := e.Generate(Input{
			Current:            cur,
			History:            []domain.ScanRecord{r1, cur},
			MerchantScanCounts: map[string]int{"bad@xyz": 1},
			Preferences:        enabled(),
		})
		_, ok := find(got, domain.SuggestRepeatedRisk)
		assert.False(t, ok)
	})

	t.Run("CurrentNotRisky", func(t *testing.T) {
		safe := cur
		safe.Status = domain.ScanWarning
		got := e.Generate(Input{
			Current:            safe,
			History:            []domain.ScanRecord{r1, r2, safe},
			MerchantScanCounts: map[string]int{"bad@xyz": 2},
			Preferences:        enabled(),
		})
		_, ok := find(got, domain.SuggestRepeatedRisk)
		assert.False(t, ok)
	})
}

func TestDiversificationAndActiveUser(t *testing.T) {
	e := NewEngine(domain.DefaultSuggestionConfig())

	t.Run("FewMerchants", func(t *testing.T) {
		history := repeatedHistory(20, "m@ybl", domain.ScanSafe, 24*time.Hour)
		history[3].Status = domain.ScanWarning
		history[19].Status = domain.ScanWarning
		got := e.Generate(Input{
			Current:     history[19],
			History:     history,
			Favorites:   []string{"m@ybl"},
			Preferences: enabled(),
		})
		assert.Equal(t, []domain.SuggestionKind{domain.SuggestDiversify}, kinds(got))
		assert.Equal(t, 3, got[0].Priority)
	})

	t.Run("EnoughMerchants", func(t *testing.T) {
		history := repeatedHistory(20, "m@ybl", domain.ScanWarning, 24*time.Hour)
		for i := 0; i < 5; i++ {
			history[i].Identifier = fmt.Sprintf("m%d@ybl", i)
		}
		got := e.Generate(Input{Current: history[19], History: history, Preferences: enabled()})
		_, ok := find(got, domain.SuggestDiversify)
		assert.False(t, ok)
	})

	t.Run("ActiveUserWithinAWeek", func(t *testing.T) {
		history := repeatedHistory(50, "m@ybl", domain.ScanWarning, time.Hour)
		got := e.Generate(Input{
			Current:     history[49],
			History:     history,
			Favorites:   []string{"m@ybl"},
			Preferences: enabled(),
		})
		s, ok := find(got, domain.SuggestActiveUser)
		require.True(t, ok)
		assert.Equal(t, 4, s.Priority)
		assert.Contains(t, s.Message, "30 scans")
	})

	t.Run("ActiveUserSpreadOut", func(t *testing.T) {
		history := repeatedHistory(50, "m@ybl", domain.ScanWarning, 24*time.Hour)
		got := e.Generate(Input{Current: history[49], History: history, Preferences: enabled()})
		_, ok := find(got, domain.SuggestActiveUser)
		assert.False(t, ok)
	})
}

func TestGenerateOrdering(t *testing.T) {
	e := NewEngine(domain.DefaultSuggestionConfig())

	t.Run("DescendingPriority", func(t *testing.T) {
		history := repeatedHistory(20, "bad@xyz", domain.ScanRisky, time.Hour)
		got := e.Generate(Input{
			Current:            history[19],
			History:            history,
			MerchantScanCounts: map[string]int{"bad@xyz": 19},
			Preferences:        enabled(),
		})
		assert.Equal(t, []domain.SuggestionKind{domain.SuggestRepeatedRisk, domain.SuggestDiversify}, kinds(got))
		for i := 1; i < len(got); i++ {
			assert.GreaterOrEqual(t, got[i-1].Priority, got[i].Priority)
		}
	})

	t.Run("TiesKeepRuleOrder", func(t *testing.T) {
		r1 := withAmount(scan("r1", "bad@xyz", domain.ScanRisky, base), "1000")
		r2 := withAmount(scan("r2", "bad@xyz", domain.ScanRisky, base.Add(time.Hour)), "1000")
		cur := withAmount(scan("c", "bad@xyz", domain.ScanRisky, base.Add(2*time.Hour)), "20000")
		got := e.Generate(Input{
			Current:            cur,
			History:            []domain.ScanRecord{r1, r2, cur},
			MerchantScanCounts: map[string]int{"bad@xyz": 2},
			Preferences:        enabled(),
		})
		assert.Equal(t, []domain.SuggestionKind{domain.SuggestUnusualAmount, domain.SuggestRepeatedRisk}, kinds(got))
	})

	t.Run("Deterministic", func(t *testing.T) {
		history := repeatedHistory(55, "m@ybl", domain.ScanSafe, time.Minute)
		in := Input{
			Current:            history[54],
			History:            history,
			MerchantScanCounts: map[string]int{"m@ybl": 54},
			Preferences:        enabled(),
		}
		first := e.Generate(in)
		assert.Equal(t, first, e.Generate(in))
		assert.Equal(t, []domain.SuggestionKind{
			domain.SuggestFavorite,
			domain.SuggestSafetyStreak,
			domain.SuggestActiveUser,
			domain.SuggestDiversify,
		}, kinds(first))
	})
}
