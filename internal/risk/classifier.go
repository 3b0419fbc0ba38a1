// Package risk scores parsed payment addresses.
//
// Scoring is additive and evaluated in a fixed order so the reasons list is
// reproducible: handle check, keyword check, identifier shape, metadata
// completeness, then any operator-supplied CEL rules. The total is clamped to
// [0,100] and the level is derived from it.
package risk

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/opensource-finance/paysentry/internal/domain"
)

// Points added by the built-in checks.
const (
	PointsMissingHandle    = 100
	PointsUncommonHandle   = 30
	PointsSuspiciousWords  = 60
	PointsLongIdentifier   = 20
	PointsMissingPayeeName = 20

	// MaxUserLength is the longest user part that is not penalised.
	MaxUserLength = 20

	mobileNumberLength = 10
	maxScore           = 100
)

// Classifier is immutable after construction and safe for concurrent use.
type Classifier struct {
	cfg      domain.RiskConfig
	trusted  map[string]struct{}
	keywords []string
	rules    []*CompiledRule
}

// NewClassifier builds a classifier from configuration and optional custom rules.
// Disabled rules are skipped; an invalid enabled rule is an error.
func NewClassifier(cfg domain.RiskConfig, rules []*domain.RuleConfig) (*Classifier, error) {
	trusted := make(map[string]struct{}, len(cfg.TrustedHandles))
	for _, h := range cfg.TrustedHandles {
		trusted[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}

	keywords := make([]string, 0, len(cfg.SuspiciousKeywords))
	for _, k := range cfg.SuspiciousKeywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}

	compiled, err := CompileRules(rules)
	if err != nil {
		return nil, err
	}

	return &Classifier{
		cfg:      cfg,
		trusted:  trusted,
		keywords: keywords,
		rules:    compiled,
	}, nil
}

// Classify scores a parsed address. It never fails.
func (c *Classifier) Classify(addr domain.ParsedAddress) domain.RiskResult {
	user, handle, _ := strings.Cut(addr.Identifier, "@")

	score := 0
	reasons := make([]string, 0, 4)

	switch {
	case handle == "":
		score += PointsMissingHandle
		reasons = append(reasons, "Missing bank handle")
	case !c.isTrusted(handle):
		score += PointsUncommonHandle
		reasons = append(reasons, fmt.Sprintf("Uncommon bank handle @%s", handle))
	default:
		reasons = append(reasons, fmt.Sprintf("Verified bank handle @%s", handle))
	}

	if matched := c.matchKeywords(user); len(matched) > 0 {
		score += PointsSuspiciousWords
		reasons = append(reasons,
			fmt.Sprintf("Suspicious keywords in identifier: %s", strings.Join(matched, ", ")),
			"Possible impersonation of a support or official account",
		)
	}

	if isMobileNumber(user) {
		reasons = append(reasons, "Mobile-number address, typical of a personal transfer")
	} else if n := utf8.RuneCountInString(user); n > MaxUserLength {
		score += PointsLongIdentifier
		reasons = append(reasons, fmt.Sprintf("Unusually long identifier (%d characters)", n))
	}

	if addr.DisplayName == "" || addr.DisplayName == domain.UnknownPayee {
		score += PointsMissingPayeeName
		reasons = append(reasons, "Payee name missing")
	}

	if len(c.rules) > 0 {
		vars := ruleVariables(addr, user, handle)
		for _, r := range c.rules {
			if r.Matches(vars) {
				score += r.Config.Points
				reasons = append(reasons, r.Reason())
			}
		}
	}

	score = clamp(score)
	return domain.RiskResult{
		Score:   score,
		Level:   c.cfg.LevelFor(score),
		Reasons: reasons,
	}
}

// RulesCount returns the number of custom rules in effect.
func (c *Classifier) RulesCount() int {
	return len(c.rules)
}

// Rules returns the custom rule configurations in evaluation order.
func (c *Classifier) Rules() []*domain.RuleConfig {
	out := make([]*domain.RuleConfig, len(c.rules))
	for i, r := range c.rules {
		out[i] = r.Config
	}
	return out
}

func (c *Classifier) isTrusted(handle string) bool {
	_, ok := c.trusted[handle]
	return ok
}

func (c *Classifier) matchKeywords(user string) []string {
	var matched []string
	for _, k := range c.keywords {
		if strings.Contains(user, k) {
			matched = append(matched, k)
		}
	}
	return matched
}

func isMobileNumber(user string) bool {
	if len(user) != mobileNumberLength {
		return false
	}
	for i := 0; i < len(user); i++ {
		if user[i] < '0' || user[i] > '9' {
			return false
		}
	}
	return true
}

func clamp(score int) int {
	if score > maxScore {
		return maxScore
	}
	if score < 0 {
		return 0
	}
	return score
}
