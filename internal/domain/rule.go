package domain

import "time"

// RuleConfig defines an operator-supplied classifier rule.
// Expression is a CEL boolean over the parsed address; when it holds,
// Points are added to the score and Reason is appended.
type RuleConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// CEL expression to evaluate
	Expression string `json:"expression"`

	Points  int    `json:"points"`
	Reason  string `json:"reason"`
	Enabled bool   `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}
