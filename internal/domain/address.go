package domain

// UnknownPayee is the display name used when a payment address carries no payee name.
const UnknownPayee = "Unknown"

// ParsedAddress is a payment address extracted from a scanned QR string.
type ParsedAddress struct {
	// Identifier is the lower-cased user@handle payment identifier.
	Identifier     string `json:"identifier"`
	DisplayName    string `json:"displayName"`
	MerchantCode   string `json:"merchantCode,omitempty"`
	TransactionRef string `json:"transactionRef,omitempty"`

	// RawInput is the original scanned string, kept for audit.
	RawInput string `json:"rawInput"`
}

// RiskLevel is the three-tier classification derived from a risk score.
type RiskLevel string

const (
	RiskSafe     RiskLevel = "safe"
	RiskModerate RiskLevel = "moderate"
	RiskRisky    RiskLevel = "risky"
)

// RiskResult is the classifier verdict for a payment address.
// Level is always derived from Score; it is never set independently.
type RiskResult struct {
	Score   int       `json:"score"`
	Level   RiskLevel `json:"level"`
	Reasons []string  `json:"reasons"`
}

// Status maps a risk level onto the scan-history status vocabulary.
func (l RiskLevel) Status() ScanStatus {
	switch l {
	case RiskRisky:
		return ScanRisky
	case RiskModerate:
		return ScanWarning
	default:
		return ScanSafe
	}
}
