// Package address parses scanned payment-QR strings into payment addresses.
package address

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/opensource-finance/paysentry/internal/domain"
)

// ErrParseFailure is wrapped by every parse error. It means the scanned
// string is not a usable payment address; it is never fatal.
var ErrParseFailure = errors.New("not a valid payment address")

var (
	ErrUnsupportedScheme = fmt.Errorf("%w: unsupported scheme", ErrParseFailure)
	ErrMalformedURI      = fmt.Errorf("%w: malformed uri", ErrParseFailure)
	ErrMissingPayee      = fmt.Errorf("%w: missing payee identifier", ErrParseFailure)
	ErrInvalidIdentifier = fmt.Errorf("%w: identifier must contain exactly one @", ErrParseFailure)
)

// Query parameter names of the payment URI.
const (
	ParamPayee          = "pa"
	ParamPayeeName      = "pn"
	ParamMerchantCode   = "mc"
	ParamTransactionRef = "tr"
)

// Parser extracts payment addresses for a single URI scheme.
type Parser struct {
	prefix string
}

// NewParser creates a parser for scheme (e.g. "upi").
func NewParser(scheme string) *Parser {
	if scheme == "" {
		scheme = "upi"
	}
	return &Parser{prefix: strings.ToLower(scheme) + "://"}
}

// Parse converts raw into a ParsedAddress. Failures wrap ErrParseFailure.
func (p *Parser) Parse(raw string) (domain.ParsedAddress, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(strings.ToLower(trimmed), p.prefix) {
		return domain.ParsedAddress{}, ErrUnsupportedScheme
	}

	rawQuery := ""
	if i := strings.IndexByte(trimmed, '?'); i >= 0 {
		rawQuery = trimmed[i+1:]
	}
	// Fragments are not part of the payment parameters.
	if i := strings.IndexByte(rawQuery, '#'); i >= 0 {
		rawQuery = rawQuery[:i]
	}

	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		return domain.ParsedAddress{}, fmt.Errorf("%w: %v", ErrMalformedURI, err)
	}

	identifier := strings.ToLower(strings.TrimSpace(params.Get(ParamPayee)))
	if identifier == "" {
		return domain.ParsedAddress{}, ErrMissingPayee
	}
	if strings.Count(identifier, "@") != 1 {
		return domain.ParsedAddress{}, ErrInvalidIdentifier
	}

	name := strings.TrimSpace(params.Get(ParamPayeeName))
	if name == "" {
		name = domain.UnknownPayee
	}

	return domain.ParsedAddress{
		Identifier:     identifier,
		DisplayName:    name,
		MerchantCode:   strings.TrimSpace(params.Get(ParamMerchantCode)),
		TransactionRef: strings.TrimSpace(params.Get(ParamTransactionRef)),
		RawInput:       raw,
	}, nil
}

// Reason returns a short, display-safe description of a parse failure.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupportedScheme):
		return "not a payment QR code"
	case errors.Is(err, ErrMissingPayee):
		return "payment QR code has no payee address"
	case errors.Is(err, ErrInvalidIdentifier):
		return "payee address is not in user@handle form"
	case errors.Is(err, ErrMalformedURI):
		return "payment QR code is malformed"
	default:
		return "not a valid payment address"
	}
}
