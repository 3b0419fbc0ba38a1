package address

import (
	"errors"
	"strings"
	"testing"

	"github.com/opensource-finance/paysentry/internal/domain"
)

func TestParse(t *testing.T) {
	p := NewParser("upi")

	t.Run("FullAddress", func(t *testing.T) {
		raw := "upi://pay?pa=Shop.Owner@OKSBI&pn=Corner%20Shop&mc=5411&tr=TX123"
		addr, err := p.Parse(raw)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if addr.Identifier != "shop.owner@oksbi" {
			t.Errorf("expected lower-cased identifier, got %q", addr.Identifier)
		}
		if addr.DisplayName != "Corner Shop" {
			t.Errorf("expected display name 'Corner Shop', got %q", addr.DisplayName)
		}
		if addr.MerchantCode != "5411" {
			t.Errorf("expected merchant code 5411, got %q", addr.MerchantCode)
		}
		if addr.TransactionRef != "TX123" {
			t.Errorf("expected transaction ref TX123, got %q", addr.TransactionRef)
		}
		if addr.RawInput != raw {
			t.Errorf("raw input not retained: %q", addr.RawInput)
		}
	})

	t.Run("DefaultsDisplayName", func(t *testing.T) {
		addr, err := p.Parse("upi://pay?pa=9876543210@ybl")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if addr.DisplayName != domain.UnknownPayee {
			t.Errorf("expected %q, got %q", domain.UnknownPayee, addr.DisplayName)
		}
		if addr.MerchantCode != "" || addr.TransactionRef != "" {
			t.Error("expected optional fields to be empty")
		}
	})

	t.Run("BlankDisplayName", func(t *testing.T) {
		addr, err := p.Parse("upi://pay?pa=a@ybl&pn=%20%20")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if addr.DisplayName != domain.UnknownPayee {
			t.Errorf("expected %q, got %q", domain.UnknownPayee, addr.DisplayName)
		}
	})

	t.Run("SchemeIsCaseInsensitive", func(t *testing.T) {
		if _, err := p.Parse("UPI://pay?pa=a@ybl"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("EmptyHandleIsAccepted", func(t *testing.T) {
		addr, err := p.Parse("upi://pay?pa=someone@")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if addr.Identifier != "someone@" {
			t.Errorf("got %q", addr.Identifier)
		}
	})
}

func TestParseFailures(t *testing.T) {
	p := NewParser("upi")

	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"HTTPURL", "https://example.com/pay?pa=a@ybl", ErrUnsupportedScheme},
		{"PlainText", "hello world", ErrUnsupportedScheme},
		{"Empty", "", ErrUnsupportedScheme},
		{"MissingPayee", "upi://pay?pn=John", ErrMissingPayee},
		{"NoQuery", "upi://pay", ErrMissingPayee},
		{"BadEscape", "upi://pay?pa=a@ybl&pn=%zz", ErrMalformedURI},
		{"NoSeparator", "upi://pay?pa=merchant", ErrInvalidIdentifier},
		{"TwoSeparators", "upi://pay?pa=a@b@ybl", ErrInvalidIdentifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(tt.raw)
			if err == nil {
				t.Fatal("expected parse failure")
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if !errors.Is(err, ErrParseFailure) {
				t.Errorf("expected error to wrap ErrParseFailure, got %v", err)
			}
			if Reason(err) == "" {
				t.Error("expected a display reason")
			}
		})
	}
}

func TestParseIdentifierAlwaysLowerCase(t *testing.T) {
	p := NewParser("upi")
	inputs := []string{
		"upi://pay?pa=ABC@YBL",
		"upi://pay?pa=MiXeD.Case@OkHdfcBank&pn=X",
		"upi://pay?pa=%20Spaced@Paytm%20",
	}
	for _, raw := range inputs {
		addr, err := p.Parse(raw)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", raw, err)
		}
		if addr.Identifier != strings.ToLower(addr.Identifier) {
			t.Errorf("%s: identifier not lower-case: %q", raw, addr.Identifier)
		}
		if addr.RawInput != raw {
			t.Errorf("%s: raw input mismatch", raw)
		}
	}
}
