package i18n

import (
	"testing"

	"billova/internal/core"
)

func TestFormatPrice(t *testing.T) {
	m := core.Money{Cents: 123456}

	tests := []struct {
		format core.NumericFormat
		want   string
	}{
		{core.FormatAustrian, "1.234,56 EUR"},
		{core.FormatGerman, "1.234,56 EUR"},
		{core.FormatAmerican, "1,234.56 EUR"},
		{core.FormatBritish, "1,234.56 EUR"},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if got := FormatPrice(m, "EUR", tt.format); got != tt.want {
				t.Errorf("FormatPrice(%s) = %q, want %q", tt.format, got, tt.want)
			}
		})
	}
}

func TestFormatPriceUnknownFormatFallsBack(t *testing.T) {
	got := FormatPrice(core.Money{Cents: 100}, "EUR", "ZZ")
	want := FormatPrice(core.Money{Cents: 100}, "EUR", core.DefaultNumericFormat)
	if got != want {
		t.Errorf("unknown format = %q, want fallback %q", got, want)
	}
}

func TestKnownCurrency(t *testing.T) {
	for _, code := range []string{"EUR", "USD", "GBP"} {
		if !KnownCurrency(code) {
			t.Errorf("KnownCurrency(%q) = false, want true", code)
		}
	}
	for _, code := range []string{"", "E", "eur", "ZZZZ"} {
		if KnownCurrency(code) {
			t.Errorf("KnownCurrency(%q) = true, want false", code)
		}
	}
}
