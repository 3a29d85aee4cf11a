package core

import "testing"

func TestParseDecimalToCents(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "dot separator", input: "12.34", want: 1234},
		{name: "comma separator", input: "12,34", want: 1234},
		{name: "integer only", input: "7", want: 700},
		{name: "single fractional digit", input: "3.5", want: 350},
		{name: "third digit rounds down", input: "12.344", want: 1234},
		{name: "third digit rounds up", input: "12.345", want: 1235},
		{name: "leading dot", input: ".50", want: 50},
		{name: "surrounding spaces", input: " 9.99 ", want: 999},
		{name: "max digits", input: "99999999999999.99", want: 9999999999999999},
		{name: "too many digits", input: "100000000000000.00", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "zero", input: "0", wantErr: true},
		{name: "negative", input: "-1.00", wantErr: true},
		{name: "explicit plus", input: "+1.00", wantErr: true},
		{name: "letters", input: "abc", wantErr: true},
		{name: "two separators", input: "1.2.3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDecimalToCents(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDecimalToCents(%q) = %d, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDecimalToCents(%q) returned error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseDecimalToCents(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestMoneyDecimal(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{1234, "12.34"},
		{700, "7.00"},
		{5, "0.05"},
		{-150, "-1.50"},
	}
	for _, tt := range tests {
		if got := (Money{Cents: tt.cents}).Decimal(); got != tt.want {
			t.Errorf("Money{%d}.Decimal() = %q, want %q", tt.cents, got, tt.want)
		}
	}
}
