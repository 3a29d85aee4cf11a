// Package i18n renders prices according to a user's numeric format
// preference and exposes the choice lists shown on the settings page.
package i18n

import (
	"billova/internal/core"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Each numeric format maps to the locale whose separator convention it
// names: Austrian 1.234,56 / Swiss 1'234.56 / American 1,234.56 and so on.
var formatTags = map[core.NumericFormat]language.Tag{
	core.FormatAustrian: language.MustParse("de-AT"),
	core.FormatGerman:   language.MustParse("de-DE"),
	core.FormatSwiss:    language.MustParse("de-CH"),
	core.FormatAmerican: language.MustParse("en-US"),
	core.FormatBritish:  language.MustParse("en-GB"),
}

// Tag returns the language tag backing a numeric format. Unknown formats
// fall back to the Austrian default.
func Tag(f core.NumericFormat) language.Tag {
	if tag, ok := formatTags[f]; ok {
		return tag
	}
	return formatTags[core.DefaultNumericFormat]
}

// FormatPrice renders a money amount with the separators of the given
// numeric format, followed by the currency code: "1.234,56 EUR".
func FormatPrice(m core.Money, currencyCode string, f core.NumericFormat) string {
	p := message.NewPrinter(Tag(f))
	dec := number.Decimal(float64(m.Cents)/100,
		number.MinFractionDigits(2), number.MaxFractionDigits(2))
	return p.Sprintf("%v %s", dec, currencyCode)
}

// KnownCurrency reports whether code is a well-formed ISO 4217 code.
func KnownCurrency(code string) bool {
	if !core.ValidCurrency(code) {
		return false
	}
	_, err := currency.ParseISO(code)
	return err == nil
}

// CurrencyChoice is one entry of the settings page currency dropdown.
type CurrencyChoice struct {
	Code string
	Name string
}

// CurrencyChoices returns the currencies offered on the settings page.
func CurrencyChoices() []CurrencyChoice {
	choices := []CurrencyChoice{
		{Code: "EUR", Name: "Euro"},
		{Code: "USD", Name: "US Dollar"},
		{Code: "GBP", Name: "British Pound"},
		{Code: "CHF", Name: "Swiss Franc"},
		{Code: "JPY", Name: "Japanese Yen"},
		{Code: "TRY", Name: "Turkish Lira"},
	}
	out := choices[:0]
	for _, c := range choices {
		if _, err := currency.ParseISO(c.Code); err == nil {
			out = append(out, c)
		}
	}
	return out
}
