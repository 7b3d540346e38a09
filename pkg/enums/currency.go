package enums

import "strings"

// Currency is a lower-case ISO 4217 code. Only two-decimal currencies are
// listed, so minor units are always cents.
type Currency string

const (
	CurrencyUSD Currency = "usd"
	CurrencyEUR Currency = "eur"
	CurrencyGBP Currency = "gbp"
	CurrencyCAD Currency = "cad"
	CurrencyAUD Currency = "aud"
)

var currencies = []Currency{CurrencyUSD, CurrencyEUR, CurrencyGBP, CurrencyCAD, CurrencyAUD}

func (c Currency) String() string { return string(c) }

func (c Currency) IsValid() bool {
	_, err := parse("currency", string(c), string(c), currencies)
	return err == nil
}

// ParseCurrency accepts any case and surrounding whitespace.
func ParseCurrency(value string) (Currency, error) {
	return parse("currency", value, strings.ToLower(strings.TrimSpace(value)), currencies)
}
