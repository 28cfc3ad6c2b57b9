// Package money formats integer minor-unit amounts for display.
package money

import (
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when neither the amount nor the formatter names one.
const DefaultCurrency = "USD"

// minorUnits lists currencies whose exponent is not 2.
var minorUnits = map[string]int32{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0, "KMF": 0, "KRW": 0,
	"PYG": 0, "RWF": 0, "UGX": 0, "VND": 0, "VUV": 0, "XAF": 0, "XOF": 0, "XPF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
}

// defaultTemplates are the storefront-style money formats used when none is configured.
var defaultTemplates = map[string]string{
	"USD": "${{amount}}",
	"CAD": "${{amount}} CAD",
	"AUD": "${{amount}} AUD",
	"EUR": "€{{amount}}",
	"GBP": "£{{amount}}",
	"JPY": "¥{{amount_no_decimals}}",
	"KRW": "₩{{amount_no_decimals}}",
}

// Formatter renders amounts per currency.
type Formatter struct {
	// Fallback is used when a cart carries no currency.
	Fallback string
	// Templates override the default money format per ISO 4217 code.
	Templates map[string]string
}

// NewFormatter returns a formatter with the given fallback currency and
// template overrides.
func NewFormatter(fallback string, templates map[string]string) Formatter {
	if fallback == "" {
		fallback = DefaultCurrency
	}
	return Formatter{Fallback: strings.ToUpper(fallback), Templates: templates}
}

// Format renders amount (in minor units of currency).
func (f Formatter) Format(amount int64, currency string) string {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		code = f.Fallback
	}
	if code == "" {
		code = DefaultCurrency
	}

	exp := Exponent(code)
	value := decimal.New(amount, -exp)

	tmpl, ok := f.Templates[code]
	if !ok {
		tmpl, ok = defaultTemplates[code]
	}
	if !ok {
		return group(value, exp) + " " + code
	}

	out := strings.ReplaceAll(tmpl, "{{amount_no_decimals}}", group(value.Round(0), 0))
	return strings.ReplaceAll(out, "{{amount}}", group(value, exp))
}

// Exponent returns the number of minor-unit digits of an ISO 4217 code.
func Exponent(code string) int32 {
	if e, ok := minorUnits[strings.ToUpper(code)]; ok {
		return e
	}
	return 2
}

// group renders value with thousands separators and exactly exp decimals.
func group(value decimal.Decimal, exp int32) string {
	sign := ""
	if value.IsNegative() {
		sign = "-"
		value = value.Neg()
	}
	whole := value.Truncate(0)
	s := sign + humanize.Comma(whole.IntPart())
	if exp > 0 {
		frac := value.Sub(whole).StringFixed(exp) // "0.xx"
		s += frac[1:]
	}
	return s
}

// DiscountPercent returns the rounded percentage saved from compareAt to
// price. ok is false when there is no discount.
func DiscountPercent(compareAt, price int64) (pct int, ok bool) {
	if compareAt <= 0 || compareAt <= price {
		return 0, false
	}
	d := decimal.NewFromInt(compareAt - price).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(compareAt))
	return int(d.Round(0).IntPart()), true
}
