package compare

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var printer = message.NewPrinter(language.English)

// FormatNumber renders f with digit grouping and at most two decimals, for
// summary figures such as statistic ranges.
func FormatNumber(f float64) string {
	return printer.Sprint(number.Decimal(f, number.MaxFractionDigits(2)))
}

// MinLabel returns the formatted minimum.
func (s Stat) MinLabel() string {
	return FormatNumber(s.Min)
}

// MaxLabel returns the formatted maximum.
func (s Stat) MaxLabel() string {
	return FormatNumber(s.Max)
}
