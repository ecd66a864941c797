package shared

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var ugxPrinter = message.NewPrinter(language.English)

// FormatUGX renders an amount as whole Ugandan shillings with thousand
// separators, e.g. "UGX 1,500,000". Fractions are rounded away since UGX
// has no circulating sub-unit.
func FormatUGX(amount decimal.Decimal) string {
	return ugxPrinter.Sprintf("UGX %d", amount.Round(0).IntPart())
}
