package models

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var moneyPrinter = message.NewPrinter(language.English)

// Naira formats an amount with the currency sign and thousands separators.
func Naira(v int64) string {
	if v < 0 {
		return moneyPrinter.Sprintf("-₦%d", -v)
	}
	return moneyPrinter.Sprintf("₦%d", v)
}
