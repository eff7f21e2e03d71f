package util

import (
	"github.com/dustin/go-humanize"
)

// FormatVND formats an amount in dong, e.g. 1000000 -> "1.000.000 ₫".
func FormatVND(amount int64) string {
	return humanize.FormatInteger("#.###,", int(amount)) + " ₫"
}

// FormatMoney formats a bid amount with comma grouping, e.g. 1500 -> "1,500".
func FormatMoney(amount int64) string {
	return humanize.Comma(amount)
}

// TruncateContent shortens a title for notifications.
func TruncateContent(title string, maxLength int) string {
	runes := []rune(title)
	if len(runes) <= maxLength {
		return title
	}
	return string(runes[:maxLength]) + "..."
}
