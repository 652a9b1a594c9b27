package utils

import "unicode/utf8"

// Truncate cuts s to at most maxLen runes and marks the cut with "...".
func Truncate(s string, maxLen int) string {
	if maxLen < 0 {
		maxLen = 0
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
