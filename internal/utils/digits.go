package utils

import (
	"strconv"
	"strings"
)

// ParseDigits keeps only the ASCII digits of s and parses them as an int.
// It reports false when nothing numeric is left or the value overflows.
func ParseDigits(s string) (int, bool) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if digits == "" {
		return 0, false
	}

	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}
