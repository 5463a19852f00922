package utils

import (
	"regexp"
	"strings"
)

var supplementaryRunes = regexp.MustCompile(`[\x{10000}-\x{10FFFF}]`)

// FilterUnicode removes characters outside the Basic Multilingual Plane, which
// legacy utf8 (utf8mb3) MySQL columns cannot store.
func FilterUnicode(input string) string {
	if input == "" {
		return ""
	}
	return strings.TrimSpace(supplementaryRunes.ReplaceAllString(input, ""))
}
