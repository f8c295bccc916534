package nl2sql

import (
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("```[a-zA-Z]*")

const edgeCutset = " \n\r`"

// Sanitize recovers bare SQL from model output wrapped in markdown fences.
// Removal repeats until no fence marker is left so the result is a fixed point.
func Sanitize(raw string) string {
	text := raw
	for strings.Contains(text, "```") {
		text = fencePattern.ReplaceAllString(text, "")
	}
	return strings.Trim(text, edgeCutset)
}

// SanitizeOptional treats absent model output as empty SQL.
func SanitizeOptional(raw *string) string {
	if raw == nil {
		return ""
	}
	return Sanitize(*raw)
}
