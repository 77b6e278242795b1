package core

// convert.go turns the messy reality of user-provided cells into comparable values:
//   - Currency symbols and thousand separators in numbers
//   - Accounting format negatives "(123.45)"
//   - Excel formula prefixes (="value")
//   - Surrounding quotes and whitespace
//
// Conversion failures never raise. ParseAmount reports ok=false and callers
// treat the cell as a non-match.

import (
	"regexp"
	"strconv"
	"strings"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// ParseAmount converts a cell to a float64.
// Handles currency symbols, thousands separators, and accounting format (parentheses for negative).
func ParseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	// Detect negative accounting format "(123.45)"
	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	// Remove common currency symbols and thousands separators
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if isNegative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return 0, false
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// normalizeText is the comparison form used by contains/equals conditions.
func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CleanCell removes common CSV artifacts from a cell value:
// - Replaces invalid UTF-8 sequences with U+FFFD
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(strings.ToValidUTF8(s, "\uFFFD"))

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.Trim(s, `"'`)
}

// isBlankCell reports whether a cell counts as missing data for row status.
// A literal "0" is treated as blank, matching how operators mark unfilled amounts.
func isBlankCell(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == "0"
}
