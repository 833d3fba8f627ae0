package util

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	thousandDot   = regexp.MustCompile(`^-?\d{1,3}(?:\.\d{3})+$`)
	thousandComma = regexp.MustCompile(`^-?\d{1,3}(?:,\d{3})+$`)
	nonNumeric    = regexp.MustCompile(`[^0-9.,\-]`)
)

// ParseDecimal reads a numeric cell the way invoices print them: currency
// symbols and unit suffixes are ignored, both "1.234,56" and "1,234.56"
// conventions are accepted. Returns nil when no number can be read.
func ParseDecimal(input string) *float64 {
	compact := strings.ReplaceAll(input, " ", " ")
	compact = nonNumeric.ReplaceAllString(compact, "")
	if compact == "" || compact == "-" {
		return nil
	}

	switch {
	case thousandDot.MatchString(compact):
		compact = strings.ReplaceAll(compact, ".", "")
	case thousandComma.MatchString(compact):
		compact = strings.ReplaceAll(compact, ",", "")
	case strings.Contains(compact, ",") && strings.Contains(compact, "."):
		if strings.LastIndex(compact, ",") > strings.LastIndex(compact, ".") {
			compact = strings.ReplaceAll(compact, ".", "")
			compact = strings.ReplaceAll(compact, ",", ".")
		} else {
			compact = strings.ReplaceAll(compact, ",", "")
		}
	case strings.Contains(compact, ","):
		compact = strings.ReplaceAll(compact, ",", ".")
	}

	parsed, err := strconv.ParseFloat(compact, 64)
	if err != nil {
		return nil
	}
	return FloatPtr(parsed)
}

// ParseCount reads an integer quantity cell, tolerating decimal notation
// ("5.0") and thousand separators.
func ParseCount(input string) *int {
	f := ParseDecimal(input)
	if f == nil {
		return nil
	}
	return IntPtr(int(*f))
}
