package types

import (
	"fmt"
	"strings"
)

const (
	// CanonicalCodeLength is the fixed width of a canonical classification code
	CanonicalCodeLength = 8

	// FuzzyPrefixLength tolerates a one-digit statistical suffix variance
	FuzzyPrefixLength = 7

	// FamilyPrefixLength identifies the commodity family
	FamilyPrefixLength = 5

	minCodeDigits = 2  // at least a chapter
	maxCodeDigits = 14 // longest national tariff line
)

// ClassificationCode is a canonical 8-digit commodity code
type ClassificationCode string

func (c ClassificationCode) String() string {
	return string(c)
}

// Chapter returns the 2-digit chapter
func (c ClassificationCode) Chapter() string {
	return string(c)[:2]
}

// Heading returns the 4-digit heading
func (c ClassificationCode) Heading() string {
	return string(c)[:4]
}

// Prefix returns the first n digits of the code
func (c ClassificationCode) Prefix(n int) string {
	if n >= len(c) {
		return string(c)
	}

	return string(c)[:n]
}

// Grouped returns the legacy delimited representation (NNNN.NN.NN)
func (c ClassificationCode) Grouped() string {
	return GroupDigits(string(c))
}

// GroupDigits formats a digit string (or prefix) in the NNNN.NN.NN layout
func GroupDigits(digits string) string {
	var b strings.Builder

	for i, r := range digits {
		if i == 4 || i == 6 {
			b.WriteByte('.')
		}

		b.WriteRune(r)
	}

	return b.String()
}

// StripDelimiters removes the separators used by grouped code formats
func StripDelimiters(raw string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ' ', '-', '\t':
			return -1
		default:
			return r
		}
	}, raw)
}

// ParseCode canonicalizes a raw code to 8 digits: longer codes are truncated
// from the right, shorter ones are zero-padded on the right
func ParseCode(raw string) (ClassificationCode, error) {
	digits := StripDelimiters(strings.TrimSpace(raw))

	if len(digits) < minCodeDigits || len(digits) > maxCodeDigits {
		return "", fmt.Errorf("%w: %q must have %d-%d digits", ErrInvalidCode, raw, minCodeDigits, maxCodeDigits)
	}

	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return "", fmt.Errorf("%w: %q contains non-digit characters", ErrInvalidCode, raw)
		}
	}

	if len(digits) > CanonicalCodeLength {
		return ClassificationCode(digits[:CanonicalCodeLength]), nil
	}

	return ClassificationCode(digits + strings.Repeat("0", CanonicalCodeLength-len(digits))), nil
}

// Country is an ISO 3166-1 alpha-2 country code
type Country string

func (c Country) String() string {
	return string(c)
}

var countryAliases = map[string]Country{
	"CHINA":          "CN",
	"PRC":            "CN",
	"UNITED STATES":  "US",
	"USA":            "US",
	"MEXICO":         "MX",
	"CANADA":         "CA",
	"VIETNAM":        "VN",
	"VIET NAM":       "VN",
	"THAILAND":       "TH",
	"INDIA":          "IN",
	"INDONESIA":      "ID",
	"MALAYSIA":       "MY",
	"GERMANY":        "DE",
	"FRANCE":         "FR",
	"ITALY":          "IT",
	"JAPAN":          "JP",
	"SOUTH KOREA":    "KR",
	"KOREA":          "KR",
	"TAIWAN":         "TW",
	"UNITED KINGDOM": "GB",
	"UK":             "GB",
}

// ParseCountry normalizes a country name or code to its alpha-2 form
func ParseCountry(raw string) (Country, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))

	if alias, ok := countryAliases[s]; ok {
		return alias, nil
	}

	if len(s) != 2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCountry, raw)
	}

	for i := 0; i < 2; i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return "", fmt.Errorf("%w: %q", ErrInvalidCountry, raw)
		}
	}

	return Country(s), nil
}
