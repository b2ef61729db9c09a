package research

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/sig-0/dutyrates/storage/types"
)

const (
	ConfidenceHigh   = 90
	ConfidenceMedium = 70
	ConfidenceLow    = 40

	// MaxConfidence caps any research-sourced confidence
	MaxConfidence = types.CeilingResearch

	maxRate = 1000.0
)

var (
	fencePattern         = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")
	trailingCommaPattern = regexp.MustCompile(`,(\s*[}\]])`)
)

// Field is a single researched rate with its provenance
type Field struct {
	Rate          types.Rate `json:"rate"`
	Justification string     `json:"justification,omitempty"`
	Confidence    int        `json:"confidence"`
}

// Result is a parsed research response
type Result struct {
	Overlays      map[string]Field `json:"overlays,omitempty"`
	Provider      string           `json:"provider"`
	Description   string           `json:"description,omitempty"`
	Base          Field            `json:"base"`
	Preferential  Field            `json:"preferential"`
	Confidence    int              `json:"confidence"`
	OverlaysKnown bool             `json:"overlays_known"`
}

// Parse extracts and validates a research response. Each field is validated
// independently: an invalid or absent field becomes Unknown without failing the
// whole response. Only a response with no recoverable JSON object is an error
func Parse(raw string) (*Result, error) {
	body, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrParseFailure, err)
	}

	overall, ok := parseConfidence(fields["confidence"])
	if !ok {
		overall = ConfidenceLow
	}

	result := &Result{
		Description:  parseString(fields["description"]),
		Base:         parseField(fields["base_rate"], overall),
		Preferential: parseField(fields["preferential_rate"], overall),
		Confidence:   overall,
	}

	if rawOverlays, ok := fields["overlays"]; ok {
		var overlays map[string]json.RawMessage

		if err := json.Unmarshal(rawOverlays, &overlays); err == nil && overlays != nil {
			result.OverlaysKnown = true
			result.Overlays = make(map[string]Field, len(overlays))

			for name, value := range overlays {
				normalized := OverlayName(name)
				if normalized == "" {
					continue
				}

				result.Overlays[normalized] = parseField(value, overall)
			}
		}
	}

	return result, nil
}

// OverlayName normalizes an overlay label (e.g. "Section 301" -> "section_301")
func OverlayName(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '.'
	})

	return strings.Join(fields, "_")
}

// parseField decodes either a field object ({"rate", "justification", "confidence"})
// or a bare rate value
func parseField(raw json.RawMessage, fallbackConfidence int) Field {
	field := Field{
		Rate:       types.Unknown(),
		Confidence: fallbackConfidence,
	}

	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "{") {
		field.Rate = parseRate(raw)

		return field
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return field
	}

	rateRaw, ok := obj["rate"]
	if !ok {
		rateRaw = obj["value"]
	}

	field.Rate = parseRate(rateRaw)
	field.Justification = parseString(obj["justification"])

	if c, ok := parseConfidence(obj["confidence"]); ok {
		field.Confidence = c
	}

	return field
}

// parseRate validates a single rate value. Absent, null or out-of-range
// values are Unknown; an explicit 0 or "Free" is ConfirmedZero
func parseRate(raw json.RawMessage) types.Rate {
	if len(raw) == 0 {
		return types.Unknown()
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return types.Unknown()
	}

	switch v := value.(type) {
	case float64:
		return validRate(v)
	case string:
		return ParseRateText(v)
	default:
		return types.Unknown()
	}
}

// ParseRateText parses a textual rate such as "2.5%", "2.5" or "Free"
func ParseRateText(s string) types.Rate {
	s = strings.ToLower(strings.TrimSpace(s))

	switch s {
	case "":
		return types.Unknown()
	case "free", "duty free", "duty-free":
		return types.ConfirmedZero()
	}

	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return types.Unknown()
	}

	return validRate(v)
}

func validRate(v float64) types.Rate {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > maxRate {
		return types.Unknown()
	}

	return types.RateOf(v)
}

// parseConfidence maps a label (high / medium / low) or a 0-100 number to a
// capped confidence score
func parseConfidence(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, false
	}

	switch v := value.(type) {
	case float64:
		return numericConfidence(v)
	case string:
		label := strings.ToLower(strings.TrimSpace(v))

		switch label {
		case "high":
			return ConfidenceHigh, true
		case "medium":
			return ConfidenceMedium, true
		case "low":
			return ConfidenceLow, true
		}

		f, err := strconv.ParseFloat(strings.TrimSuffix(label, "%"), 64)
		if err != nil {
			return 0, false
		}

		return numericConfidence(f)
	default:
		return 0, false
	}
}

func numericConfidence(v float64) (int, bool) {
	if math.IsNaN(v) || v < 0 || v > 100 {
		return 0, false
	}

	return min(int(math.Round(v)), MaxConfidence), true
}

func parseString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}

	return strings.TrimSpace(s)
}

// extractJSON locates the JSON object in a provider response: direct parse,
// then bracket matching, then structural repair
func extractJSON(raw string) (string, error) {
	s := stripMarkup(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty response", types.ErrParseFailure)
	}

	if strings.HasPrefix(s, "{") && json.Valid([]byte(s)) {
		return s, nil
	}

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", fmt.Errorf("%w: no JSON object in response", types.ErrParseFailure)
	}

	if end, ok := matchBrace(s, start); ok {
		candidate := trailingCommaPattern.ReplaceAllString(s[start:end+1], "$1")
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	// Try closing the object as-is, then with trailing text after the last brace trimmed
	candidates := []string{s[start:]}
	if last := strings.LastIndexByte(s, '}'); last > start {
		candidates = append(candidates, s[start:last+1])
	}

	for _, candidate := range candidates {
		repaired, _ := repairJSON(candidate)
		if json.Valid([]byte(repaired)) {
			return repaired, nil
		}
	}

	return "", fmt.Errorf("%w: response is not valid JSON after repair", types.ErrParseFailure)
}

// stripMarkup removes code fences and surrounding whitespace
func stripMarkup(raw string) string {
	s := strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))

	if m := fencePattern.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}

	// Unterminated fence (truncated response)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimLeft(s, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
	}

	return strings.TrimSpace(s)
}

// matchBrace returns the index of the brace closing the one at start
func matchBrace(s string, start int) (int, bool) {
	var (
		depth    int
		inString bool
		escaped  bool
	)

	for i := start; i < len(s); i++ {
		c := s[i]

		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--

			if depth == 0 {
				return i, true
			}
		}
	}

	return 0, false
}

// repairJSON closes a truncated object: it terminates an open string, drops a
// dangling comma and appends exactly as many closing braces as are missing.
// It returns the repaired text and the number of braces appended
func repairJSON(s string) (string, int) {
	var (
		opened, closed int
		inString       bool
		escaped        bool
	)

	for i := 0; i < len(s); i++ {
		c := s[i]

		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			opened++
		case c == '}':
			closed++
		}
	}

	if inString {
		s += `"`
	}

	s = strings.TrimRight(s, " \t\r\n")
	s = strings.TrimSuffix(s, ",")
	s = trailingCommaPattern.ReplaceAllString(s, "$1")

	missing := opened - closed
	if missing <= 0 {
		return s, 0
	}

	return s + strings.Repeat("}", missing), missing
}
