package violations

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FIELD NORMALIZER - canonical amount and date forms for comparison
// =============================================================================

// NormalizeAmount parses a monetary value. Anything missing or non-numeric
// becomes zero.
func NormalizeAmount(v any) decimal.Decimal {
	switch x := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return x
	case string:
		s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(x), "$"))
		if s == "" {
			return decimal.Zero
		}
		d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
		if err != nil {
			return decimal.Zero
		}
		return d
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(x)
	case float32:
		return decimal.NewFromFloat32(x)
	case int:
		return decimal.NewFromInt(int64(x))
	case int64:
		return decimal.NewFromInt(x)
	case int32:
		return decimal.NewFromInt32(x)
	default:
		return decimal.Zero
	}
}

// tzSuffix matches a trailing Z or numeric offset after a time component.
var tzSuffix = regexp.MustCompile(`(?i)T[0-9:.]+(z|[+-]\d{2}(:?\d{2})?)$`)

var dateOnly = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// spaceSeparated matches a date and time joined by a space instead of T.
var spaceSeparated = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}) +(\d)`)

// NormalizeDate returns the value with an explicit UTC marker unless it
// already carries a timezone. Blank input returns "".
func NormalizeDate(v string) string {
	s := strings.TrimSpace(v)
	if s == "" {
		return ""
	}
	if dateOnly.MatchString(s) {
		return s + "T00:00:00Z"
	}
	s = spaceSeparated.ReplaceAllString(s, "${1}T${2}")
	if tzSuffix.MatchString(s) {
		return s
	}
	return s + "Z"
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02T15:04Z07:00",
}

// ParseDate normalizes and parses a source date. Blank input returns nil.
func ParseDate(v string) (*time.Time, error) {
	s := NormalizeDate(v)
	if s == "" {
		return nil, nil
	}
	if strings.HasSuffix(s, "z") {
		s = s[:len(s)-1] + "Z"
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			utc := t.UTC()
			return &utc, nil
		}
	}
	return nil, fmt.Errorf("%w: unparseable date %q", ErrMalformedRecord, v)
}

// sameInstant compares two optional times.
func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
