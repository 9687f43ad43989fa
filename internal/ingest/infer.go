package ingest

import (
	"strconv"
	"strings"
	"time"

	"github.com/hypersignal/backend/internal/models"
)

const maxSampleValues = 5

// columnStats accumulates per-column evidence while scanning rows. Each
// allX flag starts true and is cleared by the first non-empty value that
// fails the corresponding parse, so after a scan the strictest surviving
// flag decides the type.
type columnStats struct {
	name        string
	nonEmpty    int64
	nulls       int64
	allInt      bool
	allFloat    bool
	allBool     bool
	allDate     bool
	allDateTime bool
	samples     []string
}

func newColumnStats(name string) *columnStats {
	return &columnStats{
		name:        name,
		allInt:      true,
		allFloat:    true,
		allBool:     true,
		allDate:     true,
		allDateTime: true,
	}
}

// observe folds one cell into the stats. Sample values are only
// collected while collectSample is true, so previews are drawn from the
// head of the file rather than wherever dedup happens to land.
func (s *columnStats) observe(raw string, collectSample bool) {
	v := strings.TrimSpace(raw)
	if v == "" || isNullToken(v) {
		s.nulls++
		return
	}
	s.nonEmpty++

	if s.allInt && !isInt(v) {
		s.allInt = false
	}
	if s.allFloat && !isFloat(v) {
		s.allFloat = false
	}
	if s.allBool && !isBool(v) {
		s.allBool = false
	}
	if s.allDate && !isDate(v) {
		s.allDate = false
	}
	if s.allDateTime && !isDateTime(v) {
		s.allDateTime = false
	}

	if collectSample && len(s.samples) < maxSampleValues && !containsString(s.samples, v) {
		s.samples = append(s.samples, v)
	}
}

// resolve picks the column type. Integer wins over float (every int parses
// as a float), date wins over datetime (a bare date also parses as a
// midnight timestamp only when the layouts overlap, which they do not
// here, but keeping date first makes the intent explicit). Columns with no
// non-empty values stay string.
func (s *columnStats) resolve() models.ColumnInfo {
	typ := models.ColumnTypeString
	if s.nonEmpty > 0 {
		switch {
		case s.allInt:
			typ = models.ColumnTypeInteger
		case s.allFloat:
			typ = models.ColumnTypeFloat
		case s.allDate:
			typ = models.ColumnTypeDate
		case s.allDateTime:
			typ = models.ColumnTypeDatetime
		case s.allBool:
			typ = models.ColumnTypeBoolean
		}
	}
	return models.ColumnInfo{
		Name:         s.name,
		Type:         typ,
		Nullable:     s.nulls > 0,
		SampleValues: s.samples,
	}
}

func isNullToken(v string) bool {
	switch strings.ToLower(v) {
	case "null", "none", "nan", "n/a", "na", "-":
		return true
	}
	return false
}

func isInt(v string) bool {
	v = stripThousands(v)
	if _, err := strconv.ParseInt(v, 10, 64); err != nil {
		return false
	}
	return true
}

func isFloat(v string) bool {
	v = stripThousands(v)
	if _, err := strconv.ParseFloat(v, 64); err != nil {
		return false
	}
	return true
}

// stripThousands removes comma grouping from values like "1,234,567".
// Only removed when every group between commas is exactly three digits,
// so "1,2" (a malformed value, not a number) is left alone.
func stripThousands(v string) string {
	if !strings.Contains(v, ",") {
		return v
	}
	parts := strings.Split(v, ",")
	for i, p := range parts {
		if i == 0 {
			continue
		}
		if len(p) < 3 {
			return v
		}
		head := p[:3]
		for _, r := range head {
			if r < '0' || r > '9' {
				return v
			}
		}
		if i < len(parts)-1 && len(p) != 3 {
			return v
		}
	}
	return strings.ReplaceAll(v, ",", "")
}

func isBool(v string) bool {
	switch strings.ToLower(v) {
	case "true", "false", "y", "n", "yes", "no":
		return true
	}
	return false
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"01/02/2006",
}

var dateTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
}

func isDate(v string) bool {
	_, ok := ParseDate(v)
	return ok
}

func isDateTime(v string) bool {
	_, ok := ParseDateTime(v)
	return ok
}

// ParseDate parses v against the accepted date-only layouts.
func ParseDate(v string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseDateTime parses v against the accepted timestamp layouts.
func ParseDateTime(v string) (time.Time, bool) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseTemporal parses v as either a date or a timestamp.
func ParseTemporal(v string) (time.Time, bool) {
	if t, ok := ParseDate(v); ok {
		return t, true
	}
	return ParseDateTime(v)
}

// ParseInt parses v as an int64, tolerating thousands separators.
func ParseInt(v string) (int64, bool) {
	n, err := strconv.ParseInt(stripThousands(v), 10, 64)
	return n, err == nil
}

// ParseFloat parses v as a float64, tolerating thousands separators.
func ParseFloat(v string) (float64, bool) {
	f, err := strconv.ParseFloat(stripThousands(v), 64)
	return f, err == nil
}

// ParseBool parses the loose boolean tokens accepted by inference.
func ParseBool(v string) (bool, bool) {
	switch strings.ToLower(v) {
	case "true", "y", "yes":
		return true, true
	case "false", "n", "no":
		return false, true
	}
	return false, false
}

// IsNullValue reports whether raw should be stored as NULL.
func IsNullValue(raw string) bool {
	v := strings.TrimSpace(raw)
	return v == "" || isNullToken(v)
}

func containsString(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
