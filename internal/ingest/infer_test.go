package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypersignal/backend/internal/models"
)

func TestColumnStatsResolve(t *testing.T) {
	tests := []struct {
		name     string
		values   []string
		wantType models.ColumnType
		nullable bool
	}{
		{"integers", []string{"1", "42", "-7"}, models.ColumnTypeInteger, false},
		{"integers with thousands separators", []string{"1,234", "5,678,900"}, models.ColumnTypeInteger, false},
		{"floats", []string{"1.5", "2", "-0.25"}, models.ColumnTypeFloat, false},
		{"scientific notation", []string{"1e3", "2.5e-2"}, models.ColumnTypeFloat, false},
		{"dates iso", []string{"2024-01-15", "2024-02-29"}, models.ColumnTypeDate, false},
		{"dates slash", []string{"2024/01/15", "2024/12/31"}, models.ColumnTypeDate, false},
		{"datetimes", []string{"2024-01-15 10:30:00", "2024-01-15 11:00:00"}, models.ColumnTypeDatetime, false},
		{"datetimes iso t", []string{"2024-01-15T10:30:00"}, models.ColumnTypeDatetime, false},
		{"booleans", []string{"true", "FALSE", "Y", "no"}, models.ColumnTypeBoolean, false},
		{"strings", []string{"seoul", "busan"}, models.ColumnTypeString, false},
		{"korean strings", []string{"서울", "부산"}, models.ColumnTypeString, false},
		{"mixed int and string", []string{"1", "two"}, models.ColumnTypeString, false},
		{"mixed int and float", []string{"1", "2.5"}, models.ColumnTypeFloat, false},
		{"ints with nulls", []string{"1", "", "3"}, models.ColumnTypeInteger, true},
		{"null tokens", []string{"1", "N/A", "null"}, models.ColumnTypeInteger, true},
		{"all empty stays string", []string{"", "", ""}, models.ColumnTypeString, true},
		{"mixed date and datetime", []string{"2024-01-15", "2024-01-15 10:00:00"}, models.ColumnTypeString, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newColumnStats("col")
			for _, v := range tt.values {
				s.observe(v, true)
			}
			info := s.resolve()
			assert.Equal(t, tt.wantType, info.Type)
			assert.Equal(t, tt.nullable, info.Nullable)
		})
	}
}

func TestColumnStatsSamples(t *testing.T) {
	s := newColumnStats("city")
	for _, v := range []string{"seoul", "seoul", "busan", "", "daegu", "incheon", "gwangju", "daejeon", "ulsan"} {
		s.observe(v, true)
	}
	info := s.resolve()

	require.Len(t, info.SampleValues, maxSampleValues)
	assert.Equal(t, []string{"seoul", "busan", "daegu", "incheon", "gwangju"}, info.SampleValues)
}

func TestColumnStatsSampleWindow(t *testing.T) {
	s := newColumnStats("city")
	s.observe("seoul", true)
	s.observe("busan", true)
	// Past the sample window type evidence still accumulates, but the
	// preview values stay frozen.
	s.observe("daegu", false)
	s.observe("123", false)
	info := s.resolve()

	assert.Equal(t, []string{"seoul", "busan"}, info.SampleValues)
	assert.Equal(t, models.ColumnTypeString, info.Type)
}

func TestParseInt(t *testing.T) {
	n, ok := ParseInt("1,234,567")
	require.True(t, ok)
	assert.Equal(t, int64(1234567), n)

	_, ok = ParseInt("1,23")
	assert.False(t, ok)

	_, ok = ParseInt("12.5")
	assert.False(t, ok)
}

func TestParseTemporal(t *testing.T) {
	ts, ok := ParseTemporal("2024-03-01")
	require.True(t, ok)
	assert.Equal(t, "2024-03-01", ts.Format("2006-01-02"))

	ts, ok = ParseTemporal("2024-03-01 14:30:00")
	require.True(t, ok)
	assert.Equal(t, 14, ts.Hour())

	_, ok = ParseTemporal("yesterday")
	assert.False(t, ok)
}
