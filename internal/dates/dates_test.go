package dates

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	d, err := Parse(" 2024-02-29 ")
	require.NoError(t, err)
	assert.Equal(t, New(2024, time.February, 29), d)
	assert.Equal(t, "2024-02-29", d.String())

	_, err = Parse("2023-02-29")
	assert.Error(t, err)

	_, err = Parse("29/02/2024")
	assert.Error(t, err)
}

func TestAddDaysCrossesMonthAndYear(t *testing.T) {
	assert.Equal(t, MustParse("2025-01-01"), MustParse("2024-12-31").AddDays(1))
	assert.Equal(t, MustParse("2024-02-29"), MustParse("2024-03-01").AddDays(-1))
}

func TestDaysSince(t *testing.T) {
	assert.Equal(t, 0, MustParse("2024-05-05").DaysSince(MustParse("2024-05-05")))
	assert.Equal(t, 366, MustParse("2025-01-01").DaysSince(MustParse("2024-01-01")))
	assert.Equal(t, -3, MustParse("2024-05-02").DaysSince(MustParse("2024-05-05")))
}

func TestCompare(t *testing.T) {
	a := MustParse("2024-05-05")
	b := MustParse("2024-06-01")

	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.Equal(t, 0, a.Compare(MustParse("2024-05-05")))
	assert.True(t, a.Within(a, a))
	assert.False(t, b.Within(a, MustParse("2024-05-31")))
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		a1, a2, b1, b2 string
		want           bool
	}{
		{"2024-01-01", "2024-01-05", "2024-01-05", "2024-01-07", true},
		{"2024-01-01", "2024-01-05", "2024-01-06", "2024-01-07", false},
		{"2024-01-03", "2024-01-03", "2024-01-01", "2024-01-05", true},
		{"2024-01-06", "2024-01-09", "2024-01-01", "2024-01-05", false},
	}
	for _, tt := range tests {
		got := Overlaps(MustParse(tt.a1), MustParse(tt.a2), MustParse(tt.b1), MustParse(tt.b2))
		assert.Equal(t, tt.want, got, "%s..%s vs %s..%s", tt.a1, tt.a2, tt.b1, tt.b2)
	}
}

func TestRange(t *testing.T) {
	var got []string
	for d := range Range(MustParse("2024-02-27"), MustParse("2024-03-01")) {
		got = append(got, d.String())
	}
	assert.Equal(t, []string{"2024-02-27", "2024-02-28", "2024-02-29", "2024-03-01"}, got)

	count := 0
	for range Range(MustParse("2024-03-02"), MustParse("2024-03-01")) {
		count++
	}
	assert.Zero(t, count)
}

func TestJSONRoundTrip(t *testing.T) {
	type payload struct {
		Start Date `json:"start"`
	}
	var p payload
	require.NoError(t, json.Unmarshal([]byte(`{"start":"2024-07-01"}`), &p))
	assert.Equal(t, MustParse("2024-07-01"), p.Start)

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":"2024-07-01"}`, string(out))
}

func TestScan(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan("2024-07-01"))
	assert.Equal(t, MustParse("2024-07-01"), d)

	require.NoError(t, d.Scan(time.Date(2024, 8, 2, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, MustParse("2024-08-02"), d)

	require.NoError(t, d.Scan(nil))
	assert.True(t, d.IsZero())

	assert.Error(t, d.Scan(42))
}

func TestFixedClock(t *testing.T) {
	c := NewFixedClock(time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC))
	assert.Equal(t, MustParse("2024-01-31"), Today(c))
	c.Advance(2 * time.Hour)
	assert.Equal(t, MustParse("2024-02-01"), Today(c))
}
