package timestamp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	ref := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-15T10:30:00Z", Format(ref))
	assert.Equal(t, "", Format(time.Time{}))

	// Non-UTC input normalizes to UTC
	est := time.FixedZone("EST", -5*3600)
	assert.Equal(t, "2024-03-15T15:30:00Z", Format(time.Date(2024, 3, 15, 10, 30, 0, 0, est)))
}

func TestParse(t *testing.T) {
	ref := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		input    any
		expected time.Time
	}{
		{"nil", nil, time.Time{}},
		{"empty string", "", time.Time{}},
		{"rfc3339", "2024-03-15T10:30:00Z", ref},
		{"rfc3339 nano", "2024-03-15T10:30:00.000000000Z", ref},
		{"rfc3339 offset", "2024-03-15T05:30:00-05:00", ref},
		{"unix seconds int64", ref.Unix(), ref},
		{"unix seconds int", int(ref.Unix()), ref},
		{"unix seconds float", float64(ref.Unix()), ref},
		{"unix millis", ref.UnixMilli(), ref},
		{"unix seconds string", "1710498600", time.Unix(1710498600, 0).UTC()},
		{"garbage string", "not-a-time", time.Time{}},
		{"unsupported type", struct{}{}, time.Time{}},
		{"zero int", int64(0), time.Time{}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := Parse(test.input)
			assert.True(t, got.Equal(test.expected), "got %v, want %v", got, test.expected)
		})
	}
}

func TestParse_TimePassthrough(t *testing.T) {
	now := time.Now()
	assert.True(t, Parse(now).Equal(now))
}

func TestNow_Millisecond(t *testing.T) {
	n := Now()
	assert.Zero(t, n.Nanosecond()%int(time.Millisecond))
	assert.Equal(t, time.UTC, n.Location())
}

func TestRoundTrip(t *testing.T) {
	ref := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	assert.True(t, Parse(Format(ref)).Equal(ref))
}
