package domain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	m, err := ParseMode("history")
	require.NoError(t, err)
	assert.Equal(t, ModeHistory, m)

	m, err = ParseMode("forecast")
	require.NoError(t, err)
	assert.Equal(t, ModeForecast, m)

	_, err = ParseMode("hourly")
	assert.Error(t, err)

	_, err = ParseMode("")
	assert.Error(t, err)
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		name string
		arg  string
		want Location
	}{
		{
			name: "city and state",
			arg:  "Atlanta, Georgia",
			want: Location{City: "Atlanta", State: "Georgia"},
		},
		{
			name: "extra whitespace",
			arg:  "  New York ,  New York  ",
			want: Location{City: "New York", State: "New York"},
		},
		{
			name: "free-form query",
			arg:  "Daniel Boone National Forest, KY, USA",
			want: Location{Name: "Daniel Boone National Forest, KY, USA"},
		},
		{
			name: "no comma stays free-form",
			arg:  "Reykjavik",
			want: Location{Name: "Reykjavik"},
		},
		{
			name: "trailing comma stays free-form",
			arg:  "Atlanta,",
			want: Location{Name: "Atlanta,"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLocation(tt.arg))
		})
	}
}

func TestLocationDisplayName(t *testing.T) {
	assert.Equal(t, "Atlanta, Georgia", Location{City: "Atlanta", State: "Georgia"}.DisplayName())
	assert.Equal(t, "Reykjavik", Location{Name: "Reykjavik"}.DisplayName())
	assert.True(t, Location{}.IsZero())
	assert.False(t, Location{Name: "x"}.IsZero())
}

func TestStampLoadedAt(t *testing.T) {
	frozen := time.Date(2026, 8, 30, 17, 30, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(frozen))
	t.Cleanup(func() { SetClock(nil) })

	obs := []RawObservation{
		makeRaw(testDenver, testHour, 39.6, -105.0, 68, time.Time{}),
		makeRaw(testDenver, testHour, 39.7, -105.0, 70, time.Time{}),
	}
	out := StampLoadedAt(obs)

	require.Len(t, out, 2)
	for _, o := range out {
		assert.Equal(t, frozen, o.LoadedAt)
	}
}

func TestObservationKey(t *testing.T) {
	a := makeRaw(testDenver, testHour, 39.6, -105.0, 68, firstLoad)
	b := makeRaw(testAtlanta, testHour, 39.6, -105.0, 70, secondLoad)
	// Location and measurements are not part of the natural key.
	assert.Equal(t, a.Key(), b.Key())

	c := makeRaw(testDenver, testHour.Add(time.Hour), 39.6, -105.0, 68, firstLoad)
	assert.NotEqual(t, a.Key(), c.Key())
}
