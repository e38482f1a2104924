package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustInterval(t *testing.T, start, end string) Interval {
	t.Helper()
	iv, err := ParseInterval(start, end)
	require.NoError(t, err)
	return iv
}

func TestSetWeeklyHoursValidation(t *testing.T) {
	tests := []struct {
		name      string
		intervals []Interval
		wantErr   bool
	}{
		{
			name:      "single valid interval",
			intervals: []Interval{{Start: 9 * 60, End: 18 * 60}},
		},
		{
			name:      "two disjoint sorted intervals",
			intervals: []Interval{{Start: 9 * 60, End: 13 * 60}, {Start: 14 * 60, End: 18 * 60}},
		},
		{
			name:      "touching intervals are allowed",
			intervals: []Interval{{Start: 9 * 60, End: 13 * 60}, {Start: 13 * 60, End: 18 * 60}},
		},
		{
			name:      "empty list closes the day",
			intervals: nil,
		},
		{
			name:      "inverted interval",
			intervals: []Interval{{Start: 18 * 60, End: 9 * 60}},
			wantErr:   true,
		},
		{
			name:      "zero-length interval",
			intervals: []Interval{{Start: 9 * 60, End: 9 * 60}},
			wantErr:   true,
		},
		{
			name:      "overlapping intervals",
			intervals: []Interval{{Start: 9 * 60, End: 14 * 60}, {Start: 13 * 60, End: 18 * 60}},
			wantErr:   true,
		},
		{
			name:      "unsorted intervals",
			intervals: []Interval{{Start: 14 * 60, End: 18 * 60}, {Start: 9 * 60, End: 13 * 60}},
			wantErr:   true,
		},
		{
			name:      "end past midnight",
			intervals: []Interval{{Start: 23 * 60, End: 25 * 60}},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wh := NewWorkingHours()
			err := wh.SetWeeklyHours(time.Monday, tt.intervals)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestIsDateFullyOff(t *testing.T) {
	wh := NewWorkingHours()
	require.NoError(t, wh.SetWeeklyHours(time.Monday, []Interval{{Start: 9 * 60, End: 12 * 60}}))

	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC) // a Monday
	tuesday := monday.AddDate(0, 0, 1)

	assert.False(t, wh.IsDateFullyOff(monday))
	assert.True(t, wh.IsDateFullyOff(tuesday), "weekday with no intervals is off")

	// One-off closure overrides an otherwise open weekday.
	wh.SetDaysOff(nil, []time.Time{monday})
	assert.True(t, wh.IsDateFullyOff(monday))
	assert.Nil(t, wh.IntervalsFor(monday))

	// Weekday-level flag.
	wh.SetDaysOff([]time.Weekday{time.Monday}, nil)
	assert.True(t, wh.IsDateFullyOff(monday.AddDate(0, 0, 7)))
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "09:00", want: 540},
		{in: "00:00", want: 0},
		{in: "23:59", want: 1439},
		{in: "24:00", wantErr: true},
		{in: "9", wantErr: true},
		{in: "ab:cd", wantErr: true},
		{in: "12:60", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrValidation, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	wh := NewWorkingHours()
	require.NoError(t, wh.SetWeeklyHours(time.Monday, []Interval{
		mustInterval(t, "09:00", "13:00"),
		mustInterval(t, "14:00", "18:00"),
	}))
	require.NoError(t, wh.SetWeeklyHours(time.Saturday, []Interval{mustInterval(t, "10:00", "15:00")}))
	wh.SetDaysOff([]time.Weekday{time.Sunday}, []time.Time{
		time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
	})

	encoded, err := wh.Encode()
	require.NoError(t, err)

	decoded, err := DecodeWorkingHours(encoded)
	require.NoError(t, err)

	assert.Equal(t, wh.WeekdayIntervals(time.Monday), decoded.WeekdayIntervals(time.Monday))
	assert.Equal(t, wh.WeekdayIntervals(time.Saturday), decoded.WeekdayIntervals(time.Saturday))
	assert.Equal(t, []time.Weekday{time.Sunday}, decoded.WeekdaysOff())
	assert.Equal(t, []string{"2025-12-31"}, decoded.DaysOffDates())
}

func TestDecodeWorkingHours(t *testing.T) {
	t.Run("empty string yields closed schedule", func(t *testing.T) {
		wh, err := DecodeWorkingHours("")
		require.NoError(t, err)
		assert.True(t, wh.IsDateFullyOff(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("persisted shape from the booking page", func(t *testing.T) {
		raw := `{"monday":[["09:00","18:00"]],"days_off":["sunday"],"days_off_dates":["2026-03-08"]}`
		wh, err := DecodeWorkingHours(raw)
		require.NoError(t, err)
		assert.Equal(t, []Interval{{Start: 540, End: 1080}}, wh.WeekdayIntervals(time.Monday))
		assert.True(t, wh.IsDateFullyOff(time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("corrupt interval fails loudly", func(t *testing.T) {
		_, err := DecodeWorkingHours(`{"monday":[["nine","ten"]]}`)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("unsorted persisted intervals are normalized", func(t *testing.T) {
		raw := `{"friday":[["14:00","18:00"],["09:00","12:00"]]}`
		wh, err := DecodeWorkingHours(raw)
		require.NoError(t, err)
		ivs := wh.WeekdayIntervals(time.Friday)
		require.Len(t, ivs, 2)
		assert.Equal(t, "09:00", ivs[0].StartClock())
	})
}

func TestDefaultWorkingHours(t *testing.T) {
	wh := DefaultWorkingHours()
	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	saturday := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, []Interval{{Start: 540, End: 1080}}, wh.IntervalsFor(monday))
	assert.True(t, wh.IsDateFullyOff(saturday))
}
