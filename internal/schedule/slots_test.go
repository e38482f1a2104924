package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mondayOpen returns a schedule open Monday 09:00-12:00 only.
func mondayOpen(t *testing.T) *WorkingHours {
	t.Helper()
	wh := NewWorkingHours()
	require.NoError(t, wh.SetWeeklyHours(time.Monday, []Interval{{Start: 9 * 60, End: 12 * 60}}))
	return wh
}

var (
	// A Monday well in the future so "now" never interferes unless a
	// test wants it to.
	monday = time.Date(2030, 6, 3, 0, 0, 0, 0, time.UTC)
	past   = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
)

func at(hour, minute int) time.Time {
	return time.Date(monday.Year(), monday.Month(), monday.Day(), hour, minute, 0, 0, time.UTC)
}

func TestComputeSlotsEmptyDay(t *testing.T) {
	wh := mondayOpen(t)

	t.Run("weekday with no intervals", func(t *testing.T) {
		tuesday := monday.AddDate(0, 0, 1)
		assert.Empty(t, ComputeSlots(wh, tuesday, time.Hour, nil, past))
	})

	t.Run("date marked off despite open weekday", func(t *testing.T) {
		wh.SetDaysOff(nil, []time.Time{monday})
		assert.Empty(t, ComputeSlots(wh, monday, time.Hour, nil, past))
	})
}

func TestComputeSlotsBasicMonday(t *testing.T) {
	// Monday 09:00-12:00, 60-minute service, no appointments.
	slots := ComputeSlots(mondayOpen(t), monday, time.Hour, nil, past)

	require.Len(t, slots, 3)
	wantStarts := []time.Time{at(9, 0), at(10, 0), at(11, 0)}
	for i, s := range slots {
		assert.Equal(t, wantStarts[i], s.Start)
		assert.Equal(t, time.Hour, s.End.Sub(s.Start), "slot duration must equal service duration")
		assert.True(t, s.Available)
	}

	// Consecutive candidates never overlap.
	for i := 1; i < len(slots); i++ {
		assert.False(t, slots[i].Start.Before(slots[i-1].End))
	}
}

func TestComputeSlotsWithBooking(t *testing.T) {
	// Existing confirmed appointment 10:00-11:00 blocks exactly the
	// candidate it occupies; its neighbors touch it on half-open
	// boundaries and stay free.
	busy := []Busy{{Start: at(10, 0), End: at(11, 0)}}
	slots := ComputeSlots(mondayOpen(t), monday, time.Hour, busy, past)

	require.Len(t, slots, 3)
	wantAvailable := map[string]bool{
		"09:00": true, // ends exactly at 10:00
		"10:00": false,
		"11:00": true, // starts exactly when the booking ends
	}
	for _, s := range slots {
		assert.Equal(t, wantAvailable[s.Start.Format("15:04")], s.Available, s.Start.Format("15:04"))
	}
}

func TestComputeSlotsPartialOverlapBlocks(t *testing.T) {
	// A manually created 09:30-10:30 booking does not align with the
	// hour grid but still blocks both candidates it touches.
	busy := []Busy{{Start: at(9, 30), End: at(10, 30)}}
	slots := ComputeSlots(mondayOpen(t), monday, time.Hour, busy, past)

	require.Len(t, slots, 3)
	assert.False(t, slots[0].Available)
	assert.False(t, slots[1].Available)
	assert.True(t, slots[2].Available)
}

func TestComputeSlotsPastCutoff(t *testing.T) {
	// "Now" is 10:15 on the target day; earlier starts are unavailable
	// but still listed.
	now := at(10, 15)
	slots := ComputeSlots(mondayOpen(t), monday, SlotStep, nil, now)

	require.Len(t, slots, 6)
	for _, s := range slots {
		if s.Start.Before(now) {
			assert.False(t, s.Available, "past slot %s must be unavailable", s.Start.Format("15:04"))
		} else {
			assert.True(t, s.Available)
		}
	}
}

func TestComputeSlotsNoPartialTrailingSlot(t *testing.T) {
	// 09:00-12:00 with a 90-minute service: two full slots fit, the
	// trailing remainder is never emitted.
	slots := ComputeSlots(mondayOpen(t), monday, 90*time.Minute, nil, past)

	require.Len(t, slots, 2)
	assert.Equal(t, at(9, 0), slots[0].Start)
	assert.Equal(t, at(10, 30), slots[1].Start)
	assert.Equal(t, at(12, 0), slots[1].End)
}

func TestComputeSlotsMultipleIntervals(t *testing.T) {
	wh := NewWorkingHours()
	require.NoError(t, wh.SetWeeklyHours(time.Monday, []Interval{
		{Start: 9 * 60, End: 11 * 60},
		{Start: 14 * 60, End: 16 * 60},
	}))

	slots := ComputeSlots(wh, monday, time.Hour, nil, past)

	require.Len(t, slots, 4)
	for i := 1; i < len(slots); i++ {
		assert.True(t, slots[i].Start.After(slots[i-1].Start), "slots stay chronological across intervals")
	}
	assert.Equal(t, at(14, 0), slots[2].Start, "second interval starts fresh")
}

func TestComputeSlotsIdempotent(t *testing.T) {
	wh := mondayOpen(t)
	busy := []Busy{{Start: at(9, 30), End: at(10, 30)}}
	now := at(9, 45)

	first := ComputeSlots(wh, monday, time.Hour, busy, now)
	second := ComputeSlots(wh, monday, time.Hour, busy, now)
	assert.Equal(t, first, second)
}

func TestComputeSlotsTimezone(t *testing.T) {
	// The date carries the master's zone; a booking stored in UTC must
	// still block the corresponding local slot.
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)

	wh := mondayOpen(t)
	localMonday := time.Date(2030, 6, 3, 0, 0, 0, 0, loc)
	// 10:00-11:00 MSK expressed in UTC (07:00-08:00).
	busy := []Busy{{
		Start: time.Date(2030, 6, 3, 7, 0, 0, 0, time.UTC),
		End:   time.Date(2030, 6, 3, 8, 0, 0, 0, time.UTC),
	}}

	slots := ComputeSlots(wh, localMonday, time.Hour, busy, past)
	require.Len(t, slots, 3)
	for _, s := range slots {
		if s.Start.Format("15:04") == "10:00" {
			assert.False(t, s.Available)
		}
	}
}

func TestToSlotInfo(t *testing.T) {
	slots := []Slot{
		{Start: at(9, 0), End: at(10, 0), Available: true},
		{Start: at(10, 0), End: at(11, 0), Available: false},
	}
	infos := ToSlotInfo(slots)
	require.Len(t, infos, 2)
	assert.Equal(t, SlotInfo{Start: "09:00", End: "10:00", Available: true}, infos[0])
	assert.Equal(t, SlotInfo{Start: "10:00", End: "11:00", Available: false}, infos[1])
}

func TestAvailableOnly(t *testing.T) {
	slots := []Slot{
		{Start: at(9, 0), End: at(10, 0), Available: true},
		{Start: at(9, 30), End: at(10, 30), Available: false},
		{Start: at(11, 0), End: at(12, 0), Available: true},
	}
	available := AvailableOnly(slots)
	require.Len(t, available, 2)
	for _, s := range available {
		assert.True(t, s.Available)
	}
}
