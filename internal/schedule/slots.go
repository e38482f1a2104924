package schedule

import "time"

// SlotStep is the global slot granularity. Service durations are
// validated upstream to be positive multiples of it, and candidates
// advance by the full service duration so generated slots never
// overlap each other.
const SlotStep = 30 * time.Minute

// Slot is a candidate booking window on a given date. Unavailable
// slots are kept in the output so callers can render them disabled.
type Slot struct {
	Start     time.Time
	End       time.Time
	Available bool
}

// Busy is an occupied interval, half-open [Start, End).
type Busy struct {
	Start time.Time
	End   time.Time
}

// SlotInfo is a simplified representation for keyboards and the Mini
// App.
type SlotInfo struct {
	Start     string `json:"start"` // "10:00"
	End       string `json:"end"`   // "11:00"
	Available bool   `json:"available"`
}

// ComputeSlots generates the ordered slot list for one date. The date
// must carry the master's timezone; now is compared as an absolute
// instant, so its zone does not matter. busy must already be filtered
// to slot-blocking appointments. A fully-off day yields an empty list;
// that is a valid result, not an error.
func ComputeSlots(wh *WorkingHours, date time.Time, duration time.Duration, busy []Busy, now time.Time) []Slot {
	if duration <= 0 {
		return nil
	}
	intervals := wh.IntervalsFor(date)
	if len(intervals) == 0 {
		return nil
	}

	midnight := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())

	var slots []Slot
	for _, iv := range intervals {
		intervalEnd := midnight.Add(time.Duration(iv.End) * time.Minute)
		for cursor := midnight.Add(time.Duration(iv.Start) * time.Minute); !cursor.Add(duration).After(intervalEnd); cursor = cursor.Add(duration) {
			start := cursor
			end := cursor.Add(duration)

			available := !start.Before(now)
			if available {
				for _, b := range busy {
					if start.Before(b.End) && end.After(b.Start) {
						available = false
						break
					}
				}
			}

			slots = append(slots, Slot{Start: start, End: end, Available: available})
		}
	}
	return slots
}

// ToSlotInfo converts slots for UI rendering.
func ToSlotInfo(slots []Slot) []SlotInfo {
	result := make([]SlotInfo, len(slots))
	for i, s := range slots {
		result[i] = SlotInfo{
			Start:     s.Start.Format("15:04"),
			End:       s.End.Format("15:04"),
			Available: s.Available,
		}
	}
	return result
}

// AvailableOnly filters out unavailable slots.
func AvailableOnly(slots []Slot) []Slot {
	var available []Slot
	for _, s := range slots {
		if s.Available {
			available = append(available, s)
		}
	}
	return available
}
