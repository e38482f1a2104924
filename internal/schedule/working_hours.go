package schedule

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrValidation is returned for malformed working-hours input.
var ErrValidation = fmt.Errorf("invalid working hours")

// minutesPerDay bounds wall-clock interval values.
const minutesPerDay = 24 * 60

// Interval is a half-open [Start, End) wall-clock window, in minutes
// from midnight.
type Interval struct {
	Start int
	End   int
}

// ParseInterval builds an Interval from "HH:MM" strings.
func ParseInterval(start, end string) (Interval, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Interval{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Interval{}, err
	}
	return Interval{Start: s, End: e}, nil
}

// ParseClock parses "HH:MM" into minutes from midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: bad time %q", ErrValidation, s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("%w: bad hour in %q", ErrValidation, s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("%w: bad minute in %q", ErrValidation, s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: time %q out of range", ErrValidation, s)
	}
	return hour*60 + minute, nil
}

// FormatClock renders minutes from midnight as "HH:MM".
func FormatClock(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// StartClock returns the interval start as "HH:MM".
func (i Interval) StartClock() string { return FormatClock(i.Start) }

// EndClock returns the interval end as "HH:MM".
func (i Interval) EndClock() string { return FormatClock(i.End) }

// WorkingHours holds a master's recurring weekly availability plus
// ad-hoc day-off overrides. It performs no I/O; persistence belongs to
// the caller.
type WorkingHours struct {
	weekly      [7][]Interval // indexed Monday=0 .. Sunday=6
	weekdaysOff [7]bool
	daysOff     map[string]struct{} // ISO dates, YYYY-MM-DD
}

// NewWorkingHours returns an empty schedule (all days closed).
func NewWorkingHours() *WorkingHours {
	return &WorkingHours{daysOff: make(map[string]struct{})}
}

// DefaultWorkingHours returns the schedule assigned on onboarding:
// Monday through Friday 09:00-18:00, weekend off.
func DefaultWorkingHours() *WorkingHours {
	wh := NewWorkingHours()
	for wd := time.Monday; wd <= time.Friday; wd++ {
		_ = wh.SetWeeklyHours(wd, []Interval{{Start: 9 * 60, End: 18 * 60}})
	}
	return wh
}

func weekdayIndex(wd time.Weekday) int {
	// Monday-first, Sunday last.
	if wd == time.Sunday {
		return 6
	}
	return int(wd) - 1
}

// SetWeeklyHours replaces the interval list for a weekday. Intervals
// must be well-formed, sorted and disjoint; an empty list closes the
// weekday.
func (wh *WorkingHours) SetWeeklyHours(weekday time.Weekday, intervals []Interval) error {
	for i, iv := range intervals {
		if iv.Start < 0 || iv.End > minutesPerDay {
			return fmt.Errorf("%w: interval %s-%s outside day bounds", ErrValidation, iv.StartClock(), iv.EndClock())
		}
		if iv.Start >= iv.End {
			return fmt.Errorf("%w: interval %s-%s has start >= end", ErrValidation, iv.StartClock(), iv.EndClock())
		}
		if i > 0 && intervals[i-1].End > iv.Start {
			return fmt.Errorf("%w: intervals %s-%s and %s-%s overlap or are unsorted", ErrValidation,
				intervals[i-1].StartClock(), intervals[i-1].EndClock(), iv.StartClock(), iv.EndClock())
		}
	}
	idx := weekdayIndex(weekday)
	wh.weekly[idx] = append([]Interval(nil), intervals...)
	if len(intervals) > 0 {
		wh.weekdaysOff[idx] = false
	}
	return nil
}

// SetDaysOff marks whole weekdays off and replaces the set of specific
// dates overridden closed.
func (wh *WorkingHours) SetDaysOff(weekdaysOff []time.Weekday, dates []time.Time) {
	wh.weekdaysOff = [7]bool{}
	for _, wd := range weekdaysOff {
		wh.weekdaysOff[weekdayIndex(wd)] = true
	}
	wh.daysOff = make(map[string]struct{}, len(dates))
	for _, d := range dates {
		wh.daysOff[d.Format("2006-01-02")] = struct{}{}
	}
}

// IsDateFullyOff reports whether the date has no bookable time at all:
// a one-off closure, a weekday marked off, or a weekday with no
// intervals configured.
func (wh *WorkingHours) IsDateFullyOff(date time.Time) bool {
	if _, ok := wh.daysOff[date.Format("2006-01-02")]; ok {
		return true
	}
	idx := weekdayIndex(date.Weekday())
	return wh.weekdaysOff[idx] || len(wh.weekly[idx]) == 0
}

// IntervalsFor returns the open intervals effective on the date, or nil
// when the date is fully off.
func (wh *WorkingHours) IntervalsFor(date time.Time) []Interval {
	if wh.IsDateFullyOff(date) {
		return nil
	}
	return wh.weekly[weekdayIndex(date.Weekday())]
}

// Covers reports whether [startMin, endMin) fits entirely inside one of
// the date's open intervals. Minutes count from the date's midnight in
// the caller's chosen location.
func (wh *WorkingHours) Covers(date time.Time, startMin, endMin int) bool {
	for _, iv := range wh.IntervalsFor(date) {
		if startMin >= iv.Start && endMin <= iv.End {
			return true
		}
	}
	return false
}

// WeekdayIntervals returns the configured intervals for a weekday,
// ignoring day-off flags. Used by settings screens.
func (wh *WorkingHours) WeekdayIntervals(weekday time.Weekday) []Interval {
	return wh.weekly[weekdayIndex(weekday)]
}

// DaysOffDates returns the one-off closed dates in sorted ISO form.
func (wh *WorkingHours) DaysOffDates() []string {
	out := make([]string, 0, len(wh.daysOff))
	for d := range wh.daysOff {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// WeekdaysOff returns the weekdays flagged fully off.
func (wh *WorkingHours) WeekdaysOff() []time.Weekday {
	var out []time.Weekday
	for _, wd := range []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday} {
		if wh.weekdaysOff[weekdayIndex(wd)] {
			out = append(out, wd)
		}
	}
	return out
}

// ParseWeekdays converts lowercase english weekday names, rejecting
// unknown ones with ErrValidation.
func ParseWeekdays(names []string) ([]time.Weekday, error) {
	out := make([]time.Weekday, 0, len(names))
	for _, name := range names {
		wd, ok := weekdayByName(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown weekday %q", ErrValidation, name)
		}
		out = append(out, wd)
	}
	return out, nil
}

var weekdayNames = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

func weekdayByName(name string) (time.Weekday, bool) {
	switch strings.ToLower(name) {
	case "monday":
		return time.Monday, true
	case "tuesday":
		return time.Tuesday, true
	case "wednesday":
		return time.Wednesday, true
	case "thursday":
		return time.Thursday, true
	case "friday":
		return time.Friday, true
	case "saturday":
		return time.Saturday, true
	case "sunday":
		return time.Sunday, true
	}
	return 0, false
}

// MarshalJSON serializes to the persisted work-schedule shape: weekday
// name -> list of ["HH:MM","HH:MM"] pairs, plus day-off weekday names
// and ISO dates.
func (wh *WorkingHours) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 9)
	for i, name := range weekdayNames {
		if len(wh.weekly[i]) == 0 {
			continue
		}
		pairs := make([][2]string, 0, len(wh.weekly[i]))
		for _, iv := range wh.weekly[i] {
			pairs = append(pairs, [2]string{iv.StartClock(), iv.EndClock()})
		}
		out[name] = pairs
	}
	var daysOff []string
	for i, name := range weekdayNames {
		if wh.weekdaysOff[i] {
			daysOff = append(daysOff, name)
		}
	}
	if len(daysOff) > 0 {
		out["days_off"] = daysOff
	}
	if dates := wh.DaysOffDates(); len(dates) > 0 {
		out["days_off_dates"] = dates
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a schedule from the persisted shape. Malformed
// intervals fail with ErrValidation so corrupt records surface loudly.
func (wh *WorkingHours) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*wh = *NewWorkingHours()
	for key, val := range raw {
		switch key {
		case "days_off":
			var names []string
			if err := json.Unmarshal(val, &names); err != nil {
				return fmt.Errorf("%w: days_off: %v", ErrValidation, err)
			}
			for _, name := range names {
				if wd, ok := weekdayByName(name); ok {
					wh.weekdaysOff[weekdayIndex(wd)] = true
				}
			}
		case "days_off_dates":
			var dates []string
			if err := json.Unmarshal(val, &dates); err != nil {
				return fmt.Errorf("%w: days_off_dates: %v", ErrValidation, err)
			}
			for _, d := range dates {
				if _, err := time.Parse("2006-01-02", d); err != nil {
					return fmt.Errorf("%w: bad date %q", ErrValidation, d)
				}
				wh.daysOff[d] = struct{}{}
			}
		default:
			wd, ok := weekdayByName(key)
			if !ok {
				continue
			}
			var pairs [][2]string
			if err := json.Unmarshal(val, &pairs); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrValidation, key, err)
			}
			intervals := make([]Interval, 0, len(pairs))
			for _, p := range pairs {
				iv, err := ParseInterval(p[0], p[1])
				if err != nil {
					return err
				}
				intervals = append(intervals, iv)
			}
			sort.Slice(intervals, func(i, j int) bool { return intervals[i].Start < intervals[j].Start })
			if err := wh.SetWeeklyHours(wd, intervals); err != nil {
				return err
			}
		}
	}
	return nil
}

// Encode serializes the schedule to its persisted string form.
func (wh *WorkingHours) Encode() (string, error) {
	data, err := json.Marshal(wh)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeWorkingHours restores a schedule from its persisted string
// form. An empty string yields an empty schedule.
func DecodeWorkingHours(s string) (*WorkingHours, error) {
	wh := NewWorkingHours()
	if s == "" || s == "{}" {
		return wh, nil
	}
	if err := json.Unmarshal([]byte(s), wh); err != nil {
		return nil, err
	}
	return wh, nil
}
