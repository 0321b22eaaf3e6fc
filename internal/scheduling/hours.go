// Package scheduling computes open appointment slots from business hours and
// existing bookings.
package scheduling

import (
	"fmt"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// DefaultDayHours is the window used for every day when no business hours are configured.
var DefaultDayHours = DayHours{Open: "09:00", Close: "17:00"}

// DayHours represents the opening hours for a single day.
// Nil means the business is closed that day.
type DayHours struct {
	Open  string `json:"open"`  // "09:00" in 24-hour format
	Close string `json:"close"` // "17:00" in 24-hour format
}

// Window returns the opening and closing minute-of-day.
func (d DayHours) Window() (openMin, closeMin int, err error) {
	openMin, err = ParseClock(d.Open)
	if err != nil {
		return 0, 0, err
	}
	closeMin, err = ParseClock(d.Close)
	if err != nil {
		return 0, 0, err
	}
	if closeMin <= openMin {
		return 0, 0, fmt.Errorf("%w: close %s must be after open %s", ErrInvalidSettings, d.Close, d.Open)
	}
	return openMin, closeMin, nil
}

// BusinessHours maps day names to their hours.
type BusinessHours struct {
	Monday    *DayHours `json:"monday,omitempty"`
	Tuesday   *DayHours `json:"tuesday,omitempty"`
	Wednesday *DayHours `json:"wednesday,omitempty"`
	Thursday  *DayHours `json:"thursday,omitempty"`
	Friday    *DayHours `json:"friday,omitempty"`
	Saturday  *DayHours `json:"saturday,omitempty"`
	Sunday    *DayHours `json:"sunday,omitempty"`
}

// WeekdayHours returns Monday to Friday 09:00-17:00 with weekends closed.
func WeekdayHours() BusinessHours {
	return BusinessHours{
		Monday:    &DayHours{Open: "09:00", Close: "17:00"},
		Tuesday:   &DayHours{Open: "09:00", Close: "17:00"},
		Wednesday: &DayHours{Open: "09:00", Close: "17:00"},
		Thursday:  &DayHours{Open: "09:00", Close: "17:00"},
		Friday:    &DayHours{Open: "09:00", Close: "17:00"},
	}
}

// GetHoursForDay returns the hours for a given weekday (0=Sunday, 6=Saturday).
func (b *BusinessHours) GetHoursForDay(weekday time.Weekday) *DayHours {
	switch weekday {
	case time.Sunday:
		return b.Sunday
	case time.Monday:
		return b.Monday
	case time.Tuesday:
		return b.Tuesday
	case time.Wednesday:
		return b.Wednesday
	case time.Thursday:
		return b.Thursday
	case time.Friday:
		return b.Friday
	case time.Saturday:
		return b.Saturday
	default:
		return nil
	}
}

// HasAnyHours returns true if at least one day has business hours configured.
func (b *BusinessHours) HasAnyHours() bool {
	return b.Sunday != nil || b.Monday != nil || b.Tuesday != nil ||
		b.Wednesday != nil || b.Thursday != nil || b.Friday != nil || b.Saturday != nil
}

// HoursFor resolves the effective window for a weekday. When nothing is
// configured at all every day is open with DefaultDayHours.
func (b *BusinessHours) HoursFor(weekday time.Weekday) (DayHours, bool) {
	if !b.HasAnyHours() {
		return DefaultDayHours, true
	}
	hours := b.GetHoursForDay(weekday)
	if hours == nil {
		return DayHours{}, false
	}
	return *hours, true
}

func (b *BusinessHours) validate() error {
	for day := time.Sunday; day <= time.Saturday; day++ {
		hours := b.GetHoursForDay(day)
		if hours == nil {
			continue
		}
		if _, _, err := hours.Window(); err != nil {
			return fmt.Errorf("%s: %w", day, err)
		}
	}
	return nil
}

// ParseClock converts "HH:MM" into minutes after midnight.
func ParseClock(value string) (int, error) {
	t, err := time.Parse(clockLayout, value)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidStartTime, value)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock converts minutes after midnight into "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseDate parses a YYYY-MM-DD date at midnight in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return t, nil
}
