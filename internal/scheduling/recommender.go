package scheduling

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Booking is the slice of an appointment the recommender needs to detect overlaps.
type Booking struct {
	ID              string
	Date            string // YYYY-MM-DD in business local time
	StartTime       string // HH:MM in business local time
	DurationMinutes int
	Cancelled       bool
}

// Overlaps reports whether [startA, startA+durA) intersects [startB, startB+durB).
func Overlaps(startA, durA, startB, durB int) bool {
	return startA < startB+durB && startB < startA+durA
}

// Request is a recommendation query.
type Request struct {
	DurationMinutes int `json:"duration_minutes"`
	DaysAhead       int `json:"days_ahead"`
}

// Validate rejects non-positive or oversized values.
func (r Request) Validate() error {
	if r.DurationMinutes <= 0 || r.DurationMinutes > MaxDurationMinutes {
		return ErrInvalidDuration
	}
	if r.DaysAhead <= 0 || r.DaysAhead > MaxDaysAhead {
		return ErrInvalidDaysAhead
	}
	return nil
}

// ParseRequest reads duration_minutes and days_ahead from a query string.
// days_ahead defaults to 14 when omitted.
func ParseRequest(q url.Values) (Request, error) {
	req := Request{DaysAhead: DefaultDaysAhead}

	rawDuration := strings.TrimSpace(q.Get("duration_minutes"))
	if rawDuration == "" {
		rawDuration = strings.TrimSpace(q.Get("duration"))
	}
	if rawDuration == "" {
		return req, ErrInvalidDuration
	}
	duration, err := strconv.Atoi(rawDuration)
	if err != nil {
		return req, ErrInvalidDuration
	}
	req.DurationMinutes = duration

	if rawDays := strings.TrimSpace(q.Get("days_ahead")); rawDays != "" {
		days, err := strconv.Atoi(rawDays)
		if err != nil {
			return req, ErrInvalidDaysAhead
		}
		req.DaysAhead = days
	}

	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

// TimeSlot is one open start time.
type TimeSlot struct {
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	Label           string    `json:"label"`
	DateTime        time.Time `json:"datetime"`
	IsNextAvailable bool      `json:"is_next_available"`
}

// DateBucket groups the open slots of one day.
type DateBucket struct {
	Date          string     `json:"date"`
	FormattedDate string     `json:"formatted_date"`
	DayName       string     `json:"day_name"`
	IsToday       bool       `json:"is_today"`
	IsTomorrow    bool       `json:"is_tomorrow"`
	SlotCount     int        `json:"slot_count"`
	Slots         []TimeSlot `json:"slots"`
}

// Recommendation is the full recommender output.
type Recommendation struct {
	NextAvailable    *TimeSlot    `json:"next_available"`
	RecommendedTimes []TimeSlot   `json:"recommended_times"`
	AvailableDates   []DateBucket `json:"available_dates"`
	DurationMinutes  int          `json:"duration_minutes"`
	DaysAhead        int          `json:"days_ahead"`
	Timezone         string       `json:"timezone"`
}

type interval struct {
	start    int
	duration int
}

// busyIndex groups blocking bookings by date. Cancelled bookings and rows with
// an unreadable start time never block.
func busyIndex(bookings []Booking) map[string][]interval {
	index := make(map[string][]interval)
	for _, b := range bookings {
		if b.Cancelled || b.DurationMinutes <= 0 {
			continue
		}
		start, err := ParseClock(b.StartTime)
		if err != nil {
			continue
		}
		index[b.Date] = append(index[b.Date], interval{start: start, duration: b.DurationMinutes})
	}
	return index
}

func conflicts(busy []interval, start, duration int) bool {
	for _, iv := range busy {
		if Overlaps(start, duration, iv.start, iv.duration) {
			return true
		}
	}
	return false
}

// Recommend enumerates open slots from today through today+DaysAhead.
func Recommend(now time.Time, settings Settings, req Request, bookings []Booking) (*Recommendation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	loc := settings.Location()
	local := now.In(loc)
	step := settings.granularity()
	busy := busyIndex(bookings)

	rec := &Recommendation{
		RecommendedTimes: []TimeSlot{},
		AvailableDates:   []DateBucket{},
		DurationMinutes:  req.DurationMinutes,
		DaysAhead:        req.DaysAhead,
		Timezone:         loc.String(),
	}

	for offset := 0; offset <= req.DaysAhead; offset++ {
		day := time.Date(local.Year(), local.Month(), local.Day()+offset, 0, 0, 0, 0, loc)
		hours, open := settings.BusinessHours.HoursFor(day.Weekday())
		if !open {
			continue
		}
		openMin, closeMin, err := hours.Window()
		if err != nil {
			continue
		}

		date := day.Format(dateLayout)
		var slots []TimeSlot
		for start := openMin; start+req.DurationMinutes <= closeMin; start += step {
			at := time.Date(day.Year(), day.Month(), day.Day(), start/60, start%60, 0, 0, loc)
			if !at.After(now) {
				continue
			}
			if conflicts(busy[date], start, req.DurationMinutes) {
				continue
			}
			slots = append(slots, TimeSlot{
				Date:     date,
				Time:     FormatClock(start),
				Label:    formatSlotForDisplay(at),
				DateTime: at,
			})
		}
		if len(slots) == 0 {
			continue
		}

		rec.AvailableDates = append(rec.AvailableDates, DateBucket{
			Date:          date,
			FormattedDate: day.Format("January 2, 2006"),
			DayName:       day.Weekday().String(),
			IsToday:       offset == 0,
			IsTomorrow:    offset == 1,
			SlotCount:     len(slots),
			Slots:         slots,
		})
	}

	if len(rec.AvailableDates) == 0 {
		return rec, nil
	}

	rec.AvailableDates[0].Slots[0].IsNextAvailable = true
	next := rec.AvailableDates[0].Slots[0]
	rec.NextAvailable = &next

	var firstPerDay []TimeSlot
	for _, bucket := range rec.AvailableDates {
		firstPerDay = append(firstPerDay, bucket.Slots[0])
	}
	rec.RecommendedTimes = spreadSlotsAcrossDays(firstPerDay, settings.maxRecommendations(), 1)
	return rec, nil
}

// CheckSlot verifies a concrete date/start/duration is bookable right now.
// Starts need not align with the slot granularity.
func CheckSlot(now time.Time, settings Settings, date, startTime string, durationMinutes int, bookings []Booking) error {
	if durationMinutes <= 0 || durationMinutes > MaxDurationMinutes {
		return ErrInvalidDuration
	}
	loc := settings.Location()
	day, err := ParseDate(date, loc)
	if err != nil {
		return err
	}
	start, err := ParseClock(startTime)
	if err != nil {
		return err
	}

	at := time.Date(day.Year(), day.Month(), day.Day(), start/60, start%60, 0, 0, loc)
	if !at.After(now) {
		return ErrSlotInPast
	}

	hours, open := settings.BusinessHours.HoursFor(day.Weekday())
	if !open {
		return fmt.Errorf("%w: closed on %s", ErrOutsideBusinessHours, day.Weekday())
	}
	openMin, closeMin, err := hours.Window()
	if err != nil {
		return err
	}
	if start < openMin || start+durationMinutes > closeMin {
		return fmt.Errorf("%w: %s-%s", ErrOutsideBusinessHours, hours.Open, hours.Close)
	}

	if conflicts(busyIndex(bookings)[day.Format(dateLayout)], start, durationMinutes) {
		return ErrSlotUnavailable
	}
	return nil
}

// spreadSlotsAcrossDays picks up to maxPerDay slots from each day round-robin
// until total is reached, then sorts chronologically.
func spreadSlotsAcrossDays(slots []TimeSlot, total, maxPerDay int) []TimeSlot {
	type dayGroup struct {
		date  string
		slots []TimeSlot
	}
	var days []dayGroup
	dayMap := map[string]int{}
	for _, s := range slots {
		if idx, ok := dayMap[s.Date]; ok {
			days[idx].slots = append(days[idx].slots, s)
		} else {
			dayMap[s.Date] = len(days)
			days = append(days, dayGroup{date: s.Date, slots: []TimeSlot{s}})
		}
	}

	result := []TimeSlot{}
	for round := 0; round < maxPerDay && len(result) < total; round++ {
		for i := range days {
			if round < len(days[i].slots) && len(result) < total {
				result = append(result, days[i].slots[round])
			}
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].DateTime.Before(result[j].DateTime)
	})
	return result
}

func formatSlotForDisplay(t time.Time) string {
	// "Mon Feb 10 at 10:00 AM"
	return t.Format("Mon Jan 2 at 3:04 PM")
}
