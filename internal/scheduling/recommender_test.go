package scheduling

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

// Wednesday 2024-01-10 at the given local clock time.
func wednesdayAt(t *testing.T, hour, minute int) time.Time {
	return time.Date(2024, 1, 10, hour, minute, 0, 0, newYork(t))
}

func TestRecommend_NoAppointmentsStartsAtOpening(t *testing.T) {
	rec, err := Recommend(wednesdayAt(t, 8, 0), DefaultSettings(), Request{DurationMinutes: 60, DaysAhead: 14}, nil)
	require.NoError(t, err)
	require.NotNil(t, rec.NextAvailable)

	assert.Equal(t, "2024-01-10", rec.NextAvailable.Date)
	assert.Equal(t, "09:00", rec.NextAvailable.Time)
	assert.True(t, rec.NextAvailable.IsNextAvailable)
	assert.Equal(t, "Wed Jan 10 at 9:00 AM", rec.NextAvailable.Label)
	assert.True(t, rec.AvailableDates[0].IsToday)
	assert.True(t, rec.AvailableDates[0].Slots[0].IsNextAvailable)
	assert.Equal(t, "America/New_York", rec.Timezone)
}

func TestRecommend_LateInDayRollsToTomorrow(t *testing.T) {
	rec, err := Recommend(wednesdayAt(t, 16, 5), DefaultSettings(), Request{DurationMinutes: 60, DaysAhead: 14}, nil)
	require.NoError(t, err)
	require.NotNil(t, rec.NextAvailable)

	assert.Equal(t, "2024-01-11", rec.NextAvailable.Date)
	assert.Equal(t, "09:00", rec.NextAvailable.Time)
	assert.True(t, rec.AvailableDates[0].IsTomorrow)
	assert.False(t, rec.AvailableDates[0].IsToday)
}

func TestRecommend_SkipsStartsAtOrBeforeNow(t *testing.T) {
	rec, err := Recommend(wednesdayAt(t, 10, 0), DefaultSettings(), Request{DurationMinutes: 30, DaysAhead: 1}, nil)
	require.NoError(t, err)
	require.NotNil(t, rec.NextAvailable)
	assert.Equal(t, "10:30", rec.NextAvailable.Time)
}

func TestRecommend_ExistingAppointmentBlocksOverlappingStarts(t *testing.T) {
	bookings := []Booking{{ID: "a1", Date: "2024-01-10", StartTime: "10:00", DurationMinutes: 60}}
	rec, err := Recommend(wednesdayAt(t, 7, 0), DefaultSettings(), Request{DurationMinutes: 60, DaysAhead: 3}, bookings)
	require.NoError(t, err)

	times := slotTimes(rec, "2024-01-10")
	assert.Contains(t, times, "09:00")
	assert.Contains(t, times, "11:00")
	assert.NotContains(t, times, "09:30")
	assert.NotContains(t, times, "10:00")
	assert.NotContains(t, times, "10:30")

	// other days are unaffected
	assert.Contains(t, slotTimes(rec, "2024-01-11"), "10:00")
}

func TestRecommend_CancelledAppointmentDoesNotBlock(t *testing.T) {
	bookings := []Booking{{ID: "a1", Date: "2024-01-10", StartTime: "10:00", DurationMinutes: 60, Cancelled: true}}
	rec, err := Recommend(wednesdayAt(t, 7, 0), DefaultSettings(), Request{DurationMinutes: 60, DaysAhead: 1}, bookings)
	require.NoError(t, err)
	assert.Contains(t, slotTimes(rec, "2024-01-10"), "10:00")
}

func TestRecommend_LongMeetingNeverStartsAfterLastFit(t *testing.T) {
	rec, err := Recommend(wednesdayAt(t, 7, 0), DefaultSettings(), Request{DurationMinutes: 120, DaysAhead: 14}, nil)
	require.NoError(t, err)

	limit := 15 * 60
	for _, bucket := range rec.AvailableDates {
		last := bucket.Slots[len(bucket.Slots)-1]
		assert.Equal(t, "15:00", last.Time)
		for _, slot := range bucket.Slots {
			start, err := ParseClock(slot.Time)
			require.NoError(t, err)
			assert.LessOrEqual(t, start, limit, "slot %s %s", slot.Date, slot.Time)
		}
	}
}

func TestRecommend_Properties(t *testing.T) {
	bookings := []Booking{
		{Date: "2024-01-10", StartTime: "09:00", DurationMinutes: 90},
		{Date: "2024-01-11", StartTime: "13:15", DurationMinutes: 45},
		{Date: "2024-01-12", StartTime: "16:00", DurationMinutes: 60},
		{Date: "2024-01-15", StartTime: "11:00", DurationMinutes: 30, Cancelled: true},
	}
	settings := DefaultSettings()

	for _, duration := range []int{15, 30, 45, 60, 90, 120} {
		rec, err := Recommend(wednesdayAt(t, 8, 45), settings, Request{DurationMinutes: duration, DaysAhead: 14}, bookings)
		require.NoError(t, err)
		require.NotNil(t, rec.NextAvailable)

		for _, bucket := range rec.AvailableDates {
			assert.Equal(t, len(bucket.Slots), bucket.SlotCount)
			assert.NotEmpty(t, bucket.Slots)
			for _, slot := range bucket.Slots {
				start, err := ParseClock(slot.Time)
				require.NoError(t, err)
				assert.LessOrEqual(t, start+duration, 17*60, "slot must end by close")
				assert.False(t, rec.NextAvailable.DateTime.After(slot.DateTime), "next available must be earliest")
				for _, b := range bookings {
					if b.Cancelled || b.Date != slot.Date {
						continue
					}
					bStart, _ := ParseClock(b.StartTime)
					assert.False(t, Overlaps(start, duration, bStart, b.DurationMinutes),
						"slot %s %s overlaps booking at %s", slot.Date, slot.Time, b.StartTime)
				}
			}
		}
	}
}

func TestRecommend_SkipsClosedDays(t *testing.T) {
	rec, err := Recommend(wednesdayAt(t, 7, 0), DefaultSettings(), Request{DurationMinutes: 60, DaysAhead: 14}, nil)
	require.NoError(t, err)

	// Jan 10 through Jan 24 inclusive has 11 weekdays
	require.Len(t, rec.AvailableDates, 11)
	for _, bucket := range rec.AvailableDates {
		assert.NotEqual(t, "Saturday", bucket.DayName)
		assert.NotEqual(t, "Sunday", bucket.DayName)
	}
	assert.Equal(t, "2024-01-24", rec.AvailableDates[10].Date)
	assert.Equal(t, "January 24, 2024", rec.AvailableDates[10].FormattedDate)
	assert.Equal(t, 15, rec.AvailableDates[1].SlotCount)
}

func TestRecommend_NoConfiguredHoursOpensEveryDay(t *testing.T) {
	settings := DefaultSettings()
	settings.BusinessHours = BusinessHours{}

	rec, err := Recommend(wednesdayAt(t, 7, 0), settings, Request{DurationMinutes: 60, DaysAhead: 6}, nil)
	require.NoError(t, err)
	require.Len(t, rec.AvailableDates, 7)
	assert.Equal(t, "Saturday", rec.AvailableDates[3].DayName)
	assert.Equal(t, "09:00", rec.AvailableDates[3].Slots[0].Time)
}

func TestRecommend_FullyBookedDayIsOmitted(t *testing.T) {
	bookings := []Booking{{Date: "2024-01-11", StartTime: "09:00", DurationMinutes: 480}}
	rec, err := Recommend(wednesdayAt(t, 7, 0), DefaultSettings(), Request{DurationMinutes: 30, DaysAhead: 2}, bookings)
	require.NoError(t, err)

	var dates []string
	for _, bucket := range rec.AvailableDates {
		dates = append(dates, bucket.Date)
	}
	assert.Equal(t, []string{"2024-01-10", "2024-01-12"}, dates)
}

func TestRecommend_EmptyWindowIsNotAnError(t *testing.T) {
	// Saturday with a one-day window only sees the weekend
	now := time.Date(2024, 1, 13, 8, 0, 0, 0, newYork(t))
	rec, err := Recommend(now, DefaultSettings(), Request{DurationMinutes: 60, DaysAhead: 1}, nil)
	require.NoError(t, err)
	assert.Nil(t, rec.NextAvailable)
	assert.Empty(t, rec.RecommendedTimes)
	assert.NotNil(t, rec.RecommendedTimes)
	assert.Empty(t, rec.AvailableDates)
	assert.NotNil(t, rec.AvailableDates)
}

func TestRecommend_RecommendedTimesAreFirstSlotPerDay(t *testing.T) {
	rec, err := Recommend(wednesdayAt(t, 12, 10), DefaultSettings(), Request{DurationMinutes: 60, DaysAhead: 14}, nil)
	require.NoError(t, err)

	require.Len(t, rec.RecommendedTimes, DefaultMaxRecommendations)
	assert.Equal(t, *rec.NextAvailable, rec.RecommendedTimes[0])
	assert.Equal(t, "12:30", rec.RecommendedTimes[0].Time)
	for i, slot := range rec.RecommendedTimes {
		assert.Equal(t, rec.AvailableDates[i].Date, slot.Date)
		assert.Equal(t, rec.AvailableDates[i].Slots[0].Time, slot.Time)
		if i > 0 {
			assert.True(t, slot.DateTime.After(rec.RecommendedTimes[i-1].DateTime))
		}
	}
}

func TestRecommend_RecommendationsCappedByDays(t *testing.T) {
	settings := DefaultSettings()
	settings.MaxRecommendations = 10
	rec, err := Recommend(wednesdayAt(t, 7, 0), settings, Request{DurationMinutes: 60, DaysAhead: 2}, nil)
	require.NoError(t, err)
	assert.Len(t, rec.RecommendedTimes, 3)
}

func TestRecommend_Granularity(t *testing.T) {
	settings := DefaultSettings()
	settings.GranularityMinutes = 15
	rec, err := Recommend(wednesdayAt(t, 7, 0), settings, Request{DurationMinutes: 60, DaysAhead: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, 29, rec.AvailableDates[0].SlotCount)
	assert.Equal(t, "09:15", rec.AvailableDates[0].Slots[1].Time)
}

func TestRecommend_BookedSlotDisappears(t *testing.T) {
	now := wednesdayAt(t, 7, 0)
	req := Request{DurationMinutes: 60, DaysAhead: 5}
	first, err := Recommend(now, DefaultSettings(), req, nil)
	require.NoError(t, err)

	picked := first.RecommendedTimes[1]
	bookings := []Booking{{Date: picked.Date, StartTime: picked.Time, DurationMinutes: 60}}
	require.NoError(t, CheckSlot(now, DefaultSettings(), picked.Date, picked.Time, 60, nil))

	second, err := Recommend(now, DefaultSettings(), req, bookings)
	require.NoError(t, err)
	assert.NotContains(t, slotTimes(second, picked.Date), picked.Time)
	assert.ErrorIs(t, CheckSlot(now, DefaultSettings(), picked.Date, picked.Time, 60, bookings), ErrSlotUnavailable)
}

func TestRecommend_InvalidRequest(t *testing.T) {
	_, err := Recommend(wednesdayAt(t, 7, 0), DefaultSettings(), Request{DurationMinutes: 0, DaysAhead: 14}, nil)
	assert.ErrorIs(t, err, ErrInvalidDuration)

	_, err = Recommend(wednesdayAt(t, 7, 0), DefaultSettings(), Request{DurationMinutes: 30, DaysAhead: -1}, nil)
	assert.ErrorIs(t, err, ErrInvalidDaysAhead)
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    Request
		wantErr error
	}{
		{"defaults days ahead", "duration_minutes=60", Request{DurationMinutes: 60, DaysAhead: 14}, nil},
		{"explicit days", "duration_minutes=45&days_ahead=7", Request{DurationMinutes: 45, DaysAhead: 7}, nil},
		{"short alias", "duration=30", Request{DurationMinutes: 30, DaysAhead: 14}, nil},
		{"missing duration", "days_ahead=7", Request{}, ErrInvalidDuration},
		{"non numeric duration", "duration_minutes=abc", Request{}, ErrInvalidDuration},
		{"negative duration", "duration_minutes=-30", Request{}, ErrInvalidDuration},
		{"zero days", "duration_minutes=30&days_ahead=0", Request{}, ErrInvalidDaysAhead},
		{"non numeric days", "duration_minutes=30&days_ahead=soon", Request{}, ErrInvalidDaysAhead},
		{"too many days", "duration_minutes=30&days_ahead=91", Request{}, ErrInvalidDaysAhead},
		{"too long", "duration_minutes=721", Request{}, ErrInvalidDuration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			require.NoError(t, err)
			got, err := ParseRequest(q)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.True(t, IsValidationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckSlot(t *testing.T) {
	now := wednesdayAt(t, 9, 30)
	bookings := []Booking{{Date: "2024-01-11", StartTime: "10:00", DurationMinutes: 60}}

	tests := []struct {
		name     string
		date     string
		start    string
		duration int
		wantErr  error
	}{
		{"open slot", "2024-01-11", "11:00", 60, nil},
		{"unaligned start allowed", "2024-01-11", "14:10", 20, nil},
		{"already started", "2024-01-10", "09:30", 30, ErrSlotInPast},
		{"weekend", "2024-01-13", "10:00", 30, ErrOutsideBusinessHours},
		{"before open", "2024-01-11", "08:30", 60, ErrOutsideBusinessHours},
		{"runs past close", "2024-01-11", "16:30", 60, ErrOutsideBusinessHours},
		{"overlaps", "2024-01-11", "10:30", 60, ErrSlotUnavailable},
		{"ends where booking starts", "2024-01-11", "09:00", 60, nil},
		{"bad date", "01/11/2024", "10:00", 60, ErrInvalidDate},
		{"bad start", "2024-01-11", "10am", 60, ErrInvalidStartTime},
		{"bad duration", "2024-01-11", "10:00", 0, ErrInvalidDuration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSlot(now, DefaultSettings(), tt.date, tt.start, tt.duration, bookings)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestOverlaps(t *testing.T) {
	assert.True(t, Overlaps(600, 60, 630, 30))
	assert.True(t, Overlaps(630, 30, 600, 60))
	assert.False(t, Overlaps(540, 60, 600, 60))
	assert.False(t, Overlaps(660, 30, 600, 60))
}

func TestSettingsValidate(t *testing.T) {
	assert.NoError(t, DefaultSettings().Validate())

	bad := DefaultSettings()
	bad.Timezone = "Mars/Olympus"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidSettings)

	bad = DefaultSettings()
	bad.GranularityMinutes = 1
	assert.ErrorIs(t, bad.Validate(), ErrInvalidSettings)

	bad = DefaultSettings()
	bad.BusinessHours.Monday = &DayHours{Open: "17:00", Close: "09:00"}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidSettings)

	bad = DefaultSettings()
	bad.BusinessHours.Friday = &DayHours{Open: "nine", Close: "17:00"}
	assert.Error(t, bad.Validate())

	assert.Equal(t, time.UTC, Settings{}.Location())
}

func slotTimes(rec *Recommendation, date string) []string {
	var out []string
	for _, bucket := range rec.AvailableDates {
		if bucket.Date != date {
			continue
		}
		for _, slot := range bucket.Slots {
			out = append(out, slot.Time)
		}
	}
	return out
}
