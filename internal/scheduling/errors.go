package scheduling

import "errors"

var (
	// ErrInvalidDuration is returned when duration_minutes is missing, non-numeric or out of range
	ErrInvalidDuration = errors.New("duration_minutes must be a positive integer no greater than 720")

	// ErrInvalidDaysAhead is returned when days_ahead is non-numeric or out of range
	ErrInvalidDaysAhead = errors.New("days_ahead must be a positive integer no greater than 90")

	// ErrInvalidDate is returned when a date is not formatted as YYYY-MM-DD
	ErrInvalidDate = errors.New("date must be formatted as YYYY-MM-DD")

	// ErrInvalidStartTime is returned when a start time is not formatted as HH:MM
	ErrInvalidStartTime = errors.New("start_time must be formatted as HH:MM")

	// ErrInvalidSettings is returned when scheduling settings fail validation
	ErrInvalidSettings = errors.New("invalid scheduling settings")

	// ErrSlotInPast is returned when a requested slot has already started
	ErrSlotInPast = errors.New("slot is in the past")

	// ErrOutsideBusinessHours is returned when a slot does not fit inside business hours
	ErrOutsideBusinessHours = errors.New("slot is outside business hours")

	// ErrSlotUnavailable is returned when a slot overlaps an existing appointment
	ErrSlotUnavailable = errors.New("slot overlaps an existing appointment")
)

// IsValidationError reports whether err is a caller-correctable input error.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidDuration,
		ErrInvalidDaysAhead,
		ErrInvalidDate,
		ErrInvalidStartTime,
		ErrInvalidSettings,
		ErrSlotInPast,
		ErrOutsideBusinessHours,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
