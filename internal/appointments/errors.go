package appointments

import (
	"errors"

	"github.com/autoflowlabs/consultancy-crm/internal/scheduling"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotConflict        = errors.New("the requested time is no longer available")
	ErrInvalidTransition   = errors.New("status transition not allowed")
	ErrMissingCustomer     = errors.New("customer_id is required")
	ErrUnknownCustomer     = errors.New("customer does not exist")
	ErrInvalidMeetingType  = errors.New("meeting_type must be one of video_call, phone_call, in_person, group")
	ErrInvalidStatus       = errors.New("status must be one of scheduled, confirmed, completed, cancelled, no_show")
	ErrInvalidTitle        = errors.New("title must be 200 characters or fewer")
	ErrInvalidRange        = errors.New("from must be on or before to")
	ErrNotRescheduleable   = errors.New("only scheduled or confirmed appointments can be rescheduled")
	ErrForbidden           = errors.New("appointment belongs to another customer")
)

// IsValidationError reports whether err should surface as a 400.
func IsValidationError(err error) bool {
	if scheduling.IsValidationError(err) {
		return true
	}
	for _, target := range []error{
		ErrMissingCustomer,
		ErrUnknownCustomer,
		ErrInvalidMeetingType,
		ErrInvalidStatus,
		ErrInvalidTitle,
		ErrInvalidRange,
		ErrNotRescheduleable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
