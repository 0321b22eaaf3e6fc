package appointments

import (
	"strings"
	"time"

	"github.com/autoflowlabs/consultancy-crm/internal/scheduling"
)

// MeetingType is how a consultation is held.
type MeetingType string

const (
	MeetingVideoCall MeetingType = "video_call"
	MeetingPhoneCall MeetingType = "phone_call"
	MeetingInPerson  MeetingType = "in_person"
	MeetingGroup     MeetingType = "group"
)

func (m MeetingType) Valid() bool {
	switch m {
	case MeetingVideoCall, MeetingPhoneCall, MeetingInPerson, MeetingGroup:
		return true
	}
	return false
}

// Status is the appointment lifecycle state.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusScheduled: {StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow},
}

// CanTransitionTo reports whether s may move to next. Completed, cancelled
// and no_show are terminal.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Active reports whether the appointment still occupies its slot.
func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

// Appointment is a booked consultation.
type Appointment struct {
	ID              string      `json:"id"`
	CustomerID      string      `json:"customer_id"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Date            string      `json:"date"`
	StartTime       string      `json:"start_time"`
	DurationMinutes int         `json:"duration_minutes"`
	MeetingType     MeetingType `json:"meeting_type"`
	Status          Status      `json:"status"`
	Notes           string      `json:"notes"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Booking projects the appointment onto the recommender's read model.
func (a *Appointment) Booking() scheduling.Booking {
	return scheduling.Booking{
		ID:              a.ID,
		Date:            a.Date,
		StartTime:       a.StartTime,
		DurationMinutes: a.DurationMinutes,
		Cancelled:       a.Status == StatusCancelled,
	}
}

// StartsAt resolves the wall-clock start in loc.
func (a *Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	day, err := scheduling.ParseDate(a.Date, loc)
	if err != nil {
		return time.Time{}, err
	}
	start, err := scheduling.ParseClock(a.StartTime)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), start/60, start%60, 0, 0, loc), nil
}

const (
	defaultTitle   = "Consultation"
	maxTitleLength = 200
)

// CreateAppointmentRequest is the booking payload. Customers book for
// themselves, so CustomerID is filled from the session for them.
type CreateAppointmentRequest struct {
	CustomerID      string      `json:"customer_id"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Date            string      `json:"date"`
	StartTime       string      `json:"start_time"`
	DurationMinutes int         `json:"duration_minutes"`
	MeetingType     MeetingType `json:"meeting_type"`
	Notes           string      `json:"notes"`
}

// Validate normalizes the request and checks its shape. Business hours and
// conflicts are checked later against live data.
func (r *CreateAppointmentRequest) Validate() error {
	r.CustomerID = strings.TrimSpace(r.CustomerID)
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	r.Notes = strings.TrimSpace(r.Notes)
	r.Date = strings.TrimSpace(r.Date)
	r.StartTime = strings.TrimSpace(r.StartTime)

	if r.CustomerID == "" {
		return ErrMissingCustomer
	}
	if r.Title == "" {
		r.Title = defaultTitle
	}
	if len(r.Title) > maxTitleLength {
		return ErrInvalidTitle
	}
	if r.DurationMinutes <= 0 || r.DurationMinutes > scheduling.MaxDurationMinutes {
		return scheduling.ErrInvalidDuration
	}
	if _, err := scheduling.ParseDate(r.Date, time.UTC); err != nil {
		return err
	}
	start, err := scheduling.ParseClock(r.StartTime)
	if err != nil {
		return err
	}
	r.StartTime = scheduling.FormatClock(start)
	if r.MeetingType == "" {
		r.MeetingType = MeetingVideoCall
	}
	if !r.MeetingType.Valid() {
		return ErrInvalidMeetingType
	}
	return nil
}

// UpdateAppointmentRequest edits descriptive fields. Time changes go through
// Reschedule and status changes through the status endpoint.
type UpdateAppointmentRequest struct {
	Title       *string      `json:"title,omitempty"`
	Description *string      `json:"description,omitempty"`
	MeetingType *MeetingType `json:"meeting_type,omitempty"`
	Notes       *string      `json:"notes,omitempty"`
}

// Apply copies the set fields onto a.
func (r *UpdateAppointmentRequest) Apply(a *Appointment) error {
	if r.Title != nil {
		title := strings.TrimSpace(*r.Title)
		if title == "" {
			title = defaultTitle
		}
		if len(title) > maxTitleLength {
			return ErrInvalidTitle
		}
		a.Title = title
	}
	if r.Description != nil {
		a.Description = strings.TrimSpace(*r.Description)
	}
	if r.MeetingType != nil {
		if !r.MeetingType.Valid() {
			return ErrInvalidMeetingType
		}
		a.MeetingType = *r.MeetingType
	}
	if r.Notes != nil {
		a.Notes = strings.TrimSpace(*r.Notes)
	}
	return nil
}

// RescheduleRequest moves an appointment. A zero duration keeps the current one.
type RescheduleRequest struct {
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
}

// StatusRequest is the body of a status change.
type StatusRequest struct {
	Status Status `json:"status"`
}

// ListFilter narrows appointment listings. From and To are inclusive dates.
type ListFilter struct {
	From       string
	To         string
	CustomerID string
	Status     Status
	Limit      int
	Offset     int
}

// DaySchedule is one day of the admin schedule view.
type DaySchedule struct {
	Date         string         `json:"date"`
	DayName      string         `json:"day_name"`
	Appointments []*Appointment `json:"appointments"`
}
