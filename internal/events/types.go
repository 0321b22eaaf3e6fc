package events

import "time"

const (
	TypeAppointmentBooked        = "appointment.booked.v1"
	TypeAppointmentStatusChanged = "appointment.status_changed.v1"
	TypeAppointmentRescheduled   = "appointment.rescheduled.v1"
	TypeLeadCaptured             = "lead.captured.v1"
	TypePaymentSucceeded         = "payment.succeeded.v1"
)

type AppointmentBookedV1 struct {
	AppointmentID   string    `json:"appointment_id"`
	CustomerID      string    `json:"customer_id"`
	CustomerName    string    `json:"customer_name,omitempty"`
	CustomerEmail   string    `json:"customer_email,omitempty"`
	Title           string    `json:"title"`
	MeetingType     string    `json:"meeting_type"`
	Date            string    `json:"date"`
	StartTime       string    `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	StartsAt        time.Time `json:"starts_at"`
	BookedAt        time.Time `json:"booked_at"`
}

func (AppointmentBookedV1) EventType() string { return TypeAppointmentBooked }

type AppointmentStatusChangedV1 struct {
	AppointmentID string    `json:"appointment_id"`
	CustomerID    string    `json:"customer_id"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	ChangedAt     time.Time `json:"changed_at"`
}

func (AppointmentStatusChangedV1) EventType() string { return TypeAppointmentStatusChanged }

type AppointmentRescheduledV1 struct {
	AppointmentID   string    `json:"appointment_id"`
	CustomerID      string    `json:"customer_id"`
	PreviousDate    string    `json:"previous_date"`
	PreviousStart   string    `json:"previous_start_time"`
	Date            string    `json:"date"`
	StartTime       string    `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	RescheduledAt   time.Time `json:"rescheduled_at"`
}

func (AppointmentRescheduledV1) EventType() string { return TypeAppointmentRescheduled }

type LeadCapturedV1 struct {
	CustomerID string    `json:"customer_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone,omitempty"`
	Company    string    `json:"company,omitempty"`
	Source     string    `json:"source"`
	Message    string    `json:"message,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

func (LeadCapturedV1) EventType() string { return TypeLeadCaptured }

type PaymentSucceededV1 struct {
	PaymentID   string    `json:"payment_id"`
	CustomerID  string    `json:"customer_id"`
	PackageID   string    `json:"package_id"`
	Provider    string    `json:"provider"`
	ProviderRef string    `json:"provider_ref"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (PaymentSucceededV1) EventType() string { return TypePaymentSucceeded }
