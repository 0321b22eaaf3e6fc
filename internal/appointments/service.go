package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/autoflowlabs/consultancy-crm/internal/customers"
	"github.com/autoflowlabs/consultancy-crm/internal/events"
	"github.com/autoflowlabs/consultancy-crm/internal/observability/metrics"
	"github.com/autoflowlabs/consultancy-crm/internal/scheduling"
	"github.com/autoflowlabs/consultancy-crm/pkg/logging"
)

var tracer = otel.Tracer("autoflow.appointments")

const (
	dateLayout          = "2006-01-02"
	defaultScheduleDays = 7
	maxScheduleDays     = 92
)

// CustomerLookup resolves the customer an appointment is booked for.
type CustomerLookup interface {
	Get(ctx context.Context, id string) (*customers.Customer, error)
}

// Service coordinates recommendations, bookings and lifecycle changes.
type Service struct {
	repo      Repository
	settings  scheduling.SettingsStore
	customers CustomerLookup
	publisher events.Publisher
	metrics   *metrics.SchedulingMetrics
	logger    *logging.Logger
	now       func() time.Time
}

func NewService(repo Repository, settings scheduling.SettingsStore, lookup CustomerLookup, publisher events.Publisher, m *metrics.SchedulingMetrics, logger *logging.Logger) *Service {
	if repo == nil {
		panic("appointments: repository required")
	}
	if settings == nil {
		settings = scheduling.NewMemorySettingsStore(scheduling.DefaultSettings())
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:      repo,
		settings:  settings,
		customers: lookup,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) loadSettings(ctx context.Context) scheduling.Settings {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		s.logger.Warn("failed to load scheduling settings, using defaults", "error", err)
		return scheduling.DefaultSettings()
	}
	return settings
}

func toBookings(list []*Appointment) []scheduling.Booking {
	bookings := make([]scheduling.Booking, 0, len(list))
	for _, a := range list {
		bookings = append(bookings, a.Booking())
	}
	return bookings
}

// Recommend computes open slots for the request window. When appointments
// cannot be loaded the window is treated as free.
func (s *Service) Recommend(ctx context.Context, req scheduling.Request) (*scheduling.Recommendation, error) {
	ctx, span := tracer.Start(ctx, "appointments.recommend")
	defer span.End()
	span.SetAttributes(
		attribute.Int("scheduling.duration_minutes", req.DurationMinutes),
		attribute.Int("scheduling.days_ahead", req.DaysAhead),
	)
	started := time.Now()

	if err := req.Validate(); err != nil {
		s.metrics.ObserveRecommendation("invalid", time.Since(started).Seconds(), 0)
		return nil, err
	}

	settings := s.loadSettings(ctx)
	now := s.now().In(settings.Location())
	from := now.Format(dateLayout)
	to := now.AddDate(0, 0, req.DaysAhead).Format(dateLayout)

	existing, err := s.repo.ListBetween(ctx, from, to)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("failed to load appointments for recommendations", "from", from, "to", to, "error", err)
		existing = nil
	}

	rec, err := scheduling.Recommend(now, settings, req, toBookings(existing))
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveRecommendation("invalid", time.Since(started).Seconds(), 0)
		return nil, err
	}

	slots := 0
	for _, bucket := range rec.AvailableDates {
		slots += bucket.SlotCount
	}
	outcome := "ok"
	if rec.NextAvailable == nil {
		outcome = "empty"
	}
	span.SetAttributes(attribute.Int("scheduling.open_slots", slots))
	s.metrics.ObserveRecommendation(outcome, time.Since(started).Seconds(), slots)
	return rec, nil
}

// Book creates an appointment after re-checking the slot under the
// repository's write lock. A slot taken in the meantime yields ErrSlotConflict.
func (s *Service) Book(ctx context.Context, req CreateAppointmentRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.book")
	defer span.End()

	if err := req.Validate(); err != nil {
		s.metrics.ObserveBooking("invalid", string(req.MeetingType))
		return nil, err
	}
	span.SetAttributes(
		attribute.String("appointment.date", req.Date),
		attribute.String("appointment.start_time", req.StartTime),
		attribute.Int("appointment.duration_minutes", req.DurationMinutes),
	)

	customer, err := s.lookupCustomer(ctx, req.CustomerID)
	if err != nil {
		s.metrics.ObserveBooking("invalid", string(req.MeetingType))
		return nil, err
	}

	settings := s.loadSettings(ctx)
	now := s.now()
	check := func(existing []scheduling.Booking) error {
		return scheduling.CheckSlot(now, settings, req.Date, req.StartTime, req.DurationMinutes, existing)
	}

	created, err := s.repo.CreateIfAvailable(ctx, &Appointment{
		CustomerID:      req.CustomerID,
		Title:           req.Title,
		Description:     req.Description,
		Date:            req.Date,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		MeetingType:     req.MeetingType,
		Status:          StatusScheduled,
		Notes:           req.Notes,
	}, check)
	if err != nil {
		switch {
		case errors.Is(err, scheduling.ErrSlotUnavailable):
			s.metrics.ObserveBooking("conflict", string(req.MeetingType))
			s.logger.Info("booking rejected, slot taken", "date", req.Date, "start_time", req.StartTime, "customer_id", req.CustomerID)
			return nil, ErrSlotConflict
		case IsValidationError(err):
			s.metrics.ObserveBooking("invalid", string(req.MeetingType))
			return nil, err
		default:
			span.RecordError(err)
			s.metrics.ObserveBooking("error", string(req.MeetingType))
			return nil, err
		}
	}

	s.metrics.ObserveBooking("booked", string(created.MeetingType))
	s.logger.Info("appointment booked",
		"appointment_id", created.ID,
		"customer_id", created.CustomerID,
		"date", created.Date,
		"start_time", created.StartTime,
	)

	startsAt, _ := created.StartsAt(settings.Location())
	evt := events.AppointmentBookedV1{
		AppointmentID:   created.ID,
		CustomerID:      created.CustomerID,
		Title:           created.Title,
		MeetingType:     string(created.MeetingType),
		Date:            created.Date,
		StartTime:       created.StartTime,
		DurationMinutes: created.DurationMinutes,
		StartsAt:        startsAt.UTC(),
		BookedAt:        created.CreatedAt,
	}
	if customer != nil {
		evt.CustomerName = customer.Name
		evt.CustomerEmail = customer.Email
	}
	s.publish(ctx, created.ID, evt)
	return created, nil
}

func (s *Service) lookupCustomer(ctx context.Context, id string) (*customers.Customer, error) {
	if s.customers == nil {
		return nil, nil
	}
	customer, err := s.customers.Get(ctx, id)
	if errors.Is(err, customers.ErrCustomerNotFound) {
		return nil, ErrUnknownCustomer
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: lookup customer: %w", err)
	}
	return customer, nil
}

func (s *Service) publish(ctx context.Context, appointmentID string, evt events.CanonicalEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, "appointment:"+appointmentID, evt); err != nil {
		s.logger.Error("failed to publish appointment event", "appointment_id", appointmentID, "event_type", evt.EventType(), "error", err)
	}
}

func (s *Service) Get(ctx context.Context, id string) (*Appointment, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Appointment, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	if filter.From != "" && filter.To != "" && filter.From > filter.To {
		return nil, ErrInvalidRange
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) Update(ctx context.Context, id string, req *UpdateAppointmentRequest) (*Appointment, error) {
	return s.repo.Update(ctx, id, req)
}

// ChangeStatus moves an appointment along its lifecycle. Cancelling frees
// the slot for future recommendations.
func (s *Service) ChangeStatus(ctx context.Context, id string, next Status) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.change_status")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", id), attribute.String("appointment.status", string(next)))

	if !next.Valid() {
		return nil, ErrInvalidStatus
	}
	prev, updated, err := s.repo.UpdateStatus(ctx, id, next)
	if err != nil {
		if !errors.Is(err, ErrAppointmentNotFound) && !errors.Is(err, ErrInvalidTransition) {
			span.RecordError(err)
		}
		return nil, err
	}

	s.metrics.ObserveStatusChange(string(prev), string(next))
	s.logger.Info("appointment status changed", "appointment_id", id, "from", prev, "to", next)
	s.publish(ctx, id, events.AppointmentStatusChangedV1{
		AppointmentID: id,
		CustomerID:    updated.CustomerID,
		From:          string(prev),
		To:            string(next),
		ChangedAt:     updated.UpdatedAt,
	})
	return updated, nil
}

func (s *Service) Cancel(ctx context.Context, id string) (*Appointment, error) {
	return s.ChangeStatus(ctx, id, StatusCancelled)
}

// Reschedule moves an active appointment to a new slot with the same checks
// as a fresh booking.
func (s *Service) Reschedule(ctx context.Context, id string, req RescheduleRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.reschedule")
	defer span.End()

	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	duration := req.DurationMinutes
	if duration == 0 {
		duration = existing.DurationMinutes
	}
	if duration < 0 || duration > scheduling.MaxDurationMinutes {
		return nil, scheduling.ErrInvalidDuration
	}
	if _, err := scheduling.ParseDate(req.Date, time.UTC); err != nil {
		return nil, err
	}
	start, err := scheduling.ParseClock(req.StartTime)
	if err != nil {
		return nil, err
	}
	startTime := scheduling.FormatClock(start)

	settings := s.loadSettings(ctx)
	now := s.now()
	check := func(others []scheduling.Booking) error {
		return scheduling.CheckSlot(now, settings, req.Date, startTime, duration, others)
	}

	previous, updated, err := s.repo.Reschedule(ctx, id, req.Date, startTime, duration, check)
	if err != nil {
		if errors.Is(err, scheduling.ErrSlotUnavailable) {
			s.metrics.ObserveBooking("conflict", string(existing.MeetingType))
			return nil, ErrSlotConflict
		}
		if !IsValidationError(err) && !errors.Is(err, ErrAppointmentNotFound) {
			span.RecordError(err)
		}
		return nil, err
	}

	s.metrics.ObserveBooking("rescheduled", string(updated.MeetingType))
	s.logger.Info("appointment rescheduled",
		"appointment_id", id,
		"from_date", previous.Date,
		"from_start", previous.StartTime,
		"date", updated.Date,
		"start_time", updated.StartTime,
	)
	s.publish(ctx, id, events.AppointmentRescheduledV1{
		AppointmentID:   id,
		CustomerID:      updated.CustomerID,
		PreviousDate:    previous.Date,
		PreviousStart:   previous.StartTime,
		Date:            updated.Date,
		StartTime:       updated.StartTime,
		DurationMinutes: updated.DurationMinutes,
		RescheduledAt:   updated.UpdatedAt,
	})
	return updated, nil
}

// Schedule returns one entry per day from..to inclusive, including days
// without appointments. Empty bounds default to the next seven days.
func (s *Service) Schedule(ctx context.Context, from, to string) ([]DaySchedule, error) {
	settings := s.loadSettings(ctx)
	loc := settings.Location()

	var start time.Time
	if from == "" {
		today := s.now().In(loc)
		start = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc)
	} else {
		parsed, err := scheduling.ParseDate(from, loc)
		if err != nil {
			return nil, err
		}
		start = parsed
	}
	end := start.AddDate(0, 0, defaultScheduleDays-1)
	if to != "" {
		parsed, err := scheduling.ParseDate(to, loc)
		if err != nil {
			return nil, err
		}
		end = parsed
	}
	if end.Before(start) || end.After(start.AddDate(0, 0, maxScheduleDays)) {
		return nil, ErrInvalidRange
	}

	list, err := s.repo.ListBetween(ctx, start.Format(dateLayout), end.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	byDate := make(map[string][]*Appointment)
	for _, a := range list {
		byDate[a.Date] = append(byDate[a.Date], a)
	}

	var days []DaySchedule
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		date := day.Format(dateLayout)
		appts := byDate[date]
		if appts == nil {
			appts = []*Appointment{}
		}
		days = append(days, DaySchedule{Date: date, DayName: day.Weekday().String(), Appointments: appts})
	}
	return days, nil
}
