package appointments

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoflowlabs/consultancy-crm/internal/customers"
	"github.com/autoflowlabs/consultancy-crm/internal/events"
	"github.com/autoflowlabs/consultancy-crm/internal/scheduling"
)

var newYork = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

type fixture struct {
	svc      *Service
	repo     *InMemoryRepository
	customer *customers.Customer
	booked   []events.AppointmentBookedV1
	changed  []events.AppointmentStatusChangedV1
	moved    []events.AppointmentRescheduledV1
	mu       sync.Mutex
}

// newFixture pins the clock to Wednesday 2024-01-10 08:00 New York time.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	customerRepo := customers.NewInMemoryRepository()
	customer, err := customerRepo.Create(ctx, &customers.CreateCustomerRequest{Name: "Riley Chen", Email: "riley@example.com"})
	require.NoError(t, err)

	f := &fixture{repo: NewInMemoryRepository(), customer: customer}
	bus := events.NewBus(nil)
	events.Subscribe(bus, func(_ context.Context, evt events.AppointmentBookedV1) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.booked = append(f.booked, evt)
		return nil
	})
	events.Subscribe(bus, func(_ context.Context, evt events.AppointmentStatusChangedV1) error {
		f.changed = append(f.changed, evt)
		return nil
	})
	events.Subscribe(bus, func(_ context.Context, evt events.AppointmentRescheduledV1) error {
		f.moved = append(f.moved, evt)
		return nil
	})

	settings := scheduling.NewMemorySettingsStore(scheduling.DefaultSettings())
	f.svc = NewService(f.repo, settings, customerRepo, bus, nil, nil)
	f.svc.now = func() time.Time { return time.Date(2024, 1, 10, 8, 0, 0, 0, newYork) }
	return f
}

func (f *fixture) book(date, start string, duration int) (*Appointment, error) {
	return f.svc.Book(context.Background(), CreateAppointmentRequest{
		CustomerID:      f.customer.ID,
		Date:            date,
		StartTime:       start,
		DurationMinutes: duration,
	})
}

func TestBookPublishesAndDefaults(t *testing.T) {
	f := newFixture(t)

	appt, err := f.book("2024-01-10", "10:00", 60)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, MeetingVideoCall, appt.MeetingType)
	assert.Equal(t, "Consultation", appt.Title)

	require.Len(t, f.booked, 1)
	evt := f.booked[0]
	assert.Equal(t, appt.ID, evt.AppointmentID)
	assert.Equal(t, "riley@example.com", evt.CustomerEmail)
	assert.Equal(t, time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC), evt.StartsAt)
}

func TestBookRejectsOverlapWithConflict(t *testing.T) {
	f := newFixture(t)

	_, err := f.book("2024-01-10", "10:00", 60)
	require.NoError(t, err)

	for _, start := range []string{"09:30", "10:00", "10:30"} {
		_, err := f.book("2024-01-10", start, 60)
		assert.ErrorIs(t, err, ErrSlotConflict, start)
	}

	_, err = f.book("2024-01-10", "11:00", 60)
	assert.NoError(t, err, "back-to-back booking should fit")
	assert.Len(t, f.booked, 2)
}

func TestBookValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		req  CreateAppointmentRequest
		want error
	}{
		{"missing customer", CreateAppointmentRequest{Date: "2024-01-10", StartTime: "10:00", DurationMinutes: 30}, ErrMissingCustomer},
		{"unknown customer", CreateAppointmentRequest{CustomerID: "nope", Date: "2024-01-10", StartTime: "10:00", DurationMinutes: 30}, ErrUnknownCustomer},
		{"bad date", CreateAppointmentRequest{CustomerID: f.customer.ID, Date: "01/10/2024", StartTime: "10:00", DurationMinutes: 30}, scheduling.ErrInvalidDate},
		{"bad time", CreateAppointmentRequest{CustomerID: f.customer.ID, Date: "2024-01-10", StartTime: "10am", DurationMinutes: 30}, scheduling.ErrInvalidStartTime},
		{"zero duration", CreateAppointmentRequest{CustomerID: f.customer.ID, Date: "2024-01-10", StartTime: "10:00"}, scheduling.ErrInvalidDuration},
		{"past", CreateAppointmentRequest{CustomerID: f.customer.ID, Date: "2024-01-09", StartTime: "10:00", DurationMinutes: 30}, scheduling.ErrSlotInPast},
		{"weekend", CreateAppointmentRequest{CustomerID: f.customer.ID, Date: "2024-01-13", StartTime: "10:00", DurationMinutes: 30}, scheduling.ErrOutsideBusinessHours},
		{"past close", CreateAppointmentRequest{CustomerID: f.customer.ID, Date: "2024-01-10", StartTime: "16:30", DurationMinutes: 60}, scheduling.ErrOutsideBusinessHours},
		{"bad meeting type", CreateAppointmentRequest{CustomerID: f.customer.ID, Date: "2024-01-10", StartTime: "10:00", DurationMinutes: 30, MeetingType: "carrier_pigeon"}, ErrInvalidMeetingType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Book(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsValidationError(err))
		})
	}
	assert.Empty(t, f.booked)
}

func TestConcurrentBookingsSameSlot(t *testing.T) {
	f := newFixture(t)

	const attempts = 12
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.book("2024-01-11", "14:00", 45)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, conflicts int
	for err := range results {
		switch err {
		case nil:
			ok++
		case ErrSlotConflict:
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, attempts-1, conflicts)
}

func TestRecommendExcludesBookedAndReopensCancelled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := scheduling.Request{DurationMinutes: 60, DaysAhead: 14}

	before, err := f.svc.Recommend(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, before.NextAvailable)
	assert.Equal(t, "2024-01-10", before.NextAvailable.Date)
	assert.Equal(t, "09:00", before.NextAvailable.Time)

	appt, err := f.book("2024-01-10", "09:00", 60)
	require.NoError(t, err)

	after, err := f.svc.Recommend(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "10:00", after.NextAvailable.Time)
	for _, slot := range after.AvailableDates[0].Slots {
		start, _ := scheduling.ParseClock(slot.Time)
		assert.False(t, scheduling.Overlaps(start, 60, 9*60, 60), "slot %s overlaps booking", slot.Time)
	}

	_, err = f.svc.Cancel(ctx, appt.ID)
	require.NoError(t, err)

	reopened, err := f.svc.Recommend(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "09:00", reopened.NextAvailable.Time)
}

func TestRecommendInvalidRequest(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Recommend(context.Background(), scheduling.Request{DurationMinutes: 0, DaysAhead: 14})
	assert.ErrorIs(t, err, scheduling.ErrInvalidDuration)
	_, err = f.svc.Recommend(context.Background(), scheduling.Request{DurationMinutes: 30, DaysAhead: 91})
	assert.ErrorIs(t, err, scheduling.ErrInvalidDaysAhead)
}

type failingRepo struct {
	*InMemoryRepository
}

func (failingRepo) ListBetween(context.Context, string, string) ([]*Appointment, error) {
	return nil, assert.AnError
}

func TestRecommendTreatsUnreadableAppointmentsAsFree(t *testing.T) {
	f := newFixture(t)
	svc := NewService(failingRepo{NewInMemoryRepository()}, nil, nil, nil, nil, nil)
	svc.now = f.svc.now

	rec, err := svc.Recommend(context.Background(), scheduling.Request{DurationMinutes: 60, DaysAhead: 1})
	require.NoError(t, err)
	require.NotNil(t, rec.NextAvailable)
	assert.Equal(t, "09:00", rec.NextAvailable.Time)
}

func TestChangeStatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.book("2024-01-12", "13:00", 30)
	require.NoError(t, err)

	confirmed, err := f.svc.ChangeStatus(ctx, appt.ID, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	_, err = f.svc.ChangeStatus(ctx, appt.ID, StatusScheduled)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.ChangeStatus(ctx, appt.ID, StatusCompleted)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "completed is terminal")

	_, err = f.svc.ChangeStatus(ctx, appt.ID, "archived")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = f.svc.ChangeStatus(ctx, "missing", StatusConfirmed)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	require.Len(t, f.changed, 2)
	assert.Equal(t, "scheduled", f.changed[0].From)
	assert.Equal(t, "confirmed", f.changed[0].To)
	assert.Equal(t, "completed", f.changed[1].To)
}

func TestStatusTransitionTable(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusScheduled, StatusConfirmed, true},
		{StatusScheduled, StatusNoShow, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusScheduled, false},
		{StatusCancelled, StatusScheduled, false},
		{StatusNoShow, StatusCompleted, false},
		{StatusCompleted, StatusCancelled, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestReschedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.book("2024-01-11", "10:00", 60)
	require.NoError(t, err)
	second, err := f.book("2024-01-11", "13:00", 60)
	require.NoError(t, err)

	_, err = f.svc.Reschedule(ctx, second.ID, RescheduleRequest{Date: "2024-01-11", StartTime: "10:30"})
	assert.ErrorIs(t, err, ErrSlotConflict)

	// overlapping its own current slot is fine
	moved, err := f.svc.Reschedule(ctx, first.ID, RescheduleRequest{Date: "2024-01-11", StartTime: "10:30"})
	require.NoError(t, err)
	assert.Equal(t, "10:30", moved.StartTime)
	assert.Equal(t, 60, moved.DurationMinutes)

	moved, err = f.svc.Reschedule(ctx, first.ID, RescheduleRequest{Date: "2024-01-15", StartTime: "9:00", DurationMinutes: 90})
	require.NoError(t, err)
	assert.Equal(t, "09:00", moved.StartTime)
	assert.Equal(t, 90, moved.DurationMinutes)

	require.Len(t, f.moved, 2)
	assert.Equal(t, "2024-01-11", f.moved[1].PreviousDate)
	assert.Equal(t, "10:30", f.moved[1].PreviousStart)

	_, err = f.svc.Cancel(ctx, second.ID)
	require.NoError(t, err)
	_, err = f.svc.Reschedule(ctx, second.ID, RescheduleRequest{Date: "2024-01-16", StartTime: "10:00"})
	assert.ErrorIs(t, err, ErrNotRescheduleable)
}

func TestScheduleGroupsByDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.book("2024-01-11", "15:00", 30)
	require.NoError(t, err)
	_, err = f.book("2024-01-11", "09:00", 30)
	require.NoError(t, err)
	_, err = f.book("2024-01-16", "11:00", 30)
	require.NoError(t, err)

	days, err := f.svc.Schedule(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, days, 7)
	assert.Equal(t, "2024-01-10", days[0].Date)
	assert.Equal(t, "Wednesday", days[0].DayName)
	assert.Empty(t, days[0].Appointments)
	require.Len(t, days[1].Appointments, 2)
	assert.Equal(t, "09:00", days[1].Appointments[0].StartTime)
	assert.Len(t, days[6].Appointments, 1)

	_, err = f.svc.Schedule(ctx, "2024-01-12", "2024-01-11")
	assert.ErrorIs(t, err, ErrInvalidRange)
}
