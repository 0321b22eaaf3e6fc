package appointments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoflowlabs/consultancy-crm/internal/auth"
	"github.com/autoflowlabs/consultancy-crm/internal/http/httputil"
	"github.com/autoflowlabs/consultancy-crm/internal/scheduling"
)

func asCustomer(r *http.Request, customerID string) *http.Request {
	return r.WithContext(auth.WithPrincipal(r.Context(), auth.Principal{AccountID: "acct-" + customerID, Role: auth.RoleCustomer, CustomerID: customerID}))
}

func asAdmin(r *http.Request) *http.Request {
	return r.WithContext(auth.WithPrincipal(r.Context(), auth.Principal{AccountID: "admin", Role: auth.RoleAdmin}))
}

func withAppointmentID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("appointmentID", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestRecommendationsHandler(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, nil)

	rec := httptest.NewRecorder()
	h.Recommendations(rec, httptest.NewRequest(http.MethodGet, "/api/appointments/recommendations?duration_minutes=60", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body scheduling.Recommendation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.NextAvailable)
	assert.True(t, body.NextAvailable.IsNextAvailable)
	assert.Equal(t, 14, body.DaysAhead)
	assert.LessOrEqual(t, len(body.RecommendedTimes), 5)

	for _, query := range []string{"", "?duration_minutes=abc", "?duration_minutes=-5", "?duration_minutes=30&days_ahead=0", "?duration_minutes=721"} {
		rec := httptest.NewRecorder()
		h.Recommendations(rec, httptest.NewRequest(http.MethodGet, "/api/appointments/recommendations"+query, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestRecommendationsHandlerEmptyWindow(t *testing.T) {
	f := newFixture(t)
	closed := scheduling.DefaultSettings()
	closed.BusinessHours = scheduling.BusinessHours{Sunday: &scheduling.DayHours{Open: "09:00", Close: "17:00"}}
	f.svc.settings = scheduling.NewMemorySettingsStore(closed)
	h := NewHandler(f.svc, nil)

	// Wednesday through Friday has no Sunday in it.
	rec := httptest.NewRecorder()
	h.Recommendations(rec, httptest.NewRequest(http.MethodGet, "/api/appointments/recommendations?duration_minutes=30&days_ahead=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `null`, string(mustField(t, rec.Body.Bytes(), "next_available")))
	assert.JSONEq(t, `[]`, string(mustField(t, rec.Body.Bytes(), "available_dates")))
	assert.JSONEq(t, `[]`, string(mustField(t, rec.Body.Bytes(), "recommended_times")))
}

func mustField(t *testing.T, body []byte, key string) json.RawMessage {
	t.Helper()
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &fields))
	raw, ok := fields[key]
	require.True(t, ok, "missing %s", key)
	return raw
}

func TestBookHandlerCustomerAndConflict(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, nil)
	body := `{"date":"2024-01-11","start_time":"10:00","duration_minutes":60,"meeting_type":"phone_call","customer_id":"someone-else"}`

	rec := httptest.NewRecorder()
	h.Book(rec, asCustomer(httptest.NewRequest(http.MethodPost, "/api/appointments", strings.NewReader(body)), f.customer.ID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, f.customer.ID, created.CustomerID, "customers cannot book for others")
	assert.Equal(t, MeetingPhoneCall, created.MeetingType)

	rec = httptest.NewRecorder()
	h.Book(rec, asCustomer(httptest.NewRequest(http.MethodPost, "/api/appointments", strings.NewReader(body)), f.customer.ID))
	require.Equal(t, http.StatusConflict, rec.Code)
	var errBody httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Equal(t, "slot_conflict", errBody.Code)

	rec = httptest.NewRecorder()
	h.Book(rec, asCustomer(httptest.NewRequest(http.MethodPost, "/api/appointments", strings.NewReader(`{"date":"2024-01-11","start_time":"18:00","duration_minutes":60}`)), f.customer.ID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Book(rec, httptest.NewRequest(http.MethodPost, "/api/appointments", strings.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBookHandlerAdminNamesCustomer(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, nil)

	rec := httptest.NewRecorder()
	h.Book(rec, asAdmin(httptest.NewRequest(http.MethodPost, "/api/appointments", strings.NewReader(`{"date":"2024-01-11","start_time":"10:00","duration_minutes":30}`))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	body := `{"customer_id":"` + f.customer.ID + `","title":"Automation audit","date":"2024-01-11","start_time":"10:00","duration_minutes":30,"meeting_type":"in_person"}`
	h.Book(rec, asAdmin(httptest.NewRequest(http.MethodPost, "/api/appointments", strings.NewReader(body))))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"title":"Automation audit"`)
}

func TestPortalMineAndCancelOwn(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, nil)

	mine, err := f.book("2024-01-11", "10:00", 30)
	require.NoError(t, err)
	other, err := f.repo.CreateIfAvailable(context.Background(), &Appointment{CustomerID: "other-customer", Date: "2024-01-11", StartTime: "11:00", DurationMinutes: 30, MeetingType: MeetingVideoCall}, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.Mine(rec, asCustomer(httptest.NewRequest(http.MethodGet, "/api/portal/appointments", nil), f.customer.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Appointments []*Appointment `json:"appointments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Appointments, 1)
	assert.Equal(t, mine.ID, listed.Appointments[0].ID)

	rec = httptest.NewRecorder()
	h.CancelOwn(rec, withAppointmentID(asCustomer(httptest.NewRequest(http.MethodPost, "/", nil), f.customer.ID), other.ID))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	h.CancelOwn(rec, withAppointmentID(asCustomer(httptest.NewRequest(http.MethodPost, "/", nil), f.customer.ID), mine.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"cancelled"`)

	rec = httptest.NewRecorder()
	h.CancelOwn(rec, withAppointmentID(asCustomer(httptest.NewRequest(http.MethodPost, "/", nil), f.customer.ID), mine.ID))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAdminLifecycleEndpoints(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, nil)

	appt, err := f.book("2024-01-12", "14:00", 60)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.UpdateStatus(rec, withAppointmentID(httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"status":"confirmed"}`)), appt.ID))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.UpdateStatus(rec, withAppointmentID(httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"status":"scheduled"}`)), appt.ID))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_transition")

	rec = httptest.NewRecorder()
	h.Update(rec, withAppointmentID(httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"notes":"bring process map"}`)), appt.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bring process map")

	rec = httptest.NewRecorder()
	h.Reschedule(rec, withAppointmentID(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"date":"2024-01-12","start_time":"16:30"}`)), appt.ID))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "60 minutes from 16:30 runs past close")

	rec = httptest.NewRecorder()
	h.Reschedule(rec, withAppointmentID(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"date":"2024-01-12","start_time":"15:00"}`)), appt.ID))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/admin/appointments?from=2024-01-12&to=2024-01-12&status=confirmed", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"start_time":"15:00"`)

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/admin/appointments?status=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Cancel(rec, withAppointmentID(httptest.NewRequest(http.MethodPost, "/", nil), appt.ID))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.Get(rec, withAppointmentID(httptest.NewRequest(http.MethodGet, "/", nil), "missing"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.Schedule(rec, httptest.NewRequest(http.MethodGet, "/api/admin/schedule?from=2024-01-12&to=2024-01-12", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"day_name":"Friday"`)

	rec = httptest.NewRecorder()
	h.Schedule(rec, httptest.NewRequest(http.MethodGet, "/api/admin/schedule?from=bad", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
