package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoflowlabs/consultancy-crm/internal/appointments"
	"github.com/autoflowlabs/consultancy-crm/internal/auth"
	"github.com/autoflowlabs/consultancy-crm/internal/billing"
	"github.com/autoflowlabs/consultancy-crm/internal/chat"
	"github.com/autoflowlabs/consultancy-crm/internal/customers"
	"github.com/autoflowlabs/consultancy-crm/internal/dashboard"
	"github.com/autoflowlabs/consultancy-crm/internal/events"
	"github.com/autoflowlabs/consultancy-crm/internal/observability/metrics"
	"github.com/autoflowlabs/consultancy-crm/internal/scheduling"
	"github.com/autoflowlabs/consultancy-crm/pkg/logging"
)

type routerFixture struct {
	handler    http.Handler
	tokens     *auth.Tokens
	adminToken string
}

func newRouterFixture(t *testing.T, checks map[string]HealthCheck) *routerFixture {
	t.Helper()
	logger := logging.NewWithOptions(logging.Options{Level: "error", Output: &bytes.Buffer{}})
	reg := prometheus.NewRegistry()
	bus := events.NewBus(logger)

	customerRepo := customers.NewInMemoryRepository()
	customerSvc := customers.NewService(customerRepo, bus, nil, logger)
	settings := scheduling.NewMemorySettingsStore(scheduling.DefaultSettings())
	apptRepo := appointments.NewInMemoryRepository()
	apptSvc := appointments.NewService(apptRepo, settings, customerRepo, bus, nil, logger)
	chatSvc := chat.NewService(chat.NewMemoryStore(), customerSvc, nil, nil, logger)
	payments := billing.NewInMemoryRepository()
	checkout := billing.NewCheckoutService(payments, billing.FakeSessionCreator{BaseURL: "http://localhost:8080"}, customerRepo, billing.CheckoutConfig{}, nil, logger)

	accounts := auth.NewInMemoryAccountRepository()
	tokens := auth.NewTokens("router-test-secret", time.Hour)
	admin, err := auth.EnsureAdmin(context.Background(), accounts, "admin@autoflow.example", "correct-horse")
	require.NoError(t, err)
	adminToken, _, err := tokens.Issue(admin)
	require.NoError(t, err)

	cfg := &Config{
		Logger:             logger,
		Tokens:             tokens,
		AuthHandler:        auth.NewHandler(accounts, tokens, customerSvc, logger),
		CustomersHandler:   customers.NewHandler(customerSvc, logger),
		AppointmentHandler: appointments.NewHandler(apptSvc, logger),
		SettingsHandler:    scheduling.NewSettingsHandler(settings, logger),
		ChatHandler:        chat.NewHandler(chatSvc, nil, logger),
		BillingHandler:     billing.NewHandler(checkout, logger),
		FakeCheckout:       billing.NewFakeCheckoutHandler(payments, bus, "", nil, logger),
		DashboardHandler:   dashboard.NewHandler(dashboard.NewRepositorySource(customerRepo, apptRepo, payments), nil, nil, "usd", logger),
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		HTTPMetrics:        metrics.NewHTTPMetrics(reg),
		HealthChecks:       checks,
		CORSAllowedOrigins: []string{"https://portal.autoflow.example"},
	}
	return &routerFixture{handler: New(cfg), tokens: tokens, adminToken: adminToken}
}

func (f *routerFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestRouterHealthEndpoint(t *testing.T) {
	f := newRouterFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	f = newRouterFixture(t, map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("dial tcp: refused") },
	})
	rec = f.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
	assert.Contains(t, rec.Body.String(), `"postgres":"ok"`)
}

func TestRouterPublicEndpoints(t *testing.T) {
	f := newRouterFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/contact", "", map[string]string{
		"name": "Jo Park", "email": "jo@example.com", "message": "Can you automate invoicing?",
	})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/billing/packages", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/chat/sessions", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var session struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	rec = f.do(t, http.MethodPost, "/api/chat/sessions/"+session.ID+"/messages", "", map[string]string{"text": "Jo Park"})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRouterRoleGuards(t *testing.T) {
	f := newRouterFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/admin/customers", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/admin/customers", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Sam Ortiz", "email": "sam@example.com", "password": "long-enough-pw",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var registered auth.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &registered))
	customerToken := registered.Token

	rec = f.do(t, http.MethodGet, "/api/admin/customers", customerToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/portal/me", customerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sam@example.com")

	rec = f.do(t, http.MethodGet, "/api/portal/me", f.adminToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "admins have no portal profile")

	rec = f.do(t, http.MethodGet, "/api/admin/customers", f.adminToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/appointments/recommendations?duration_minutes=60", customerToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRouterCheckoutThroughFakeProvider(t *testing.T) {
	f := newRouterFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Sam Ortiz", "email": "sam@example.com", "password": "long-enough-pw",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var registered auth.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &registered))

	rec = f.do(t, http.MethodPost, "/api/portal/billing/checkout", registered.Token, map[string]string{"package_id": "audit"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var checkout struct {
		PaymentID   string `json:"payment_id"`
		CheckoutURL string `json:"checkout_url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &checkout))
	require.True(t, strings.HasPrefix(checkout.CheckoutURL, "http://localhost:8080/billing/fake-checkout/"))

	rec = f.do(t, http.MethodPost, "/billing/fake-checkout/"+checkout.PaymentID+"/complete", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/admin/dashboard", f.adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_cents":49900`)
}

func TestRouterMetricsAndCORS(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.do(t, http.MethodGet, "/api/billing/packages", "", nil)

	rec := f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `autoflow_http_requests_total{method="GET",route="/api/billing/packages",status="200"} 1`)

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "https://portal.autoflow.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://portal.autoflow.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
