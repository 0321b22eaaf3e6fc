// Package main runs end-to-end scenarios against a running API.
//
// Scenarios cover the contact form, customer self-registration, slot
// recommendation and booking, the chat widget lead capture, the fake
// checkout flow and the admin dashboard.
//
// Usage:
//
//	API_BASE_URL=... ADMIN_EMAIL=... ADMIN_PASSWORD=... go run scripts/e2e/run_e2e.go [scenario-name]
//
// The checkout scenario needs the API running without STRIPE_SECRET_KEY so the
// fake checkout page is mounted.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

var (
	apiBase    string
	adminToken string
	client     = &http.Client{
		Timeout: 15 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	runID = time.Now().UnixNano()
)

// ---------------------------------------------------------------------------
// Scenario definition
// ---------------------------------------------------------------------------

type scenario struct {
	Name string
	Fn   func(t *T)
}

// T is a lightweight test context for a single scenario.
type T struct {
	passed int
	failed int
	name   string
}

func (t *T) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
	} else {
		fmt.Printf("    FAIL: %s\n", name)
		t.failed++
	}
}

func (t *T) fatalf(format string, args ...interface{}) {
	fmt.Printf("    FATAL: "+format+"\n", args...)
	t.failed++
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type response struct {
	Status int
	Body   []byte
	Header http.Header
}

func (r response) decode(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

func call(method, path, token string, payload interface{}) (response, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return response{}, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, apiBase+path, body)
	if err != nil {
		return response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, err
	}
	return response{Status: resp.StatusCode, Body: raw, Header: resp.Header}, nil
}

func login(email, password string) (string, error) {
	resp, err := call(http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}
	if resp.Status != http.StatusOK {
		return "", fmt.Errorf("login returned %d: %s", resp.Status, string(resp.Body))
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := resp.decode(&out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// registerCustomer creates a fresh portal account and returns its token.
func registerCustomer(label string) (string, string, error) {
	email := fmt.Sprintf("e2e-%s-%d@example.com", label, runID)
	resp, err := call(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name":     "E2E " + label,
		"email":    email,
		"password": "e2e-password-123",
	})
	if err != nil {
		return "", "", err
	}
	if resp.Status >= 300 {
		return "", "", fmt.Errorf("register returned %d: %s", resp.Status, string(resp.Body))
	}
	var out struct {
		Token   string `json:"token"`
		Account struct {
			CustomerID string `json:"customer_id"`
		} `json:"account"`
	}
	if err := resp.decode(&out); err != nil {
		return "", "", err
	}
	return out.Token, out.Account.CustomerID, nil
}

type slot struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

func recommend(token string, duration int) ([]slot, error) {
	q := url.Values{"duration_minutes": {fmt.Sprint(duration)}, "days_ahead": {"14"}}
	resp, err := call(http.MethodGet, "/api/appointments/recommendations?"+q.Encode(), token, nil)
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusOK {
		return nil, fmt.Errorf("recommendations returned %d: %s", resp.Status, string(resp.Body))
	}
	var out struct {
		RecommendedTimes []slot `json:"recommended_times"`
	}
	if err := resp.decode(&out); err != nil {
		return nil, err
	}
	return out.RecommendedTimes, nil
}

func containsSlot(slots []slot, s slot) bool {
	for _, candidate := range slots {
		if candidate == s {
			return true
		}
	}
	return false
}

func setup() error {
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	token, err := login(email, password)
	if err != nil {
		return fmt.Errorf("admin login: %w", err)
	}
	adminToken = token
	return nil
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func scenarioHealth(t *T) {
	resp, err := call(http.MethodGet, "/health", "", nil)
	if err != nil {
		t.fatalf("health: %v", err)
		return
	}
	t.check("health returns 200", resp.Status == http.StatusOK)
	t.check("request id echoed", resp.Header.Get("X-Request-ID") != "")
}

func scenarioContactLead(t *T) {
	email := fmt.Sprintf("e2e-lead-%d@example.com", runID)
	resp, err := call(http.MethodPost, "/api/contact", "", map[string]string{
		"name":    "E2E Lead",
		"email":   email,
		"company": "Acme Widgets",
		"message": "We want to automate our onboarding paperwork.",
	})
	if err != nil {
		t.fatalf("contact: %v", err)
		return
	}
	t.check("contact form accepted", resp.Status == http.StatusCreated)

	resp, err = call(http.MethodGet, "/api/admin/customers?search="+url.QueryEscape(email), adminToken, nil)
	if err != nil {
		t.fatalf("list customers: %v", err)
		return
	}
	t.check("admin sees the lead", resp.Status == http.StatusOK && strings.Contains(string(resp.Body), email))
}

func scenarioBookAndCancel(t *T) {
	token, customerID, err := registerCustomer("booking")
	if err != nil {
		t.fatalf("%v", err)
		return
	}
	t.check("registered customer has a profile", customerID != "")

	slots, err := recommend(token, 60)
	if err != nil {
		t.fatalf("%v", err)
		return
	}
	if len(slots) == 0 {
		t.fatalf("no recommended slots returned")
		return
	}
	picked := slots[0]

	resp, err := call(http.MethodPost, "/api/appointments", token, map[string]interface{}{
		"title":            "Automation strategy call",
		"date":             picked.Date,
		"start_time":       picked.Time,
		"duration_minutes": 60,
		"meeting_type":     "video_call",
	})
	if err != nil {
		t.fatalf("book: %v", err)
		return
	}
	t.check("booking created", resp.Status == http.StatusCreated)
	var appt struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	_ = resp.decode(&appt)
	t.check("booking is scheduled", appt.Status == "scheduled")

	after, err := recommend(token, 60)
	if err != nil {
		t.fatalf("%v", err)
		return
	}
	t.check("booked slot no longer recommended", !containsSlot(after, picked))

	resp, err = call(http.MethodPost, "/api/appointments", token, map[string]interface{}{
		"title":            "Double booking",
		"date":             picked.Date,
		"start_time":       picked.Time,
		"duration_minutes": 30,
	})
	if err != nil {
		t.fatalf("double book: %v", err)
		return
	}
	t.check("overlapping booking rejected", resp.Status == http.StatusConflict)

	resp, err = call(http.MethodPost, "/api/portal/appointments/"+appt.ID+"/cancel", token, nil)
	if err != nil {
		t.fatalf("cancel: %v", err)
		return
	}
	t.check("customer can cancel", resp.Status == http.StatusOK)

	freed, err := recommend(token, 60)
	if err != nil {
		t.fatalf("%v", err)
		return
	}
	t.check("cancelled slot is offered again", containsSlot(freed, picked))
}

func scenarioChatLead(t *T) {
	resp, err := call(http.MethodPost, "/api/chat/sessions", "", nil)
	if err != nil || resp.Status != http.StatusCreated {
		t.fatalf("start chat: %v (%d)", err, resp.Status)
		return
	}
	var session struct {
		ID string `json:"id"`
	}
	_ = resp.decode(&session)

	email := fmt.Sprintf("e2e-chat-%d@example.com", runID)
	for _, text := range []string{"Riley Chen", email, "Invoice processing automation"} {
		resp, err = call(http.MethodPost, "/api/chat/sessions/"+session.ID+"/messages", "", map[string]string{"text": text})
		if err != nil {
			t.fatalf("send %q: %v", text, err)
			return
		}
		t.check(fmt.Sprintf("message %q accepted", text), resp.Status == http.StatusOK)
	}

	resp, err = call(http.MethodGet, "/api/chat/sessions/"+session.ID, "", nil)
	if err != nil {
		t.fatalf("get chat: %v", err)
		return
	}
	var got struct {
		Stage      string `json:"stage"`
		CustomerID string `json:"customer_id"`
	}
	_ = resp.decode(&got)
	t.check("chat reached completion", got.Stage == "complete")
	t.check("chat captured a lead", got.CustomerID != "")
}

func scenarioFakeCheckout(t *T) {
	token, _, err := registerCustomer("billing")
	if err != nil {
		t.fatalf("%v", err)
		return
	}
	resp, err := call(http.MethodPost, "/api/portal/billing/checkout", token, map[string]string{"package_id": "audit"})
	if err != nil {
		t.fatalf("checkout: %v", err)
		return
	}
	t.check("checkout created", resp.Status == http.StatusCreated)
	var out struct {
		PaymentID   string `json:"payment_id"`
		CheckoutURL string `json:"checkout_url"`
	}
	_ = resp.decode(&out)
	if !strings.Contains(out.CheckoutURL, "/billing/fake-checkout/") {
		t.fatalf("checkout url %q is not the fake provider; is STRIPE_SECRET_KEY set?", out.CheckoutURL)
		return
	}

	resp, err = call(http.MethodPost, "/billing/fake-checkout/"+out.PaymentID+"/complete", "", nil)
	if err != nil {
		t.fatalf("complete: %v", err)
		return
	}
	t.check("fake payment completed", resp.Status == http.StatusSeeOther || resp.Status == http.StatusOK)

	resp, err = call(http.MethodGet, "/api/portal/billing/payments", token, nil)
	if err != nil {
		t.fatalf("payments: %v", err)
		return
	}
	t.check("payment shows succeeded", strings.Contains(string(resp.Body), `"status":"succeeded"`))
}

func scenarioDashboard(t *T) {
	resp, err := call(http.MethodGet, "/api/admin/dashboard", adminToken, nil)
	if err != nil {
		t.fatalf("dashboard: %v", err)
		return
	}
	t.check("dashboard returns 200", resp.Status == http.StatusOK)
	var overview struct {
		Customers struct {
			Total int `json:"total"`
		} `json:"customers"`
		WeekStart string `json:"week_start"`
	}
	_ = resp.decode(&overview)
	t.check("dashboard counts customers", overview.Customers.Total > 0)
	t.check("dashboard has a week window", overview.WeekStart != "")
}

func main() {
	apiBase = strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	if apiBase == "" || os.Getenv("ADMIN_EMAIL") == "" || os.Getenv("ADMIN_PASSWORD") == "" {
		fmt.Fprintln(os.Stderr, "ERROR: API_BASE_URL, ADMIN_EMAIL and ADMIN_PASSWORD required")
		os.Exit(1)
	}
	if err := setup(); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}

	scenarios := []scenario{
		{"health", scenarioHealth},
		{"contact-lead", scenarioContactLead},
		{"book-and-cancel", scenarioBookAndCancel},
		{"chat-lead", scenarioChatLead},
		{"fake-checkout", scenarioFakeCheckout},
		{"dashboard", scenarioDashboard},
	}

	filter := ""
	if len(os.Args) > 1 {
		filter = os.Args[1]
	}

	totalPassed := 0
	totalFailed := 0
	scenarioResults := make([]string, 0)

	for _, s := range scenarios {
		if filter != "" && s.Name != filter {
			continue
		}

		fmt.Printf("\n========================================\n")
		fmt.Printf("SCENARIO: %s\n", s.Name)
		fmt.Printf("========================================\n")

		t := &T{name: s.Name}
		s.Fn(t)

		totalPassed += t.passed
		totalFailed += t.failed

		status := "PASS"
		if t.failed > 0 {
			status = "FAIL"
		}
		scenarioResults = append(scenarioResults, fmt.Sprintf("  %s %s (%d passed, %d failed)", status, s.Name, t.passed, t.failed))
	}

	fmt.Printf("\n========================================\n")
	fmt.Println("SUMMARY")
	fmt.Printf("========================================\n")
	for _, r := range scenarioResults {
		fmt.Println(r)
	}
	fmt.Printf("\nTotal: %d passed, %d failed\n", totalPassed, totalFailed)

	if totalFailed > 0 {
		fmt.Println("\nSOME SCENARIOS FAILED")
		os.Exit(1)
	}
	fmt.Println("\nALL SCENARIOS PASSED")
}
