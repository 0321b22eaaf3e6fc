package dashboard

import (
	"context"
	"time"
)

// Overview is the admin dashboard payload.
type Overview struct {
	GeneratedAt  time.Time          `json:"generated_at"`
	WeekStart    string             `json:"week_start"`
	WeekEnd      string             `json:"week_end"`
	Customers    CustomerMetrics    `json:"customers"`
	Appointments AppointmentMetrics `json:"appointments"`
	Revenue      RevenueMetrics     `json:"revenue"`
	Chat         ChatMetrics        `json:"chat"`
}

type CustomerMetrics struct {
	Total            int            `json:"total"`
	ByStatus         map[string]int `json:"by_status"`
	NewLeadsThisWeek int            `json:"new_leads_this_week"`
}

type AppointmentMetrics struct {
	Upcoming       int `json:"upcoming"`
	ThisWeek       int `json:"this_week"`
	CancelledCount int `json:"cancelled_count"`
}

type RevenueMetrics struct {
	TotalCents      int64  `json:"total_cents"`
	ThisWeekCents   int64  `json:"this_week_cents"`
	Currency        string `json:"currency"`
	PaidCount       int    `json:"paid_count"`
	PendingPayments int    `json:"pending_payments"`
}

type ChatMetrics struct {
	OpenSessions int `json:"open_sessions"`
}

// Window pins "now" and the current Monday-to-Sunday week in the business
// timezone so every figure is computed against the same instant.
type Window struct {
	Now       time.Time
	Today     string
	Clock     string
	WeekStart time.Time
	WeekFrom  string
	WeekTo    string
}

// NewWindow builds the window for now in loc. A nil loc means UTC.
func NewWindow(now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	offset := (int(midnight.Weekday()) + 6) % 7
	monday := midnight.AddDate(0, 0, -offset)
	return Window{
		Now:       now,
		Today:     local.Format("2006-01-02"),
		Clock:     local.Format("15:04"),
		WeekStart: monday,
		WeekFrom:  monday.Format("2006-01-02"),
		WeekTo:    monday.AddDate(0, 0, 6).Format("2006-01-02"),
	}
}

// Source computes the figures that live in the primary store.
type Source interface {
	Collect(ctx context.Context, w Window) (*Overview, error)
}

// OpenChatCounter reports how many chat sessions are still open.
type OpenChatCounter interface {
	CountOpen(ctx context.Context) (int, error)
}

// active appointment statuses, the ones that still occupy a slot.
var activeStatuses = []string{"scheduled", "confirmed"}
