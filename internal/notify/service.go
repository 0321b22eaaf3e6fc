package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/autoflowlabs/consultancy-crm/internal/customers"
	"github.com/autoflowlabs/consultancy-crm/internal/events"
	"github.com/autoflowlabs/consultancy-crm/pkg/logging"
)

// CustomerLookup resolves contact details for events that only carry an id.
type CustomerLookup interface {
	Get(ctx context.Context, id string) (*customers.Customer, error)
}

// DeliveryLog remembers which emails went out for an event so a redelivered
// event only retries the recipients that failed. events.ProcessedStore fits.
type DeliveryLog interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

const deliveryProvider = "email"

// Categories tag outgoing mail per notification kind.
const (
	CategoryBooking    = "booking"
	CategoryStatus     = "appointment-status"
	CategoryReschedule = "reschedule"
	CategoryLead       = "lead"
	CategoryReceipt    = "receipt"
)

// Service turns domain events into emails for customers and the team.
type Service struct {
	email      EmailSender
	adminEmail string
	customers  CustomerLookup
	sent       DeliveryLog
	logger     *logging.Logger
}

func NewService(email EmailSender, adminEmail string, lookup CustomerLookup, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:      email,
		adminEmail: strings.TrimSpace(adminEmail),
		customers:  lookup,
		logger:     logger,
	}
}

// WithDeliveryLog enables per-recipient dedupe for events dispatched by the bus.
func (s *Service) WithDeliveryLog(log DeliveryLog) *Service {
	s.sent = log
	return s
}

// Register subscribes the service to every event it reacts to.
func (s *Service) Register(bus *events.Bus) {
	events.Subscribe(bus, s.NotifyAppointmentBooked)
	events.Subscribe(bus, s.NotifyAppointmentStatusChanged)
	events.Subscribe(bus, s.NotifyAppointmentRescheduled)
	events.Subscribe(bus, s.NotifyNewLead)
	events.Subscribe(bus, s.NotifyPaymentSuccess)
}

// NotifyAppointmentBooked confirms the booking to the customer and alerts the team.
func (s *Service) NotifyAppointmentBooked(ctx context.Context, evt events.AppointmentBookedV1) error {
	when := formatSlot(evt.Date, evt.StartTime)
	meeting := meetingLabel(evt.MeetingType)
	name := evt.CustomerName
	if name == "" {
		name = "there"
	}

	var msgs []EmailMessage
	if evt.CustomerEmail != "" {
		msgs = append(msgs, EmailMessage{
			To:      evt.CustomerEmail,
			ToName:  evt.CustomerName,
			Subject: fmt.Sprintf("Your consultation is booked for %s", when),
			Body: fmt.Sprintf(`Hi %s,

Your %s is confirmed.

When: %s (%d minutes)
Format: %s

You can view or cancel it any time from your customer portal.

The Autoflow Labs team`, name, evt.Title, when, evt.DurationMinutes, meeting),
			HTML: fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<h2 style="color: #2563eb;">You're booked!</h2>
<p>Hi %s, your <strong>%s</strong> is confirmed.</p>
<table style="border-collapse: collapse; margin: 20px 0;">
  %s%s
</table>
<p style="color: #6b7280; font-size: 12px;">You can view or cancel it any time from your customer portal.</p>
</div>`, html.EscapeString(name), html.EscapeString(evt.Title),
				row("When", fmt.Sprintf("%s (%d minutes)", when, evt.DurationMinutes)), row("Format", meeting)),
		})
	}
	if s.adminEmail != "" {
		msgs = append(msgs, EmailMessage{
			To:      s.adminEmail,
			Subject: fmt.Sprintf("New booking: %s on %s", nameOr(evt.CustomerName, evt.CustomerEmail), when),
			Body: fmt.Sprintf(`%s booked a %s.

Customer: %s <%s>
When: %s (%d minutes)
Format: %s
Appointment ID: %s`, nameOr(evt.CustomerName, "A customer"), evt.Title, evt.CustomerName, evt.CustomerEmail,
				when, evt.DurationMinutes, meeting, evt.AppointmentID),
		})
	}
	return s.send(ctx, CategoryBooking, msgs)
}

// NotifyAppointmentStatusChanged tells the customer about confirmations and
// cancellations. Other transitions are internal.
func (s *Service) NotifyAppointmentStatusChanged(ctx context.Context, evt events.AppointmentStatusChangedV1) error {
	var subject, line string
	switch evt.To {
	case "confirmed":
		subject = "Your consultation is confirmed"
		line = "Your upcoming consultation has been confirmed by our team. We look forward to speaking with you."
	case "cancelled":
		subject = "Your consultation was cancelled"
		line = "Your consultation has been cancelled. You can book a new time from your customer portal whenever suits you."
	default:
		return nil
	}

	customer := s.lookup(ctx, evt.CustomerID)
	var msgs []EmailMessage
	if customer != nil && customer.Email != "" {
		msgs = append(msgs, EmailMessage{
			To:      customer.Email,
			ToName:  customer.Name,
			Subject: subject,
			Body:    fmt.Sprintf("Hi %s,\n\n%s\n\nThe Autoflow Labs team", nameOr(customer.Name, "there"), line),
		})
	}
	if evt.To == "cancelled" && s.adminEmail != "" {
		who := evt.CustomerID
		if customer != nil {
			who = nameOr(customer.Name, customer.Email)
		}
		msgs = append(msgs, EmailMessage{
			To:      s.adminEmail,
			Subject: fmt.Sprintf("Appointment cancelled: %s", who),
			Body:    fmt.Sprintf("Appointment %s for %s moved from %s to cancelled.", evt.AppointmentID, who, evt.From),
		})
	}
	return s.send(ctx, CategoryStatus, msgs)
}

// NotifyAppointmentRescheduled sends the customer the new time.
func (s *Service) NotifyAppointmentRescheduled(ctx context.Context, evt events.AppointmentRescheduledV1) error {
	customer := s.lookup(ctx, evt.CustomerID)
	if customer == nil || customer.Email == "" {
		return nil
	}
	from := formatSlot(evt.PreviousDate, evt.PreviousStart)
	to := formatSlot(evt.Date, evt.StartTime)
	return s.send(ctx, CategoryReschedule, []EmailMessage{{
		To:      customer.Email,
		ToName:  customer.Name,
		Subject: fmt.Sprintf("Your consultation moved to %s", to),
		Body: fmt.Sprintf(`Hi %s,

Your consultation has been moved.

Was: %s
Now: %s (%d minutes)

The Autoflow Labs team`, nameOr(customer.Name, "there"), from, to, evt.DurationMinutes),
	}})
}

// NotifyNewLead alerts the team about a contact form or chat widget lead.
func (s *Service) NotifyNewLead(ctx context.Context, evt events.LeadCapturedV1) error {
	if s.adminEmail == "" {
		return nil
	}
	subject := fmt.Sprintf("New lead - %s", nameOr(evt.Name, evt.Email))
	body := fmt.Sprintf(`A new lead has come in!

Name: %s
Email: %s
Phone: %s
Company: %s
Source: %s
Message: %s`, evt.Name, evt.Email, evt.Phone, evt.Company, sourceLabel(evt.Source), evt.Message)
	// Replies from the team go straight to the lead.
	return s.send(ctx, CategoryLead, []EmailMessage{{To: s.adminEmail, Subject: subject, Body: body, ReplyTo: evt.Email}})
}

// NotifyPaymentSuccess sends the customer a receipt and alerts the team.
func (s *Service) NotifyPaymentSuccess(ctx context.Context, evt events.PaymentSucceededV1) error {
	amount := formatAmount(evt.AmountCents, evt.Currency)
	paidAt := evt.OccurredAt.Format("January 2, 2006 at 3:04 PM MST")
	customer := s.lookup(ctx, evt.CustomerID)

	var msgs []EmailMessage
	if customer != nil && customer.Email != "" {
		msgs = append(msgs, EmailMessage{
			To:      customer.Email,
			ToName:  customer.Name,
			Subject: fmt.Sprintf("Receipt: %s payment received", amount),
			Body: fmt.Sprintf(`Hi %s,

Thanks for your payment of %s for the %s package.

Paid: %s
Reference: %s

The Autoflow Labs team`, nameOr(customer.Name, "there"), amount, evt.PackageID, paidAt, evt.ProviderRef),
		})
	}
	if s.adminEmail != "" {
		who := evt.CustomerID
		if customer != nil {
			who = nameOr(customer.Name, customer.Email)
		}
		msgs = append(msgs, EmailMessage{
			To:      s.adminEmail,
			Subject: fmt.Sprintf("Payment received - %s", who),
			Body: fmt.Sprintf(`%s paid %s for the %s package.

Paid: %s
Payment ID: %s
Provider reference: %s`, who, amount, evt.PackageID, paidAt, evt.PaymentID, evt.ProviderRef),
		})
	}
	return s.send(ctx, CategoryReceipt, msgs)
}

func (s *Service) lookup(ctx context.Context, id string) *customers.Customer {
	if s.customers == nil || id == "" {
		return nil
	}
	c, err := s.customers.Get(ctx, id)
	if err != nil {
		s.logger.Warn("notify: customer lookup failed", "customer_id", id, "error", err)
		return nil
	}
	return c
}

func (s *Service) send(ctx context.Context, category string, msgs []EmailMessage) error {
	if s.email == nil || len(msgs) == 0 {
		return nil
	}
	var failed int
	for _, msg := range msgs {
		if msg.Category == "" {
			msg.Category = category
		}
		key := s.deliveryKey(ctx, msg)
		if key != "" {
			done, err := s.sent.AlreadyProcessed(ctx, deliveryProvider, key)
			if err != nil {
				s.logger.Warn("notify: delivery log lookup failed", "category", category, "error", err, "to", msg.To)
			} else if done {
				s.logger.Debug("notify: email already sent for event", "category", category, "to", msg.To)
				continue
			}
		}
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("notify: failed to send email", "category", category, "error", err, "to", msg.To)
			failed++
			continue
		}
		s.logger.Info("notify: email sent", "category", category, "to", msg.To)
		if key != "" {
			if _, err := s.sent.MarkProcessed(ctx, deliveryProvider, key); err != nil {
				s.logger.Warn("notify: failed to record delivery", "category", category, "error", err, "to", msg.To)
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("notify: %d notification(s) failed", failed)
	}
	return nil
}

// deliveryKey is empty when there is no log or no envelope to key on.
func (s *Service) deliveryKey(ctx context.Context, msg EmailMessage) string {
	if s.sent == nil {
		return ""
	}
	env, ok := events.EnvelopeFromContext(ctx)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s:%s:%s", env.EventID, msg.Category, strings.ToLower(strings.TrimSpace(msg.To)))
}

func formatSlot(date, start string) string {
	t, err := time.Parse("2006-01-02 15:04", date+" "+start)
	if err != nil {
		return strings.TrimSpace(date + " " + start)
	}
	return t.Format("Monday, January 2 at 3:04 PM")
}

func formatAmount(cents int64, currency string) string {
	value := fmt.Sprintf("%.2f", float64(cents)/100)
	switch strings.ToLower(currency) {
	case "", "usd":
		return "$" + value
	case "eur":
		return "€" + value
	case "gbp":
		return "£" + value
	default:
		return value + " " + strings.ToUpper(currency)
	}
}

func meetingLabel(t string) string {
	switch t {
	case "video_call":
		return "Video call"
	case "phone_call":
		return "Phone call"
	case "in_person":
		return "In person"
	case "group":
		return "Group session"
	}
	return t
}

func sourceLabel(source string) string {
	switch source {
	case "contact_form":
		return "Contact form"
	case "chat_widget":
		return "Chat widget"
	}
	return source
}

func nameOr(name, fallback string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return fallback
}

func row(label, value string) string {
	return fmt.Sprintf(`<tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>%s:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>`,
		html.EscapeString(label), html.EscapeString(value))
}
