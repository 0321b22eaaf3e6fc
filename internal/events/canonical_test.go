package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

type stubExec struct {
	args []any
}

type badEvent struct{}

func (badEvent) EventType() string { return "" }

func (s *stubExec) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.args = args
	return pgconn.CommandTag{}, nil
}

func TestNewEnvelope(t *testing.T) {
	fixedNow := time.Unix(0, 123456000).UTC()
	prevNow := nowFunc
	nowFunc = func() time.Time { return fixedNow }
	defer func() { nowFunc = prevNow }()

	id := uuid.MustParse("9a20d7d1-bf6a-4d33-bd55-5d25a816f1a8")
	env, err := NewEnvelope("appointment:123", "corr-1", AppointmentBookedV1{
		AppointmentID:   "123",
		CustomerID:      "cust-1",
		Title:           "Discovery call",
		MeetingType:     "video_call",
		Date:            "2024-01-10",
		StartTime:       "10:00",
		DurationMinutes: 60,
		BookedAt:        fixedNow,
	}, WithEventID(id))
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}
	if env.EventID != id {
		t.Fatalf("expected event id override, got %s", env.EventID)
	}
	if env.TimestampMicros != fixedNow.UnixMicro() {
		t.Fatalf("unexpected timestamp: %d", env.TimestampMicros)
	}
	if env.EventType != TypeAppointmentBooked {
		t.Fatalf("unexpected type: %s", env.EventType)
	}
	if env.Aggregate != "appointment:123" {
		t.Fatalf("unexpected aggregate: %s", env.Aggregate)
	}

	var decoded AppointmentBookedV1
	if err := env.Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.StartTime != "10:00" || decoded.DurationMinutes != 60 {
		t.Fatalf("unexpected payload: %#v", decoded)
	}
}

func TestAppendCanonicalEvent(t *testing.T) {
	exec := &stubExec{}
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	env, err := AppendCanonicalEvent(ctx, exec, "customer:123", LeadCapturedV1{
		CustomerID: "123",
		Name:       "Dana",
		Email:      "dana@example.com",
		Source:     "contact_form",
		CapturedAt: time.Unix(100, 0).UTC(),
	})
	if err != nil {
		t.Fatalf("append canonical failed: %v", err)
	}
	if env.EventID == uuid.Nil {
		t.Fatal("expected generated event id")
	}
	if env.CorrelationID != "req-42" {
		t.Fatalf("expected request id as correlation, got %q", env.CorrelationID)
	}
	if exec.args == nil || len(exec.args) != 4 {
		t.Fatalf("expected exec args, got %#v", exec.args)
	}
	if exec.args[0] != env.EventID {
		t.Fatalf("id mismatch")
	}
	payloadBytes, ok := exec.args[3].([]byte)
	if !ok {
		t.Fatalf("payload arg type %T", exec.args[3])
	}
	var stored Envelope
	if err := json.Unmarshal(payloadBytes, &stored); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if stored.EventType != env.EventType || stored.Aggregate != env.Aggregate {
		t.Fatalf("stored envelope mismatch: %#v", stored)
	}
	if string(stored.Payload) == "" {
		t.Fatal("expected nested payload")
	}
}

func TestEnvelopeValidation(t *testing.T) {
	if _, err := NewEnvelope("", "", PaymentSucceededV1{}); err == nil {
		t.Fatal("expected aggregate error")
	}
	if _, err := NewEnvelope("agg", "", nil); err == nil {
		t.Fatal("expected nil event error")
	}
	if _, err := NewEnvelope("agg", "", badEvent{}); err == nil {
		t.Fatal("expected event type error")
	}
}

func TestWithTimestampOption(t *testing.T) {
	target := time.Unix(50, 123000).UTC()
	env, err := NewEnvelope("agg", "", AppointmentStatusChangedV1{AppointmentID: "x"}, WithTimestamp(target))
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if env.TimestampMicros != target.UnixMicro() {
		t.Fatalf("expected timestamp override, got %d", env.TimestampMicros)
	}
}

func TestAppendCanonicalEventRequiresExec(t *testing.T) {
	if _, err := AppendCanonicalEvent(context.Background(), nil, "agg", PaymentSucceededV1{PaymentID: "x"}); err == nil {
		t.Fatal("expected exec error")
	}
}
