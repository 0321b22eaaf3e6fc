package chat

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/autoflowlabs/consultancy-crm/internal/archive"
	"github.com/autoflowlabs/consultancy-crm/internal/customers"
	"github.com/autoflowlabs/consultancy-crm/internal/observability/metrics"
	"github.com/autoflowlabs/consultancy-crm/pkg/logging"
)

var tracer = otel.Tracer("autoflow.chat")

const (
	TransportREST      = "rest"
	TransportWebsocket = "websocket"
)

// LeadCapturer turns a finished conversation into a CRM lead.
type LeadCapturer interface {
	CaptureLead(ctx context.Context, req customers.ContactRequest, source customers.Source) (*customers.Customer, bool, error)
}

// TranscriptArchiver stores closed sessions for later review.
type TranscriptArchiver interface {
	ArchiveTranscript(ctx context.Context, record archive.TranscriptRecord) error
}

type Service struct {
	store    Store
	bot      Bot
	leads    LeadCapturer
	archiver TranscriptArchiver
	metrics  *metrics.CRMMetrics
	logger   *logging.Logger
	now      func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewService(store Store, leads LeadCapturer, archiver TranscriptArchiver, m *metrics.CRMMetrics, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:    store,
		leads:    leads,
		archiver: archiver,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Start opens a session and seeds it with the bot greeting.
func (s *Service) Start(ctx context.Context) (*Session, error) {
	ctx, span := tracer.Start(ctx, "chat.start")
	defer span.End()

	now := s.now().UTC()
	session := &Session{
		ID:        uuid.NewString(),
		Stage:     StageGreeting,
		Status:    StatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	session.Messages = append(session.Messages, s.message(SenderBot, s.bot.Greeting(), now))
	if err := s.store.Save(ctx, session); err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("chat.session_id", session.ID))
	s.logger.Info("chat session started", "session_id", session.ID)
	return session, nil
}

// Send records a visitor message and the bot reply. It returns the updated
// session and the messages appended by this call.
func (s *Service) Send(ctx context.Context, id, text, transport string) (*Session, []Message, error) {
	ctx, span := tracer.Start(ctx, "chat.send")
	defer span.End()
	span.SetAttributes(attribute.String("chat.session_id", id), attribute.String("chat.transport", transport))

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		return nil, nil, ErrMessageTooLong
	}

	unlock := s.lock(id)
	defer unlock()

	session, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if session.Status == StatusClosed {
		return nil, nil, ErrSessionClosed
	}

	now := s.now().UTC()
	visitor := s.message(SenderVisitor, text, now)
	reply, complete := s.bot.Reply(session, text)
	bot := s.message(SenderBot, reply, now)
	session.Messages = append(session.Messages, visitor, bot)
	session.UpdatedAt = now

	if complete {
		s.captureLead(ctx, session)
	}

	if err := s.store.Save(ctx, session); err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	s.metrics.ObserveChatMessage(string(SenderVisitor), transport)
	s.metrics.ObserveChatMessage(string(SenderBot), transport)
	return session, []Message{visitor, bot}, nil
}

// captureLead failures are logged; the visitor still gets the closing reply.
func (s *Service) captureLead(ctx context.Context, session *Session) {
	if s.leads == nil {
		return
	}
	customer, _, err := s.leads.CaptureLead(ctx, customers.ContactRequest{
		Name:    session.VisitorName,
		Email:   session.VisitorEmail,
		Phone:   session.VisitorPhone,
		Message: "Chat widget: " + session.Interest,
	}, customers.SourceChatWidget)
	if err != nil {
		s.logger.Error("failed to capture chat lead", "session_id", session.ID, "error", err)
		return
	}
	session.CustomerID = customer.ID
}

func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Summary, int, error) {
	if filter.Status != "" && filter.Status != StatusOpen && filter.Status != StatusClosed {
		return nil, 0, ErrInvalidStatus
	}
	return s.store.List(ctx, filter)
}

func (s *Service) CountOpen(ctx context.Context) (int, error) {
	return s.store.CountOpen(ctx)
}

// Close marks the session closed and archives its transcript. Closing an
// already closed session is a no-op.
func (s *Service) Close(ctx context.Context, id string) (*Session, error) {
	ctx, span := tracer.Start(ctx, "chat.close")
	defer span.End()

	unlock := s.lock(id)
	defer unlock()

	session, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status == StatusClosed {
		return session, nil
	}
	session.Status = StatusClosed
	session.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, session); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if s.archiver != nil {
		if err := s.archiver.ArchiveTranscript(ctx, transcript(session)); err != nil {
			span.RecordError(err)
			s.logger.Error("failed to archive chat transcript", "session_id", session.ID, "error", err)
		}
	}
	s.logger.Info("chat session closed", "session_id", session.ID, "stage", session.Stage)
	return session, nil
}

func transcript(session *Session) archive.TranscriptRecord {
	outcome := "abandoned"
	if session.Stage == StageComplete {
		outcome = "lead_captured"
	}
	msgs := make([]archive.Message, 0, len(session.Messages))
	for _, m := range session.Messages {
		role := "user"
		if m.Sender == SenderBot {
			role = "assistant"
		}
		msgs = append(msgs, archive.Message{Role: role, Content: m.Text, Timestamp: m.CreatedAt})
	}
	return archive.TranscriptRecord{
		SessionID:       session.ID,
		CustomerID:      session.CustomerID,
		EmailHash:       archive.HashEmail(session.VisitorEmail),
		Interest:        session.Interest,
		StartedAt:       session.CreatedAt,
		DurationSeconds: int(session.UpdatedAt.Sub(session.CreatedAt).Seconds()),
		MessageCount:    len(msgs),
		Outcome:         outcome,
		Messages:        msgs,
	}
}

func (s *Service) message(sender Sender, text string, at time.Time) Message {
	return Message{ID: uuid.NewString(), Sender: sender, Text: text, CreatedAt: at}
}

// lock serializes writers of one session within this process.
func (s *Service) lock(id string) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[id] = mu
	}
	s.locksMu.Unlock()
	mu.Lock()
	return mu.Unlock
}
