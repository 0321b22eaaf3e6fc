// Package chat runs the scripted lead-capture widget on the marketing site.
package chat

import (
	"errors"
	"time"
)

var (
	ErrSessionNotFound = errors.New("chat session not found")
	ErrSessionClosed   = errors.New("chat session is closed")
	ErrEmptyMessage    = errors.New("message text is required")
	ErrMessageTooLong  = errors.New("message must be 2000 characters or fewer")
	ErrInvalidStatus   = errors.New("status must be open or closed")
)

const maxMessageLength = 2000

// Stage is where the visitor is in the scripted flow.
type Stage string

const (
	StageGreeting Stage = "greeting"
	StageName     Stage = "name"
	StageEmail    Stage = "email"
	StageInterest Stage = "interest"
	StageComplete Stage = "complete"
)

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Sender identifies who wrote a message.
type Sender string

const (
	SenderVisitor Sender = "visitor"
	SenderBot     Sender = "bot"
)

type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is one widget conversation.
type Session struct {
	ID           string    `json:"id"`
	VisitorName  string    `json:"visitor_name,omitempty"`
	VisitorEmail string    `json:"visitor_email,omitempty"`
	VisitorPhone string    `json:"visitor_phone,omitempty"`
	Interest     string    `json:"interest,omitempty"`
	Stage        Stage     `json:"stage"`
	Status       Status    `json:"status"`
	CustomerID   string    `json:"customer_id,omitempty"`
	Messages     []Message `json:"messages"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Summary is the admin list view of a session.
type Summary struct {
	ID           string    `json:"id"`
	VisitorName  string    `json:"visitor_name,omitempty"`
	VisitorEmail string    `json:"visitor_email,omitempty"`
	Stage        Stage     `json:"stage"`
	Status       Status    `json:"status"`
	CustomerID   string    `json:"customer_id,omitempty"`
	MessageCount int       `json:"message_count"`
	LastMessage  string    `json:"last_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (s *Session) Summary() Summary {
	sum := Summary{
		ID:           s.ID,
		VisitorName:  s.VisitorName,
		VisitorEmail: s.VisitorEmail,
		Stage:        s.Stage,
		Status:       s.Status,
		CustomerID:   s.CustomerID,
		MessageCount: len(s.Messages),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
	if n := len(s.Messages); n > 0 {
		sum.LastMessage = s.Messages[n-1].Text
	}
	return sum
}

// ListFilter narrows admin session listings.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}
