package archive

import "time"

const recordVersion = "1.0"

// TranscriptRecord is one closed chat-widget session as stored in S3.
type TranscriptRecord struct {
	Version         string    `json:"version"`
	SessionID       string    `json:"session_id"`
	CustomerID      string    `json:"customer_id,omitempty"`
	EmailHash       string    `json:"email_hash,omitempty"` // sha256 of the lowercased email
	Interest        string    `json:"interest,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	ArchivedAt      time.Time `json:"archived_at"`
	DurationSeconds int       `json:"duration_seconds"`
	MessageCount    int       `json:"message_count"`
	Outcome         string    `json:"outcome"` // lead_captured|abandoned
	Messages        []Message `json:"messages"`
}

// Message is a single transcript turn.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ManifestEntry is one JSONL line in the monthly manifest file.
type ManifestEntry struct {
	SessionID    string `json:"session_id"`
	S3Key        string `json:"s3_key"`
	ArchivedAt   string `json:"archived_at"`
	MessageCount int    `json:"message_count"`
	Outcome      string `json:"outcome"`
}
