package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBotWalksThroughStages(t *testing.T) {
	var bot Bot
	s := &Session{Stage: StageGreeting}

	reply, done := bot.Reply(s, "Hi, I'm Dana Scully")
	assert.False(t, done)
	assert.Equal(t, "Dana Scully", s.VisitorName)
	assert.Equal(t, StageEmail, s.Stage)
	assert.Contains(t, reply, "Dana")

	reply, done = bot.Reply(s, "dana at example dot com")
	assert.False(t, done)
	assert.Equal(t, StageEmail, s.Stage)
	assert.Contains(t, reply, "valid email")

	_, done = bot.Reply(s, "sure, Dana@Example.com.")
	assert.False(t, done)
	assert.Equal(t, "dana@example.com", s.VisitorEmail)
	assert.Equal(t, StageInterest, s.Stage)

	reply, done = bot.Reply(s, "We spend hours reconciling invoices by hand")
	assert.True(t, done)
	assert.Equal(t, StageComplete, s.Stage)
	assert.Equal(t, "We spend hours reconciling invoices by hand", s.Interest)
	assert.Contains(t, reply, "dana@example.com")

	_, done = bot.Reply(s, "thanks!")
	assert.False(t, done, "completion is reported once")
}

func TestBotNameStage(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantName  string
		wantEmail string
		wantPhone string
		wantStage Stage
	}{
		{name: "plain", input: "Morgan", wantName: "Morgan", wantStage: StageEmail},
		{name: "prefix", input: "my name is Alex Kim", wantName: "Alex Kim", wantStage: StageEmail},
		{name: "with email", input: "I'm Dana, dana@example.com", wantName: "Dana", wantEmail: "dana@example.com", wantStage: StageInterest},
		{name: "with phone", input: "Dana Scully 555-123-4567", wantName: "Dana Scully", wantPhone: "5551234567", wantStage: StageEmail},
		{name: "digits only", input: "12345", wantStage: StageName},
		{name: "punctuation", input: "?!", wantStage: StageName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{Stage: StageGreeting}
			Bot{}.Reply(s, tt.input)
			assert.Equal(t, tt.wantName, s.VisitorName)
			assert.Equal(t, tt.wantEmail, s.VisitorEmail)
			assert.Equal(t, tt.wantPhone, s.VisitorPhone)
			assert.Equal(t, tt.wantStage, s.Stage)
		})
	}
}

func TestExtractPhone(t *testing.T) {
	assert.Equal(t, "+15551234567", extractPhone("call +1 (555) 123-4567 after 5"))
	assert.Equal(t, "5551234567", extractPhone("555.123.4567"))
	assert.Empty(t, extractPhone("room 1234"))
	assert.Empty(t, extractPhone("no digits here"))
}
