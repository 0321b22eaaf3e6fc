package chat

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/autoflowlabs/consultancy-crm/internal/customers"
)

const maxNameLength = 100

var (
	emailToken = regexp.MustCompile(`[^\s,;<>()]+@[^\s,;<>()]+`)
	phoneToken = regexp.MustCompile(`\+?\(?\d[\d\s().-]{8,}\d`)
	namePrefix = regexp.MustCompile(`(?i)^(hi|hello|hey)?[,!.\s]*(i'm|i am|my name is|this is|it's|call me)\s+`)
)

// Bot drives the scripted greeting -> name -> email -> interest flow.
type Bot struct{}

// Greeting is the first bot message of every session.
func (Bot) Greeting() string {
	return "Hi there! I'm the AutoFlow assistant. I can get you connected with a consultant. What's your name?"
}

// Reply advances s with the visitor's text and returns the bot's answer.
// complete is true only on the turn that finishes the flow.
func (Bot) Reply(s *Session, text string) (reply string, complete bool) {
	text = strings.TrimSpace(text)
	if phone := extractPhone(text); phone != "" && s.VisitorPhone == "" {
		s.VisitorPhone = phone
	}

	switch s.Stage {
	case StageGreeting, StageName:
		name := extractName(text)
		if name == "" {
			s.Stage = StageName
			return "Sorry, I didn't catch that. What name should we use for you?", false
		}
		s.VisitorName = name
		if email := extractEmail(text); email != "" {
			s.VisitorEmail = email
			s.Stage = StageInterest
			return fmt.Sprintf("Thanks, %s! What would you like to automate or improve in your business?", firstName(name)), false
		}
		s.Stage = StageEmail
		return fmt.Sprintf("Nice to meet you, %s! What's the best email address to reach you?", firstName(name)), false

	case StageEmail:
		email := extractEmail(text)
		if email == "" {
			return "That doesn't look like a valid email address. Could you double-check it?", false
		}
		s.VisitorEmail = email
		s.Stage = StageInterest
		return "Got it. What would you like to automate or improve in your business?", false

	case StageInterest:
		if text == "" {
			return "Tell me a little about the process you'd like help with.", false
		}
		s.Interest = text
		s.Stage = StageComplete
		return fmt.Sprintf("Thanks, %s! A consultant will reach out at %s within one business day. "+
			"You can also book a free consultation from your portal any time.", firstName(s.VisitorName), s.VisitorEmail), true

	default:
		return "We've got your details and a consultant will be in touch soon. Anything else you'd like us to know?", false
	}
}

func extractName(text string) string {
	if extractEmail(text) != "" || extractPhone(text) != "" {
		text = emailToken.ReplaceAllString(text, "")
		text = phoneToken.ReplaceAllString(text, "")
	}
	text = namePrefix.ReplaceAllString(strings.TrimSpace(text), "")
	text = strings.TrimFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	if text == "" || len(text) > maxNameLength {
		return ""
	}
	hasLetter := false
	for _, r := range text {
		if unicode.IsLetter(r) {
			hasLetter = true
			break
		}
	}
	if !hasLetter {
		return ""
	}
	return text
}

func firstName(name string) string {
	if fields := strings.Fields(name); len(fields) > 0 {
		return fields[0]
	}
	return name
}

func extractEmail(text string) string {
	for _, candidate := range emailToken.FindAllString(text, -1) {
		candidate = strings.ToLower(strings.Trim(candidate, ".!?'\""))
		if customers.ValidEmail(candidate) {
			return candidate
		}
	}
	return ""
}

// extractPhone returns the first run of 10 to 15 digits, keeping a leading +.
func extractPhone(text string) string {
	match := phoneToken.FindString(text)
	if match == "" {
		return ""
	}
	var b strings.Builder
	if strings.HasPrefix(match, "+") {
		b.WriteByte('+')
	}
	digits := 0
	for _, r := range match {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			digits++
		}
	}
	if digits < 10 || digits > 15 {
		return ""
	}
	return b.String()
}
