package conversation

import (
	"regexp"
	"strings"

	"github.com/wolfman30/agentdesk/internal/leads"
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`(?:\+?\d{1,3}[\s.\-]?)?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}\b`)
	namePattern  = regexp.MustCompile(`\b(?i:my name is|my name's|this is|i am|i'm)\s+([A-Z][a-z'\-]+(?:\s+[A-Z][a-z'\-]+)?)`)
)

// Words that follow "I'm" without being a name.
var notNames = map[string]struct{}{
	"looking": {}, "interested": {}, "trying": {}, "the": {}, "not": {}, "just": {},
	"here": {}, "calling": {}, "wondering": {}, "ready": {}, "sure": {}, "owner": {},
	"founder": {}, "responsible": {}, "in": {}, "from": {}, "with": {},
}

// extractContact pulls an email, phone number and self-introduced name out of
// a visitor message.
func extractContact(text string) leads.Contact {
	var c leads.Contact
	if m := emailPattern.FindString(text); m != "" {
		c.Email = strings.ToLower(m)
	}
	if m := phonePattern.FindString(text); m != "" {
		c.Phone = strings.TrimSpace(m)
	}
	if m := namePattern.FindStringSubmatch(text); m != nil {
		name := strings.TrimSpace(m[1])
		first := strings.ToLower(strings.Fields(name)[0])
		if _, skip := notNames[first]; !skip {
			c.Name = name
		}
	}
	return c
}
