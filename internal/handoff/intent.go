package handoff

import (
	"regexp"
	"strings"
)

var defaultIntentPatterns = []string{
	`\b(talk|speak|chat)\s+(to|with)\s+(a|an|some)?\s*(real\s+)?(human|person|someone|somebody|agent|rep)\b`,
	`\breal\s+(person|human)\b`,
	`\b(human|live)\s+(agent|support|operator|representative)\b`,
	`\b(customer\s+service\s+)?representative\b`,
	`\bconnect\s+me\s+(to|with)\b`,
	`\btransfer\s+me\b`,
}

// IntentDetector recognizes visitor messages that ask for a person.
type IntentDetector struct {
	patterns []*regexp.Regexp
}

func NewIntentDetector() *IntentDetector {
	d := &IntentDetector{}
	for _, p := range defaultIntentPatterns {
		d.patterns = append(d.patterns, regexp.MustCompile(`(?i)`+p))
	}
	return d
}

// Detect reports whether text asks for a human.
func (d *IntentDetector) Detect(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	for _, re := range d.patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
