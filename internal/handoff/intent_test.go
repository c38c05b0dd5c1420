package handoff

import "testing"

func TestIntentDetector(t *testing.T) {
	d := NewIntentDetector()
	cases := []struct {
		text string
		want bool
	}{
		{"I want to talk to a human", true},
		{"can I speak with someone please", true},
		{"Is this a REAL PERSON?", true},
		{"get me a representative", true},
		{"I'd like a live agent", true},
		{"connect me to sales", true},
		{"transfer me now", true},
		{"chat with an agent", true},
		{"What is your pricing?", false},
		{"We have a budget of $10k", false},
		{"humanity is great", false},
		{"", false},
		{"   ", false},
	}
	for _, tc := range cases {
		if got := d.Detect(tc.text); got != tc.want {
			t.Errorf("Detect(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}
