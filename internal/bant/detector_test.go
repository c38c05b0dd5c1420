package bant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

func TestDetectorCases(t *testing.T) {
	d := NewDetector(logging.Discard())
	for _, tc := range Cases() {
		t.Run(tc.Name, func(t *testing.T) {
			signals := d.Analyze(context.Background(), tc.LastAssistant, tc.Message)
			got := make(map[Dimension]string, len(signals))
			for _, s := range signals {
				got[s.Dimension] = s.Value
			}
			assert.Equal(t, tc.Expect, got)
		})
	}
}

func TestDetectFirstMatchWins(t *testing.T) {
	d := NewDetector(logging.Discard())

	// "I'm the CEO" appears first in the text, but the approval pattern is
	// earlier in the authority table.
	signals := d.Detect(context.Background(), "I'm the CEO but I have to run it by our board")
	require.Len(t, signals, 1)
	assert.Equal(t, Authority, signals[0].Dimension)
	assert.Equal(t, "needs approval from board", signals[0].Value)
	assert.Equal(t, 0.85, signals[0].Confidence)
	assert.Equal(t, SourceHeuristic, signals[0].Source)

	// A keyword-anchored amount beats a bare amount even when the bare one comes first.
	signals = d.Detect(context.Background(), "Last vendor charged $900, our budget is $5k")
	require.Len(t, signals, 1)
	assert.Equal(t, "$5k", signals[0].Value)
	assert.Equal(t, 0.9, signals[0].Confidence)
}

func TestDetectEmptyInput(t *testing.T) {
	d := NewDetector(logging.Discard())
	assert.Nil(t, d.Detect(context.Background(), "   "))
}

func TestDetectTruncatesLongValues(t *testing.T) {
	d := NewDetector(logging.Discard())
	long := "We are looking for "
	for i := 0; i < 60; i++ {
		long += "word "
	}
	signals := d.Detect(context.Background(), long)
	require.Len(t, signals, 1)
	assert.LessOrEqual(t, len([]rune(signals[0].Value)), maxValueLength)
}

func TestQuestionDimension(t *testing.T) {
	d := NewDetector(logging.Discard())
	cases := []struct {
		assistant string
		want      Dimension
		ok        bool
	}{
		{"Thanks! What's your budget for this?", Budget, true},
		{"Got it. When are you hoping to get started?", Timeline, true},
		{"Who signs off on purchases like this?", Authority, true},
		{"What problem are you trying to solve?", Need, true},
		{"Sounds great. Talk soon.", "", false},
		{"Is there a budget set aside? Also, when do you want to launch?", Timeline, true},
	}
	for _, tc := range cases {
		got, ok := d.QuestionDimension(tc.assistant)
		assert.Equal(t, tc.ok, ok, tc.assistant)
		assert.Equal(t, tc.want, got, tc.assistant)
	}
}

func TestDetectAnswerRejectsLongAndQuestions(t *testing.T) {
	d := NewDetector(logging.Discard())
	q := "When do you need this live?"

	assert.Len(t, d.DetectAnswer(q, "end of summer"), 1)
	assert.Nil(t, d.DetectAnswer(q, "why do you ask?"))
	assert.Nil(t, d.DetectAnswer(q, "well it is a long story because our team has been evaluating many different options for a while"))
	assert.Nil(t, d.DetectAnswer("Great, thanks!", "tomorrow"))

	sig := d.DetectAnswer(q, "end of summer")[0]
	assert.Equal(t, Timeline, sig.Dimension)
	assert.Equal(t, SourceAnswer, sig.Source)
	assert.Equal(t, answerConfidence, sig.Confidence)
}

func TestParseDimension(t *testing.T) {
	d, err := ParseDimension(" Budget ")
	require.NoError(t, err)
	assert.Equal(t, Budget, d)

	_, err = ParseDimension("price")
	assert.Error(t, err)
}
