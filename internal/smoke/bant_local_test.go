package smoke

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/agentdesk/internal/bant"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

func TestCheckBANTLocalMatchesAllCases(t *testing.T) {
	results := CheckBANTLocal(context.Background(), logging.Discard())
	require.Len(t, results, len(BANTCases()))
	for _, r := range results {
		assert.True(t, r.OK, "case %q got %v want %v", r.Case.Name, r.Got, r.Case.Expect)
	}
}

func TestPrintBANTLocalReportsFailures(t *testing.T) {
	results := []LocalResult{
		{Case: bant.Case{Name: "ok"}, Got: map[bant.Dimension]string{}, OK: true},
		{
			Case: bant.Case{Name: "broken", Expect: map[bant.Dimension]string{bant.Budget: "$5k"}},
			Got:  map[bant.Dimension]string{},
		},
	}
	var buf bytes.Buffer
	failed := PrintBANTLocal(&buf, NewStyles(true), results)

	assert.Equal(t, 1, failed)
	out := buf.String()
	assert.Contains(t, out, "FAIL broken")
	assert.Contains(t, out, `want {budget="$5k"}`)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "1/2 detector cases matched"))
}
