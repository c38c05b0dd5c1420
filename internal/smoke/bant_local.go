package smoke

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/wolfman30/agentdesk/internal/bant"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

// BANTCases lists the reference conversations the detector is checked against.
func BANTCases() []bant.Case {
	return bant.Cases()
}

// LocalResult is one offline detector check.
type LocalResult struct {
	Case bant.Case
	Got  map[bant.Dimension]string
	OK   bool
}

// CheckBANTLocal runs every case through the detector without a server.
func CheckBANTLocal(ctx context.Context, logger *logging.Logger) []LocalResult {
	d := bant.NewDetector(logger)
	cases := BANTCases()
	out := make([]LocalResult, 0, len(cases))
	for _, c := range cases {
		got := map[bant.Dimension]string{}
		for _, s := range d.Analyze(ctx, c.LastAssistant, c.Message) {
			got[s.Dimension] = s.Value
		}
		out = append(out, LocalResult{Case: c, Got: got, OK: sameSignals(c.Expect, got)})
	}
	return out
}

func sameSignals(want, got map[bant.Dimension]string) bool {
	if len(want) != len(got) {
		return false
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

// PrintBANTLocal writes the results and reports how many failed.
func PrintBANTLocal(w io.Writer, styles Styles, results []LocalResult) int {
	failed := 0
	for _, r := range results {
		tag := styles.Pass.Render("PASS")
		if !r.OK {
			tag = styles.Fail.Render("FAIL")
			failed++
		}
		fmt.Fprintf(w, "  %s %s\n", tag, r.Case.Name)
		fmt.Fprintln(w, styles.Detail.Render("got "+formatSignals(r.Got)))
		if !r.OK {
			fmt.Fprintln(w, styles.Detail.Render("want "+formatSignals(r.Case.Expect)))
		}
	}
	summary := fmt.Sprintf("%d/%d detector cases matched", len(results)-failed, len(results))
	style := styles.Pass
	if failed > 0 {
		style = styles.Fail
	}
	fmt.Fprintln(w, style.Render(summary))
	return failed
}

func formatSignals(m map[bant.Dimension]string) string {
	if len(m) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, m[bant.Dimension(k)]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
