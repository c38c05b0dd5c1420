package bant

import (
	"fmt"
	"strings"
)

var dimensionHints = map[Dimension]string{
	Budget:    "what budget or price range they are working with",
	Authority: "who makes or approves the purchasing decision",
	Need:      "what problem they want to solve or what they are looking for",
	Timeline:  "when they want to have a solution in place",
}

// GuidancePrompt tells the chat model what is already known and which field to
// collect next.
func GuidancePrompt(m Memory) string {
	var b strings.Builder
	b.WriteString("Lead qualification (BANT) notes for this conversation.\n")

	known := 0
	for _, d := range Dimensions {
		if v := m.Get(d); v != nil {
			fmt.Fprintf(&b, "- %s: %s\n", d, *v)
			known++
		}
	}
	if known == 0 {
		b.WriteString("- nothing is known yet\n")
	}

	missing := m.Missing()
	if len(missing) == 0 {
		b.WriteString("All four fields are known. Do not ask about them again; help the visitor with next steps or offer to connect them with the team.")
		return b.String()
	}
	names := make([]string, len(missing))
	for i, d := range missing {
		names[i] = string(d)
	}
	fmt.Fprintf(&b, "Still unknown: %s.\n", strings.Join(names, ", "))
	fmt.Fprintf(&b, "Answer the visitor first. Then, if it fits naturally, ask one short question about %s. Never ask for something already listed above.", dimensionHints[missing[0]])
	return b.String()
}
