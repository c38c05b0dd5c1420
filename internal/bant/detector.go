package bant

import (
	"context"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/agentdesk/pkg/logging"
)

var detectorTracer = otel.Tracer("agentdesk/bant-detector")

const maxValueLength = 200

// Answer detection only trusts short replies.
const (
	maxAnswerWords   = 12
	answerConfidence = 0.5
)

// questionOrder checks the narrower question vocabularies first.
var questionOrder = []Dimension{Budget, Timeline, Authority, Need}

// Need clauses that only defer to someone else are authority signals.
var deferralClause = regexp.MustCompile(`(?i)^to\s+(?:check|talk|speak|ask|consult|run|think|get approval|get sign)`)

type pattern struct {
	regex      *regexp.Regexp
	confidence float64
	keyword    string
	value      func(match []string) string
}

// group uses capture group i as the value.
func group(i int) func([]string) string {
	return func(m []string) string {
		if i < len(m) {
			return m[i]
		}
		return ""
	}
}

func needClause(i int) func([]string) string {
	return func(m []string) string {
		if i >= len(m) || deferralClause.MatchString(m[i]) {
			return ""
		}
		return m[i]
	}
}

func fixed(v string) func([]string) string {
	return func([]string) string { return v }
}

func prefixed(prefix string, i int) func([]string) string {
	return func(m []string) string {
		if i < len(m) && m[i] != "" {
			return prefix + strings.ToLower(m[i])
		}
		return ""
	}
}

func lower(i int) func([]string) string {
	return func(m []string) string {
		if i < len(m) {
			return strings.ToLower(m[i])
		}
		return ""
	}
}

func joined(i, j int) func([]string) string {
	return func(m []string) string {
		if j < len(m) {
			return strings.ToLower(m[i]) + " " + m[j]
		}
		return ""
	}
}

// Detector finds BANT signals with ordered regular expressions. Within a
// dimension the first pattern that matches wins, regardless of confidence.
type Detector struct {
	logger    *logging.Logger
	patterns  map[Dimension][]pattern
	questions map[Dimension]*regexp.Regexp
	dismissal *regexp.Regexp
}

// NewDetector creates a detector with the built-in pattern tables.
func NewDetector(logger *logging.Logger) *Detector {
	if logger == nil {
		logger = logging.Default()
	}

	d := &Detector{logger: logger, patterns: make(map[Dimension][]pattern)}

	amount := `\$\s?\d[\d,]*(?:\.\d+)?(?:\s?(?:k|m|thousand|million)\b)?(?:\s*(?:per|a|/)\s*(?:month|year|mo|yr)\b)?`

	d.patterns[Budget] = []pattern{
		{regex: regexp.MustCompile(`(?i)\b(?:budget|spend|invest|afford|pay)[^.?!$\d]{0,40}(` + amount + `)`), confidence: 0.9, keyword: "budget amount", value: group(1)},
		{regex: regexp.MustCompile(`(?i)(` + amount + `)`), confidence: 0.75, keyword: "dollar amount", value: group(1)},
		{regex: regexp.MustCompile(`(?i)\b(\d[\d,]*(?:\.\d+)?\s?(?:k|thousand|million|grand)(?:\s*(?:per|a|/)\s*(?:month|year))?|\d[\d,]*(?:\.\d+)?\s?(?:dollars|usd|bucks))\b`), confidence: 0.7, keyword: "spelled amount", value: group(1)},
		{regex: regexp.MustCompile(`(?i)\b(budget (?:is |has been |was )?(?:approved|allocated|set aside|signed off))\b`), confidence: 0.65, keyword: "approved budget", value: lower(1)},
		{regex: regexp.MustCompile(`(?i)\b(no budget|limited budget|tight budget|small budget|budget (?:is|was) (?:tight|limited|small)|(?:don'?t|do not) have (?:a|any) budget)\b`), confidence: 0.6, keyword: "budget constraint", value: lower(1)},
	}

	roles := `ceo|cfo|cto|coo|cmo|founder|co-founder|owner|president|vp(?: of \w+)?|vice president(?: of \w+)?|director(?: of \w+)?|head of \w+|manager|procurement lead`
	approvers := `boss|manager|ceo|cfo|cto|team|partner|partners|board|director|vp|head of \w+|supervisor`

	d.patterns[Authority] = []pattern{
		{regex: regexp.MustCompile(`(?i)\bI(?:'m| am)\s+(?:the\s+)?(?:final\s+|main\s+|only\s+)?decision[- ]?maker\b`), confidence: 0.95, keyword: "self decision maker", value: fixed("decision maker")},
		{regex: regexp.MustCompile(`(?i)\bI\s+(?:make|sign off on|approve|own)\s+(?:the\s+|all\s+|our\s+)?(?:final\s+)?(?:decisions?|call|purchases?|purchasing|budget)\b`), confidence: 0.9, keyword: "makes decisions", value: fixed("decision maker")},
		{regex: regexp.MustCompile(`(?i)\b(?:need|have)\s+to\s+(?:check|run (?:it|this) by|talk|speak|consult|get (?:approval|sign[- ]off))\s+(?:with\s+|from\s+|to\s+)?(?:my\s+|our\s+|the\s+)?(` + approvers + `)\b`), confidence: 0.85, keyword: "needs approval", value: prefixed("needs approval from ", 1)},
		{regex: regexp.MustCompile(`(?i)\bI(?:'m| am)\s+(?:the\s+|a\s+|an\s+|our\s+)?(` + roles + `)\b`), confidence: 0.8, keyword: "stated role", value: lower(1)},
		{regex: regexp.MustCompile(`(?i)\b(?:my|our)\s+(` + approvers + `)\s+(?:decides|will decide|makes the (?:final )?(?:call|decision)|has (?:the )?final say|signs off)\b`), confidence: 0.75, keyword: "decided by other", value: prefixed("decided by ", 1)},
		{regex: regexp.MustCompile(`(?i)\b(?:we|the team)\s+(?:decide|make (?:the )?decisions?)\s+(?:together|as a team|jointly|by committee)\b`), confidence: 0.6, keyword: "committee", value: fixed("committee decision")},
	}

	clause := `([^.?!\n]{3,200})`
	d.patterns[Need] = []pattern{
		{regex: regexp.MustCompile(`(?i)\b(?:we|i)\s+(?:really\s+|urgently\s+|also\s+)?need\s+` + clause), confidence: 0.85, keyword: "stated need", value: needClause(1)},
		{regex: regexp.MustCompile(`(?i)\b(?:looking for|searching for|in the market for|shopping for|evaluating)\s+` + clause), confidence: 0.8, keyword: "looking for", value: group(1)},
		{regex: regexp.MustCompile(`(?i)\b(?:struggling with|problem with|issue with|issues with|pain point is|challenge is|frustrated with|having trouble with)\s+` + clause), confidence: 0.75, keyword: "pain point", value: group(1)},
		{regex: regexp.MustCompile(`(?i)\b(?:want to|would like to|hoping to|trying to)\s+(improve|automate|reduce|increase|replace|streamline|scale|fix|migrate)\s+` + clause), confidence: 0.7, keyword: "goal", value: joined(1, 2)},
		{regex: regexp.MustCompile(`(?i)\binterested in\s+` + clause), confidence: 0.6, keyword: "interest", value: group(1)},
	}

	months := `january|february|march|april|may|june|july|august|september|october|november|december`
	d.patterns[Timeline] = []pattern{
		{regex: regexp.MustCompile(`(?i)\b(asap|as soon as possible|immediately|right away|urgently)\b`), confidence: 0.9, keyword: "urgent", value: lower(1)},
		{regex: regexp.MustCompile(`(?i)\b((?:within|in)\s+(?:the\s+)?(?:next\s+)?(?:\d+|(?:a\s+)?few|(?:a\s+)?couple(?:\s+of)?|a|an|one|two|three|four|five|six)\s+(?:days?|weeks?|months?|quarters?|years?))\b`), confidence: 0.85, keyword: "relative window", value: lower(1)},
		{regex: regexp.MustCompile(`(?i)\b((?:by|before)\s+(?:the\s+)?(?:end of (?:the\s+)?(?:week|month|quarter|year)|` + months + `|q[1-4]|next (?:week|month|quarter|year)))\b`), confidence: 0.85, keyword: "deadline", value: lower(1)},
		{regex: regexp.MustCompile(`(?i)\b((?:next|this|coming)\s+(?:week|month|quarter|year|spring|summer|fall|autumn|winter))\b`), confidence: 0.8, keyword: "named period", value: lower(1)},
		{regex: regexp.MustCompile(`(?i)\b(q[1-4](?:\s+\d{4})?)\b`), confidence: 0.75, keyword: "quarter", value: func(m []string) string { return strings.ToUpper(m[1]) }},
		{regex: regexp.MustCompile(`(?i)\b(end of (?:the\s+)?(?:week|month|quarter|year))\b`), confidence: 0.75, keyword: "period end", value: lower(1)},
		{regex: regexp.MustCompile(`(?i)\b(?:no rush|not in a hurry|just (?:browsing|researching|exploring)|no (?:fixed|set) timeline)\b`), confidence: 0.6, keyword: "no urgency", value: fixed("no urgency")},
	}

	d.questions = map[Dimension]*regexp.Regexp{
		Budget:    regexp.MustCompile(`(?i)\b(budget|price range|how much (?:are you|would you|do you|can you)|spend|invest)`),
		Authority: regexp.MustCompile(`(?i)\b(decision|decide|who else|signs? off|approv|stakeholder|in charge)`),
		Need:      regexp.MustCompile(`(?i)\b(looking for|what (?:do you|would you) need|problem|challenge|goal|pain point|use case|what brings you|how can (?:i|we) help)`),
		Timeline:  regexp.MustCompile(`(?i)\b(when|timeline|timeframe|time frame|how soon|deadline|start date)`),
	}
	d.dismissal = regexp.MustCompile(`(?i)^\s*(?:not sure|i don'?t know|dunno|no idea|skip|n/?a|no comment|prefer not to say|hmm+|ok(?:ay)?|thanks?(?: you)?)\s*[.!]*\s*$`)

	return d
}

// Detect runs every dimension independently and returns at most one signal per
// dimension in canonical order.
func (d *Detector) Detect(ctx context.Context, text string) []Signal {
	_, span := detectorTracer.Start(ctx, "bant.detect")
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var signals []Signal
	for _, dim := range Dimensions {
		for _, p := range d.patterns[dim] {
			m := p.regex.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			value := normalizeValue(p.value(m))
			if value == "" {
				continue
			}
			signals = append(signals, Signal{
				Dimension:  dim,
				Value:      value,
				Confidence: p.confidence,
				Source:     SourceHeuristic,
				Matched:    p.keyword,
			})
			break
		}
	}

	span.SetAttributes(attribute.Int("bant.signals", len(signals)))
	if len(signals) > 0 {
		d.logger.Debug("bant signals detected", "count", len(signals))
	}
	return signals
}

// QuestionDimension returns the dimension an assistant message asks about, if any.
func (d *Detector) QuestionDimension(assistant string) (Dimension, bool) {
	if !strings.Contains(assistant, "?") {
		return "", false
	}
	// Only the last question counts; earlier sentences are usually acknowledgements.
	question := assistant[:strings.LastIndex(assistant, "?")+1]
	if i := strings.LastIndexAny(question[:len(question)-1], ".?!\n"); i >= 0 {
		question = question[i+1:]
	}
	for _, dim := range questionOrder {
		if d.questions[dim].MatchString(question) {
			return dim, true
		}
	}
	return "", false
}

// DetectAnswer attributes a short reply to the BANT question the assistant
// just asked.
func (d *Detector) DetectAnswer(lastAssistant, reply string) []Signal {
	dim, ok := d.QuestionDimension(lastAssistant)
	if !ok {
		return nil
	}
	reply = strings.TrimSpace(reply)
	if reply == "" || strings.HasSuffix(reply, "?") || d.dismissal.MatchString(reply) {
		return nil
	}
	if len(strings.Fields(reply)) > maxAnswerWords {
		return nil
	}
	value := normalizeValue(reply)
	if value == "" {
		return nil
	}
	return []Signal{{
		Dimension:  dim,
		Value:      value,
		Confidence: answerConfidence,
		Source:     SourceAnswer,
		Matched:    "answer to " + string(dim) + " question",
	}}
}

// Analyze combines Detect on the message with answer detection against the
// previous assistant turn. Heuristic matches take precedence.
func (d *Detector) Analyze(ctx context.Context, lastAssistant, message string) []Signal {
	signals := d.Detect(ctx, message)
	for _, ans := range d.DetectAnswer(lastAssistant, message) {
		if !hasDimension(signals, ans.Dimension) {
			signals = append(signals, ans)
		}
	}
	return signals
}

func hasDimension(signals []Signal, dim Dimension) bool {
	for _, s := range signals {
		if s.Dimension == dim {
			return true
		}
	}
	return false
}

func normalizeValue(v string) string {
	v = strings.Join(strings.Fields(v), " ")
	v = strings.TrimRight(v, " ,;:-")
	if r := []rune(v); len(r) > maxValueLength {
		v = strings.TrimSpace(string(r[:maxValueLength]))
	}
	return v
}
