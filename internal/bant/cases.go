package bant

// Case is a sample visitor message with the values the detector should find.
// A dimension absent from Expect must not be detected.
type Case struct {
	Name          string
	LastAssistant string
	Message       string
	Expect        map[Dimension]string
}

// Cases returns the reference conversations used by the detector tests and the
// smoke suite's offline BANT check.
func Cases() []Case {
	return []Case{
		{
			Name:    "budget with keyword",
			Message: "Our budget is around $50k for this project.",
			Expect:  map[Dimension]string{Budget: "$50k"},
		},
		{
			Name:    "monthly budget",
			Message: "We can spend $2,500 per month on tooling.",
			Expect:  map[Dimension]string{Budget: "$2,500 per month"},
		},
		{
			Name:    "spelled amount",
			Message: "probably 20 grand, maybe a little more",
			Expect:  map[Dimension]string{Budget: "20 grand"},
		},
		{
			Name:    "decision maker",
			Message: "I'm the decision maker here.",
			Expect:  map[Dimension]string{Authority: "decision maker"},
		},
		{
			Name:    "needs approval",
			Message: "I need to check with my boss before we commit.",
			Expect:  map[Dimension]string{Authority: "needs approval from boss"},
		},
		{
			Name:    "stated role",
			Message: "I am the CTO at a 40 person startup.",
			Expect:  map[Dimension]string{Authority: "cto"},
		},
		{
			Name:    "looking for",
			Message: "We're looking for a CRM that integrates with Slack.",
			Expect:  map[Dimension]string{Need: "a CRM that integrates with Slack"},
		},
		{
			Name:    "pain point",
			Message: "Honestly we are struggling with lead follow-up",
			Expect:  map[Dimension]string{Need: "lead follow-up"},
		},
		{
			Name:    "urgent timeline",
			Message: "We need this ASAP!",
			Expect:  map[Dimension]string{Need: "this ASAP", Timeline: "asap"},
		},
		{
			Name:    "relative window",
			Message: "Hoping to roll it out within 2 weeks.",
			Expect:  map[Dimension]string{Timeline: "within 2 weeks"},
		},
		{
			Name:    "quarter deadline",
			Message: "It has to be live by Q3.",
			Expect:  map[Dimension]string{Timeline: "by q3"},
		},
		{
			Name:    "full bant",
			Message: "I'm the VP of Sales, we need a better pipeline dashboard, budget is $30k and we want it next quarter.",
			Expect: map[Dimension]string{
				Budget:    "$30k",
				Authority: "vp of sales",
				Need:      "a better pipeline dashboard, budget is $30k and we want it next quarter",
				Timeline:  "next quarter",
			},
		},
		{
			Name:          "short answer to authority question",
			LastAssistant: "Great! Who else is involved in the decision?",
			Message:       "Just me and my co-founder",
			Expect:        map[Dimension]string{Authority: "Just me and my co-founder"},
		},
		{
			Name:          "dismissive answer",
			LastAssistant: "What budget range are you working with?",
			Message:       "not sure",
			Expect:        map[Dimension]string{},
		},
		{
			Name:    "small talk",
			Message: "Hi there, how are you today?",
			Expect:  map[Dimension]string{},
		},
	}
}
