// Package bant extracts Budget, Authority, Need and Timeline signals from chat
// text and keeps the per-conversation qualification memory.
package bant

import (
	"fmt"
	"strings"
	"time"
)

// Dimension is one of the four BANT qualification fields.
type Dimension string

const (
	Budget    Dimension = "budget"
	Authority Dimension = "authority"
	Need      Dimension = "need"
	Timeline  Dimension = "timeline"
)

// Dimensions lists the fields in canonical order.
var Dimensions = []Dimension{Budget, Authority, Need, Timeline}

// ParseDimension accepts a dimension name in any case.
func ParseDimension(s string) (Dimension, error) {
	d := Dimension(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Dimensions {
		if d == known {
			return d, nil
		}
	}
	return "", fmt.Errorf("bant: unknown dimension %q", s)
}

// Source records how a signal was produced.
type Source string

const (
	SourceHeuristic Source = "heuristic"
	SourceAnswer    Source = "answer"
	SourceLLM       Source = "llm"
)

// Signal is one extracted BANT value.
type Signal struct {
	Dimension  Dimension `json:"dimension"`
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"`
	Source     Source    `json:"source"`
	Matched    string    `json:"matched,omitempty"`
}

// Status summarizes how far a conversation is qualified.
type Status string

const (
	StatusUnqualified Status = "unqualified"
	StatusPartial     Status = "partial"
	StatusQualified   Status = "qualified"
)

// DefaultQualifiedThreshold is the number of known fields that makes a lead qualified.
const DefaultQualifiedThreshold = 3

// Memory is the BANT state of a conversation. A nil field is unknown.
type Memory struct {
	Budget     *string               `json:"budget"`
	Authority  *string               `json:"authority"`
	Need       *string               `json:"need"`
	Timeline   *string               `json:"timeline"`
	Confidence map[Dimension]float64 `json:"confidence,omitempty"`
	UpdatedAt  *time.Time            `json:"updatedAt,omitempty"`
}

// Get returns the value for d, or nil when unknown.
func (m Memory) Get(d Dimension) *string {
	switch d {
	case Budget:
		return m.Budget
	case Authority:
		return m.Authority
	case Need:
		return m.Need
	case Timeline:
		return m.Timeline
	}
	return nil
}

func (m *Memory) set(d Dimension, v *string) {
	switch d {
	case Budget:
		m.Budget = v
	case Authority:
		m.Authority = v
	case Need:
		m.Need = v
	case Timeline:
		m.Timeline = v
	}
}

// Filled counts known fields.
func (m Memory) Filled() int {
	n := 0
	for _, d := range Dimensions {
		if m.Get(d) != nil {
			n++
		}
	}
	return n
}

// Missing lists unknown fields in canonical order.
func (m Memory) Missing() []Dimension {
	var out []Dimension
	for _, d := range Dimensions {
		if m.Get(d) == nil {
			out = append(out, d)
		}
	}
	return out
}

// IsEmpty reports whether nothing is known yet.
func (m Memory) IsEmpty() bool {
	return m.Filled() == 0
}

// Score is 25 points per known field.
func (m Memory) Score() int {
	return m.Filled() * 25
}

// Status maps the filled count onto a qualification status. A threshold below 1
// uses DefaultQualifiedThreshold.
func (m Memory) Status(threshold int) Status {
	if threshold < 1 || threshold > len(Dimensions) {
		threshold = DefaultQualifiedThreshold
	}
	switch filled := m.Filled(); {
	case filled == 0:
		return StatusUnqualified
	case filled >= threshold:
		return StatusQualified
	default:
		return StatusPartial
	}
}

// Clone returns a deep copy.
func (m Memory) Clone() Memory {
	out := Memory{}
	for _, d := range Dimensions {
		if v := m.Get(d); v != nil {
			s := *v
			out.set(d, &s)
		}
	}
	if m.Confidence != nil {
		out.Confidence = make(map[Dimension]float64, len(m.Confidence))
		for k, v := range m.Confidence {
			out.Confidence[k] = v
		}
	}
	if m.UpdatedAt != nil {
		t := *m.UpdatedAt
		out.UpdatedAt = &t
	}
	return out
}
