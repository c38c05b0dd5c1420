package bant

import (
	"strings"
	"time"
)

// Merge applies signals to a copy of m. An unknown field is always filled; a
// known field is replaced only by a strictly more confident signal. The
// returned dimensions are the fields that changed.
func Merge(m Memory, signals []Signal, now time.Time) (Memory, []Dimension) {
	out := m.Clone()
	var changed []Dimension
	for _, sig := range signals {
		value := strings.TrimSpace(sig.Value)
		if value == "" {
			continue
		}
		current := out.Get(sig.Dimension)
		if current != nil {
			if sig.Confidence <= out.Confidence[sig.Dimension] || *current == value {
				continue
			}
		}
		v := value
		out.set(sig.Dimension, &v)
		if out.Confidence == nil {
			out.Confidence = make(map[Dimension]float64, len(Dimensions))
		}
		out.Confidence[sig.Dimension] = clamp01(sig.Confidence)
		if !containsDimension(changed, sig.Dimension) {
			changed = append(changed, sig.Dimension)
		}
	}
	if len(changed) > 0 {
		ts := now.UTC()
		out.UpdatedAt = &ts
	}
	return out, changed
}

func containsDimension(dims []Dimension, d Dimension) bool {
	for _, x := range dims {
		if x == d {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
