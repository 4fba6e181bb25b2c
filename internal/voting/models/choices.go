package models

import (
	id "agora/pkg/domain"
	pstrings "agora/pkg/platform/strings"
)

// DedupeChoices trims choices, drops empty values and duplicates. Order is preserved.
func DedupeChoices(values []id.ChoiceID) []id.ChoiceID {
	if values == nil {
		return []id.ChoiceID{}
	}
	return pstrings.DedupeAndTrim(values)
}

// ChoiceDelta returns per-choice adjustments turning previous into next.
// Choices present in both are omitted.
func ChoiceDelta(previous, next []id.ChoiceID) map[id.ChoiceID]int {
	delta := make(map[id.ChoiceID]int)
	for _, c := range previous {
		delta[c]--
	}
	for _, c := range next {
		delta[c]++
	}
	for c, d := range delta {
		if d == 0 {
			delete(delta, c)
		}
	}
	return delta
}

// CountChoices returns +1 for every choice.
func CountChoices(choices []id.ChoiceID) map[id.ChoiceID]int {
	out := make(map[id.ChoiceID]int, len(choices))
	for _, c := range choices {
		out[c]++
	}
	return out
}
