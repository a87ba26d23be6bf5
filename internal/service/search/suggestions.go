package search

import "strings"

// VisibleSuggestions returns the suggestions to show for input. The list is
// hidden when empty, or when its only entry is the input itself.
func VisibleSuggestions(hits []QuerySuggestion, input string) []QuerySuggestion {
	if len(hits) == 0 {
		return nil
	}
	if len(hits) == 1 && strings.EqualFold(hits[0].Query, input) {
		return nil
	}
	return hits
}
