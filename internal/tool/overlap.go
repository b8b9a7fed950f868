package tool

import "strings"

// The migration tool has no structured error code for "upgrade refused
// because history heads have diverged", so the condition is detected by
// matching its diagnostic text. The match lives in this one function so the
// rest of the orchestrator never inspects raw tool output.

var overlapPhrases = []string{
	"overlapping revisions",
	"multiple head revisions",
	"multiple heads are present",
}

// IsOverlappingRevisions reports whether tool diagnostic output describes
// the diverged-heads upgrade failure.
func IsOverlappingRevisions(output string) bool {
	lower := strings.ToLower(output)
	for _, phrase := range overlapPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// AtAnyHead reports whether any currently recorded revision is one of the
// history's terminal revisions.
func AtAnyHead(current, heads []string) bool {
	headSet := make(map[string]struct{}, len(heads))
	for _, h := range heads {
		headSet[h] = struct{}{}
	}
	for _, c := range current {
		if _, ok := headSet[c]; ok {
			return true
		}
	}
	return false
}
