package lifecycle

import (
	"strings"

	"github.com/pantheon-ai/mnemo/memory"
)

// kindKeywords maps long-term kinds to the content markers that select
// them. The tables are checked in order; the first kind with a match
// wins. They are data, not code, so tests can exercise the classifier
// exhaustively and new markers are one-line changes.
var kindKeywords = []struct {
	kind  memory.Kind
	words []string
}{
	{memory.KindProcedural, []string{"method", "algorithm", "process", "steps", "procedure"}},
	{memory.KindSemantic, []string{"concept", "definition", "theory", "principle", "rule"}},
}

// InferLongTerm classifies content being promoted out of working
// memory. Text naming a method or process becomes procedural, text
// naming a concept or rule becomes semantic, and everything else is an
// episode. Matching is case-insensitive substring containment.
func InferLongTerm(text string) memory.Kind {
	lower := strings.ToLower(text)
	for _, entry := range kindKeywords {
		for _, word := range entry.words {
			if strings.Contains(lower, word) {
				return entry.kind
			}
		}
	}
	return memory.KindEpisodic
}

// InferAtCreate classifies brand-new content whose caller supplied no
// kind. The same keyword tables apply, but unmatched content defaults to
// working memory: fresh input stays transient until consolidation
// promotes it.
func InferAtCreate(text string) memory.Kind {
	lower := strings.ToLower(text)
	for _, entry := range kindKeywords {
		for _, word := range entry.words {
			if strings.Contains(lower, word) {
				return entry.kind
			}
		}
	}
	return memory.KindWorking
}
