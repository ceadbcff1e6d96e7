package memory

import (
	"fmt"
	"strings"
)

// Search limits. Callers may ask for fewer results but never more than
// MaxSearchLimit; a zero limit falls back to DefaultSearchLimit.
const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 100
)

// Query describes a recall request as seen by a backend. The router fans
// a Query out to the tiers that can serve the requested kinds; each tier
// interprets the fields it understands and ignores the rest.
type Query struct {
	// Text is the free-text query. Backends match it as they can: the
	// vector tier embeds it, the fast tier scans flattened payloads, the
	// durable tier uses substring matching.
	Text string `json:"text"`

	// Kinds restricts the search to the given kinds. Empty means all.
	Kinds []Kind `json:"kinds,omitempty"`

	// Tags restricts results to items carrying every listed tag.
	Tags []string `json:"tags,omitempty"`

	// Limit caps the number of results. Zero means DefaultSearchLimit;
	// values above MaxSearchLimit are clamped down.
	Limit int `json:"limit,omitempty"`

	// MinScore drops results scoring below the threshold. The vector
	// tier treats it as minimum cosine similarity.
	MinScore float64 `json:"min_score,omitempty"`
}

// Normalize returns a copy with defaults applied: the limit is clamped to
// [1, MaxSearchLimit] with zero replaced by DefaultSearchLimit, and the
// query text is whitespace-trimmed.
func (q Query) Normalize() Query {
	q.Text = strings.TrimSpace(q.Text)
	if q.Limit <= 0 {
		q.Limit = DefaultSearchLimit
	}
	if q.Limit > MaxSearchLimit {
		q.Limit = MaxSearchLimit
	}
	return q
}

// WantsKind reports whether the query includes the given kind, either
// explicitly or by leaving Kinds empty.
func (q Query) WantsKind(k Kind) bool {
	if len(q.Kinds) == 0 {
		return true
	}
	for _, want := range q.Kinds {
		if want == k {
			return true
		}
	}
	return false
}

// Validate checks that every requested kind is valid and the score
// threshold is sane.
func (q Query) Validate() error {
	for _, k := range q.Kinds {
		if err := k.Validate(); err != nil {
			return err
		}
	}
	if q.MinScore < 0 || q.MinScore > 1 {
		return fmt.Errorf("%w: min score %v outside [0,1]", ErrInvalidQuery, q.MinScore)
	}
	return nil
}

// Matches reports whether an item satisfies the query's kind and tag
// filters. Text relevance is left to the backend.
func (q Query) Matches(item *Item) bool {
	if !q.WantsKind(item.Kind) {
		return false
	}
	for _, tag := range q.Tags {
		if !item.HasTag(tag) {
			return false
		}
	}
	return true
}
