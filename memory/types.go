package memory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Reserved metadata keys written by the service itself.
const (
	// MetaSharedFrom records the source persona on a cross-persona copy.
	MetaSharedFrom = "shared_from"

	// MetaSharedAt records when a cross-persona copy was created.
	MetaSharedAt = "shared_at"
)

// Content is the opaque payload of a memory item: either free text or a
// structured JSON object. The store preserves which of the two shapes was
// supplied, so a string round-trips as a string and an object as an object.
//
// Example:
//
//	c := memory.TextContent("adopt queue X")
//	c2 := memory.ObjectContent(map[string]any{"decision": "adopt queue X"})
type Content struct {
	// Text holds the payload when the item was created from a string.
	Text string

	// Object holds the payload when the item was created from a map.
	Object map[string]any
}

// TextContent wraps free text as item content.
func TextContent(text string) Content {
	return Content{Text: text}
}

// ObjectContent wraps a structured map as item content.
func ObjectContent(obj map[string]any) Content {
	return Content{Object: obj}
}

// IsObject returns true when the payload is a structured map.
func (c Content) IsObject() bool {
	return c.Object != nil
}

// IsEmpty returns true when the content carries neither text nor an object.
func (c Content) IsEmpty() bool {
	return c.Object == nil && c.Text == ""
}

// Flatten renders the payload as plain text for search, classification,
// and embedding. Object payloads are flattened to "key: value" lines in
// key order so the output is deterministic.
func (c Content) Flatten() string {
	if c.Object == nil {
		return c.Text
	}
	keys := make([]string, 0, len(c.Object))
	for k := range c.Object {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, c.Object[k]))
	}
	return strings.Join(parts, "\n")
}

// MarshalJSON encodes the payload in the shape it was supplied:
// a JSON string for text, a JSON object for maps.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.Object != nil {
		return json.Marshal(c.Object)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON decodes either a JSON string or a JSON object and records
// which shape was seen so the payload round-trips.
func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		obj := make(map[string]any)
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		c.Object = obj
		c.Text = ""
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("%w: content must be a string or an object", ErrInvalidItem)
	}
	c.Text = text
	c.Object = nil
	return nil
}

// Clone returns a deep copy of the content.
func (c Content) Clone() Content {
	if c.Object == nil {
		return Content{Text: c.Text}
	}
	obj := make(map[string]any, len(c.Object))
	for k, v := range c.Object {
		obj[k] = cloneValue(v)
	}
	return Content{Object: obj}
}

// Item is the unit of storage. Items are created by remember, mutated only
// by access tracking and lifecycle promotion, and destroyed by delete, TTL
// expiry in the fast tier, or forgetting-curve pruning.
type Item struct {
	// ID is the opaque, globally unique identifier. Assigned on create,
	// immutable afterwards.
	ID string `json:"id"`

	// Persona is the owning persona from the closed set.
	Persona Persona `json:"persona"`

	// Kind classifies the item and drives routing.
	Kind Kind `json:"kind"`

	// Content is the opaque payload, text or structured.
	Content Content `json:"content"`

	// Importance is a real in [0,1] driving eviction weight and ranking.
	Importance float64 `json:"importance"`

	// CreatedAt is the creation time in UTC.
	CreatedAt time.Time `json:"timestamp"`

	// LastAccess is the last read or write time. Monotonic.
	LastAccess time.Time `json:"last_access"`

	// AccessCount counts successful recalls of this item. Monotonic.
	AccessCount int `json:"access_count"`

	// Tags are short strings used for filtering.
	Tags []string `json:"tags,omitempty"`

	// Metadata is a small free-form mapping. The keys MetaSharedFrom and
	// MetaSharedAt are reserved for cross-persona copies.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Embedding is the optional content vector of the configured
	// dimension, materialized lazily when the kind needs semantic search.
	Embedding []float32 `json:"embedding,omitempty"`
}

// Result is a search hit: the item plus its relevance score and the name
// of the backend that produced it. Results are ordered by descending score.
type Result struct {
	Item

	// Score is the relevance of this result to the query. For the vector
	// tier this is cosine similarity in [0,1]; for the fast tier it is the
	// importance weight; for the durable tier a match rank.
	Score float64 `json:"score"`

	// Source names the backend the hit came from.
	Source string `json:"source,omitempty"`
}

// String returns a human-readable representation of the Item.
func (i *Item) String() string {
	data, _ := json.MarshalIndent(i, "", "  ")
	return string(data)
}

// GetMetadata retrieves a metadata value by key, returning the value and
// whether it was found.
//
// Example:
//
//	if src, ok := item.GetMetadata(memory.MetaSharedFrom); ok {
//	    fmt.Printf("copied from %v\n", src)
//	}
func (i *Item) GetMetadata(key string) (any, bool) {
	if i.Metadata == nil {
		return nil, false
	}
	val, ok := i.Metadata[key]
	return val, ok
}

// SetMetadata sets a metadata value for the given key, initializing the
// map if needed.
func (i *Item) SetMetadata(key string, value any) {
	if i.Metadata == nil {
		i.Metadata = make(map[string]any)
	}
	i.Metadata[key] = value
}

// HasMetadata checks if a metadata key exists.
func (i *Item) HasMetadata(key string) bool {
	_, ok := i.GetMetadata(key)
	return ok
}

// IsShared reports whether the item is a cross-persona copy produced by
// a share operation.
func (i *Item) IsShared() bool {
	return i.HasMetadata(MetaSharedFrom)
}

// HasTag reports whether the item carries the given tag.
func (i *Item) HasTag(tag string) bool {
	for _, t := range i.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Touch records a successful recall: it bumps AccessCount and advances
// LastAccess. LastAccess never moves backwards.
func (i *Item) Touch(now time.Time) {
	i.AccessCount++
	if now.After(i.LastAccess) {
		i.LastAccess = now
	}
}

// Age returns the duration since the item was created.
func (i *Item) Age(now time.Time) time.Duration {
	return now.Sub(i.CreatedAt)
}

// Clone creates a deep copy of the Item. Useful when a caller needs to
// mutate a copy (for example, a cross-persona share) without affecting
// the stored original.
func (i *Item) Clone() *Item {
	clone := &Item{
		ID:          i.ID,
		Persona:     i.Persona,
		Kind:        i.Kind,
		Content:     i.Content.Clone(),
		Importance:  i.Importance,
		CreatedAt:   i.CreatedAt,
		LastAccess:  i.LastAccess,
		AccessCount: i.AccessCount,
	}

	if i.Tags != nil {
		clone.Tags = make([]string, len(i.Tags))
		copy(clone.Tags, i.Tags)
	}

	if i.Metadata != nil {
		clone.Metadata = make(map[string]any, len(i.Metadata))
		for k, v := range i.Metadata {
			clone.Metadata[k] = cloneValue(v)
		}
	}

	if i.Embedding != nil {
		clone.Embedding = make([]float32, len(i.Embedding))
		copy(clone.Embedding, i.Embedding)
	}

	return clone
}

// Validate checks the invariants a well-formed item must satisfy before it
// reaches any backend.
func (i *Item) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidItem)
	}
	if err := i.Persona.Validate(); err != nil {
		return err
	}
	if err := i.Kind.Validate(); err != nil {
		return err
	}
	if i.Importance < 0 || i.Importance > 1 {
		return fmt.Errorf("%w: importance %v outside [0,1]", ErrInvalidItem, i.Importance)
	}
	if i.Content.IsEmpty() {
		return fmt.Errorf("%w: empty content", ErrInvalidItem)
	}
	return nil
}

// cloneValue creates a deep copy of a value using JSON marshaling.
// This works for any JSON-serializable value.
func cloneValue(v any) any {
	if v == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return v
	}

	var clone any
	if err := json.Unmarshal(data, &clone); err != nil {
		return v
	}

	return clone
}
