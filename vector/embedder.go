package vector

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultDimensions is the embedding width used when none is configured.
const DefaultDimensions = 256

// Embedder generates vector embeddings for text. The service ships a
// deterministic hash embedder; callers plug in a model-backed
// implementation through the service options when they have one.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the dimensionality of embeddings.
	Dimensions() int

	// Name returns the embedder name.
	Name() string
}

// HashEmbedder is the built-in deterministic embedder. It hashes tokens
// into a fixed number of buckets and L2-normalizes the counts, so texts
// sharing many tokens score high cosine similarity and disjoint texts
// score near zero. It needs no external service and always produces the
// same vector for the same text.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a hash embedder with the given dimensionality.
// Values below 1 fall back to DefaultDimensions.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim < 1 {
		dim = DefaultDimensions
	}
	return &HashEmbedder{dim: dim}
}

// Embed hashes each token into a bucket and normalizes the result to
// unit length. Empty or token-free text yields the zero vector.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)

	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%e.dim]++
	}

	var magnitude float64
	for _, v := range vec {
		magnitude += float64(v * v)
	}
	if magnitude == 0 {
		return vec, nil
	}

	norm := float32(math.Sqrt(magnitude))
	for i := range vec {
		vec[i] /= norm
	}

	return vec, nil
}

// Dimensions returns the configured embedding width.
func (e *HashEmbedder) Dimensions() int {
	return e.dim
}

// Name returns the embedder name.
func (e *HashEmbedder) Name() string {
	return "hash-fnv32a"
}

// tokenize lowercases the text and splits it on anything that is not a
// letter or digit, dropping single-character fragments.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical, 0 means orthogonal.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dotProduct, aMagnitude, bMagnitude float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i] * b[i])
		aMagnitude += float64(a[i] * a[i])
		bMagnitude += float64(b[i] * b[i])
	}

	if aMagnitude == 0 || bMagnitude == 0 {
		return 0, nil
	}

	return dotProduct / (math.Sqrt(aMagnitude) * math.Sqrt(bMagnitude)), nil
}
