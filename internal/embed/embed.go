// Package embed implements the Embedder contract (spec §4.2): a pure,
// deterministic, bitwise-stable mapping from text to a fixed-dimension
// L2-normalized vector.
package embed

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"unicode/utf8"
)

// Errors per spec §4.2 failure modes.
var (
	ErrInvalidInput     = errors.New("embed: invalid input (not valid UTF-8)")
	ErrModelUnavailable = errors.New("embed: model unavailable")
)

// Embedder converts text to embedding vectors.
type Embedder interface {
	// EncodeBatch returns one D-dimensional unit vector per input text.
	// An empty batch returns an empty (nil) matrix, not an error.
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
	// EncodeSingle is a convenience wrapper around EncodeBatch.
	EncodeSingle(ctx context.Context, text string) ([]float32, error)
	// Name returns a model identifier string.
	Name() string
	// Dimension returns the embedding dimensionality.
	Dimension() int
}

// HashEmbedder is a dependency-free, deterministic embedder: it hashes
// byte trigrams of the input into a fixed-size vector and L2-normalizes
// the result. Grounded on the teacher's deterministicEmbedder
// (internal/rag/embedder/embedder.go), generalized to the spec's fixed
// D=384 and strict bitwise-determinism contract.
type HashEmbedder struct {
	dim  int
	seed uint64
	name string
}

// NewHashEmbedder constructs a HashEmbedder with the spec's default
// dimension (384) unless dim is overridden.
func NewHashEmbedder(dim int, seed uint64) *HashEmbedder {
	if dim <= 0 {
		dim = 384
	}
	return &HashEmbedder{dim: dim, seed: seed, name: "hash-ngram-v1"}
}

func (e *HashEmbedder) Name() string   { return e.name }
func (e *HashEmbedder) Dimension() int { return e.dim }

func (e *HashEmbedder) EncodeBatch(_ context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if !utf8.ValidString(t) {
			return nil, ErrInvalidInput
		}
		out[i] = e.encodeOne(t)
	}
	return out, nil
}

func (e *HashEmbedder) EncodeSingle(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (e *HashEmbedder) encodeOne(s string) []float32 {
	v := make([]float32, e.dim)
	b := []byte(s)
	if len(b) == 0 {
		// The zero vector cannot be normalized to unit length; fall back to
		// a fixed basis vector so the "embedding present" invariant and the
		// unit-norm invariant both hold for empty text.
		v[0] = 1
		return v
	}
	if len(b) < 3 {
		addGram(e.seed, b, v)
	} else {
		for i := 0; i <= len(b)-3; i++ {
			addGram(e.seed, b[i:i+3], v)
		}
	}
	normalize(v)
	return v
}

func addGram(seed uint64, gram []byte, v []float32) {
	h := fnv.New64a()
	if seed != 0 {
		var tmp [8]byte
		for i := 0; i < 8; i++ {
			tmp[i] = byte(seed >> (8 * i))
		}
		_, _ = h.Write(tmp[:])
	}
	_, _ = h.Write(gram)
	hv := h.Sum64()
	idx := int(hv % uint64(len(v)))
	w := float32(int32(hv>>32)) / float32(1<<31)
	v[idx] += w
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		v[0] = 1
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

// Norm returns the L2 norm of v, used by callers to assert the
// unit-vector invariant (spec §8).
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
