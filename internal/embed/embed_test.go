package embed

import (
	"context"
	"math"
	"testing"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(384, 42)
	v1, err := e.EncodeSingle(context.Background(), "the quick brown fox")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	v2, err := e.EncodeSingle(context.Background(), "the quick brown fox")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(v1) != len(v2) {
		t.Fatalf("length mismatch: %d vs %d", len(v1), len(v2))
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("non-deterministic at index %d: %v vs %v", i, v1[i], v2[i])
		}
	}
}

func TestHashEmbedder_UnitNorm(t *testing.T) {
	e := NewHashEmbedder(384, 0)
	texts := []string{"hello world", "", "a", "ab", "lorem ipsum dolor sit amet"}
	vecs, err := e.EncodeBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for i, v := range vecs {
		n := Norm(v)
		if math.Abs(n-1) > 1e-6 {
			t.Fatalf("text %q: norm %v not within 1e-6 of 1", texts[i], n)
		}
	}
}

func TestHashEmbedder_DimensionMatchesConfig(t *testing.T) {
	e := NewHashEmbedder(384, 1)
	v, err := e.EncodeSingle(context.Background(), "dimension check")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(v) != 384 {
		t.Fatalf("expected dim 384, got %d", len(v))
	}
	if e.Dimension() != 384 {
		t.Fatalf("Dimension() = %d, want 384", e.Dimension())
	}
}

func TestHashEmbedder_EmptyBatchNotError(t *testing.T) {
	e := NewHashEmbedder(384, 0)
	out, err := e.EncodeBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("expected no error for empty batch, got %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil result for empty batch, got %v", out)
	}
}

func TestHashEmbedder_InvalidUTF8(t *testing.T) {
	e := NewHashEmbedder(384, 0)
	invalid := string([]byte{0xff, 0xfe, 0xfd})
	_, err := e.EncodeBatch(context.Background(), []string{invalid})
	if err == nil {
		t.Fatal("expected error for invalid UTF-8 input")
	}
}

func TestHashEmbedder_DifferentTextsDiffer(t *testing.T) {
	e := NewHashEmbedder(384, 7)
	v1, _ := e.EncodeSingle(context.Background(), "alpha beta gamma")
	v2, _ := e.EncodeSingle(context.Background(), "completely different text here")
	same := true
	for i := range v1 {
		if v1[i] != v2[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("expected different texts to produce different vectors")
	}
}
