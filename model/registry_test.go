package model

import (
	"testing"
	"time"
)

func TestRegistryReturnsSameClientForSameKey(t *testing.T) {
	r := NewRegistry()
	key := ClientKey{BaseURL: "http://localhost:11434", Model: "llama3.2", Timeout: time.Minute}

	a := r.LLM(key)
	b := r.LLM(key)
	if a != b {
		t.Fatal("expected the same client instance for identical keys")
	}

	other := r.LLM(ClientKey{BaseURL: "http://localhost:11434", Model: "mistral", Timeout: time.Minute})
	if a == other {
		t.Fatal("expected distinct clients for distinct models")
	}
}

func TestRegistryEmbedderKeyedSeparately(t *testing.T) {
	r := NewRegistry()
	key := ClientKey{BaseURL: "http://localhost:11434", Model: "nomic-embed-text", Timeout: 30 * time.Second}

	a := r.Embedder(key)
	b := r.Embedder(key)
	if a != b {
		t.Fatal("expected the same embedder instance for identical keys")
	}
}

func TestNormalizeUnitLength(t *testing.T) {
	vec := normalize([]float64{3, 4})
	if diff := vec[0]*vec[0] + vec[1]*vec[1]; diff < 0.999 || diff > 1.001 {
		t.Fatalf("expected unit length vector, got norm^2=%f", diff)
	}

	zero := normalize([]float64{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Fatal("zero vector must pass through unchanged")
	}
}
