package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"intranet/types"
)

func rerankCandidates() []types.RetrievalResult {
	return []types.RetrievalResult{
		mkResult("first excerpt", "a.pdf", 0.1),
		mkResult("second excerpt", "b.pdf", 0.4),
		mkResult("third excerpt", "c.pdf", 0.7),
		mkResult("fourth excerpt", "d.pdf", 0.9),
	}
}

func TestRerankModelOrderWins(t *testing.T) {
	cands := rerankCandidates()
	r := NewReranker(&stubLLM{replies: []string{"[2, 0, 3]"}}, testLogger())

	selected, fellBack := r.Rerank(context.Background(), "q", cands, 3)
	if fellBack {
		t.Fatal("valid reply must not trigger the fallback")
	}
	if len(selected) != 3 {
		t.Fatalf("expected 3 selected, got %d", len(selected))
	}
	if selected[0].Chunk.Text != "third excerpt" || selected[1].Chunk.Text != "first excerpt" {
		t.Fatal("model relevance order was not preserved")
	}
}

func TestRerankDropsInvalidIDs(t *testing.T) {
	cands := rerankCandidates()
	r := NewReranker(&stubLLM{replies: []string{"[9, 1, 1, -2]"}}, testLogger())

	selected, fellBack := r.Rerank(context.Background(), "q", cands, 3)
	if fellBack {
		t.Fatal("partially valid reply must not trigger the fallback")
	}
	if len(selected) != 1 || selected[0].Chunk.Text != "second excerpt" {
		t.Fatalf("expected only candidate 1, got %d items", len(selected))
	}
}

func TestRerankFallbackOnGarbage(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"prose", "The most relevant excerpts are the first and second ones."},
		{"object array", `[{"id": "one"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cands := rerankCandidates()
			r := NewReranker(&stubLLM{replies: []string{tt.reply}}, testLogger())

			selected, fellBack := r.Rerank(context.Background(), "q", cands, 2)
			if !fellBack {
				t.Fatal("expected fallback")
			}
			if len(selected) != 2 {
				t.Fatalf("fallback must return topK candidates, got %d", len(selected))
			}
			if selected[0].Chunk.Text != "first excerpt" || selected[1].Chunk.Text != "second excerpt" {
				t.Fatal("fallback must keep the original distance order")
			}
		})
	}
}

func TestRerankEmptySelectionIsNotFallback(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"empty array", "[]"},
		{"all out of range", "[7, 8, 9]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cands := rerankCandidates()
			r := NewReranker(&stubLLM{replies: []string{tt.reply}}, testLogger())

			selected, fellBack := r.Rerank(context.Background(), "q", cands, 2)
			if fellBack {
				t.Fatal("a parsed reply selecting nothing is not a fallback")
			}
			if len(selected) != 0 {
				t.Fatalf("expected empty selection, got %d candidates", len(selected))
			}
		})
	}
}

func TestRerankFallbackOnModelError(t *testing.T) {
	cands := rerankCandidates()
	r := NewReranker(&stubLLM{errs: []error{errors.New("timeout")}}, testLogger())

	selected, fellBack := r.Rerank(context.Background(), "q", cands, 10)
	if !fellBack {
		t.Fatal("expected fallback on model error")
	}
	if len(selected) != len(cands) {
		t.Fatalf("fallback with topK > len must return all candidates, got %d", len(selected))
	}
}

func TestRerankEmptyInput(t *testing.T) {
	llm := &stubLLM{}
	r := NewReranker(llm, testLogger())

	selected, fellBack := r.Rerank(context.Background(), "q", nil, 3)
	if len(selected) != 0 || fellBack {
		t.Fatal("empty input must return empty without fallback")
	}
	if llm.calls != 0 {
		t.Fatal("empty input must not invoke the model")
	}
}

func TestRerankOutputIsBoundedSubset(t *testing.T) {
	cands := rerankCandidates()
	replies := []string{"[0,1,2,3]", "[3,3,3,3]", "nonsense", "[]", "[2]"}

	for _, reply := range replies {
		r := NewReranker(&stubLLM{replies: []string{reply}}, testLogger())
		selected, _ := r.Rerank(context.Background(), "q", cands, 2)

		if len(selected) > 2 {
			t.Fatalf("reply %q: output exceeds topK (%d)", reply, len(selected))
		}
		byID := make(map[string]bool)
		for _, c := range cands {
			byID[c.Chunk.ID.String()] = true
		}
		for _, s := range selected {
			if !byID[s.Chunk.ID.String()] {
				t.Fatalf("reply %q: selected chunk not drawn from candidates", reply)
			}
		}
	}
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	s := strings.Repeat("я", 300)

	got := truncate(s, 250)
	if !utf8.ValidString(got) {
		t.Fatal("truncation split a multibyte rune")
	}
	if n := utf8.RuneCountInString(got); n != 250 {
		t.Fatalf("rune count = %d, want 250", n)
	}

	if got := truncate("short", 250); got != "short" {
		t.Fatalf("short input must pass through, got %q", got)
	}
}

func TestRerankParsesFencedJSON(t *testing.T) {
	cands := rerankCandidates()
	r := NewReranker(&stubLLM{replies: []string{"```json\n[1, 0]\n```"}}, testLogger())

	selected, fellBack := r.Rerank(context.Background(), "q", cands, 2)
	if fellBack {
		t.Fatal("fenced JSON array should still parse")
	}
	if len(selected) != 2 || selected[0].Chunk.Text != "second excerpt" {
		t.Fatal("unexpected selection from fenced reply")
	}
}
