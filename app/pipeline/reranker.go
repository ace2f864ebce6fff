package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"intranet/types"

	"go.uber.org/zap"
)

// excerptPrefixLen bounds how much of each candidate the reranking prompt
// carries; full chunks would blow the prompt budget for no precision gain.
const excerptPrefixLen = 400

type excerpt struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// Reranker asks the model to pick the most relevant subset of the retrieved
// candidates. Its output is always a subset of its input: ids the model
// fabricates are dropped, possibly leaving an empty selection. Transport and
// parse failures fall back to the first topK candidates in their original
// distance order.
type Reranker struct {
	llm    TextGenerator
	logger *zap.Logger
}

func NewReranker(llm TextGenerator, logger *zap.Logger) *Reranker {
	return &Reranker{llm: llm, logger: logger}
}

// Rerank returns at most topK candidates in the model's relevance order. The
// second return reports whether the truncation fallback fired, so callers and
// tests can tell a model selection from a degraded one.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []types.RetrievalResult, topK int) ([]types.RetrievalResult, bool) {
	if len(candidates) == 0 {
		return nil, false
	}
	if topK <= 0 {
		topK = defaultRerankTopK
	}

	excerpts := make([]excerpt, len(candidates))
	for i, c := range candidates {
		excerpts[i] = excerpt{ID: i, Text: truncate(c.Chunk.Text, excerptPrefixLen)}
	}

	encoded, err := json.MarshalIndent(excerpts, "", "  ")
	if err != nil {
		r.logger.Warn("encode excerpts failed, falling back to distance order", zap.Error(err))
		return head(candidates, topK), true
	}

	reply, err := r.llm.Complete(ctx, rerankPrompt(query, topK, string(encoded)))
	if err != nil {
		r.logger.Warn("rerank model unavailable, falling back to distance order", zap.Error(err))
		return head(candidates, topK), true
	}

	ids, ok := parseIDArray(reply)
	if !ok {
		r.logger.Warn("rerank reply unparseable, falling back to distance order",
			zap.String("reply", truncate(reply, 200)))
		return head(candidates, topK), true
	}

	seen := make(map[int]struct{}, len(ids))
	selected := make([]types.RetrievalResult, 0, topK)
	for _, id := range ids {
		if id < 0 || id >= len(candidates) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		selected = append(selected, candidates[id])
		if len(selected) == topK {
			break
		}
	}

	// A parsed reply that selects nothing is a decision, not a failure: the
	// model judged no excerpt relevant, and generation proceeds on an empty
	// set. Only transport and parse failures substitute distance order.
	return selected, false
}

func rerankPrompt(query string, topK int, encodedExcerpts string) string {
	return fmt.Sprintf(`You are an AI system that selects the most relevant document excerpts.

User question:
%q

Below is a JSON list of document excerpts.
Return a JSON array of EXACTLY %d excerpt IDs
that BEST answer the question.
Return ONLY valid JSON. No explanation.

Excerpts:
%s`, query, topK, encodedExcerpts)
}

// parseIDArray extracts the first JSON array in the reply and decodes it as a
// list of integer ids. Models often wrap the array in prose or code fences,
// so the scan is tolerant of surroundings but strict about the array itself.
func parseIDArray(reply string) ([]int, bool) {
	start := strings.IndexByte(reply, '[')
	end := strings.LastIndexByte(reply, ']')
	if start < 0 || end <= start {
		return nil, false
	}

	var ids []int
	if err := json.Unmarshal([]byte(reply[start:end+1]), &ids); err != nil {
		return nil, false
	}
	return ids, true
}

func head(candidates []types.RetrievalResult, n int) []types.RetrievalResult {
	if len(candidates) <= n {
		return candidates
	}
	return candidates[:n]
}

// truncate bounds s to n characters without splitting a multibyte rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
