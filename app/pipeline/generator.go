package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"intranet/types"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

const (
	// UnavailableAnswer is the fixed reply when nothing relevant was
	// retrieved. It is a contract with the frontend, not a suggestion.
	UnavailableAnswer = "The requested information is not available in the internal documents."

	// InsufficientMarker is the sentinel the grounding prompt tells the model
	// to emit when the supplied content does not cover the question.
	InsufficientMarker = "[INSUFFICIENT]"

	ExtractivePrefix  = "Based on internal documents, the most relevant excerpt is:"
	SynthesizedPrefix = "Based on the internal documents, here is the relevant information:"

	noContextConfidence  = 0.20
	extractiveConfidence = 0.25
	selfEvalDefault      = 0.50

	maxContextChars    = 6000
	extractiveMaxChars = 800
	synthesizedPartLen = 400
)

// GenerationMode records which path produced the answer, so callers and tests
// can assert fallback behavior without matching on answer text.
type GenerationMode int

const (
	ModeGrounded GenerationMode = iota
	ModeSynthesized
	ModeExtractive
	ModeNoContext
)

func (m GenerationMode) String() string {
	switch m {
	case ModeGrounded:
		return "grounded"
	case ModeSynthesized:
		return "synthesized"
	case ModeExtractive:
		return "extractive"
	case ModeNoContext:
		return "no_context"
	}
	return "unknown"
}

// Generation is the answer plus everything the orchestrator needs to finish
// the payload: the sources actually used, the production mode, a fixed
// confidence when the path dictates one, and the optional self-eval signal.
type Generation struct {
	Answer          string
	Sources         []string
	Mode            GenerationMode
	Confidence      float64
	FixedConfidence bool
	SelfEval        float64
	HasSelfEval     bool
}

// Generator produces a grounded answer from reranked excerpts. Every failure
// inside it resolves to a defined fallback answer; it never returns an error.
type Generator struct {
	llm     TextGenerator
	logger  *zap.Logger
	encoder *tiktoken.Tiktoken
}

func NewGenerator(llm TextGenerator, logger *zap.Logger) *Generator {
	// Token accounting is best-effort; llama-family prompts are close enough
	// to the cl100k vocabulary for budget logging.
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		logger.Warn("token encoder unavailable, context size logged in bytes only", zap.Error(err))
		encoder = nil
	}
	return &Generator{llm: llm, logger: logger, encoder: encoder}
}

// Generate answers the query from the supplied candidates only. When
// withSelfEval is set, a second independent model call rates how well the
// answer is supported; that score feeds the confidence estimator downstream.
func (g *Generator) Generate(ctx context.Context, query string, candidates []types.RetrievalResult, withSelfEval bool) Generation {
	if len(candidates) == 0 {
		return Generation{
			Answer:          UnavailableAnswer,
			Sources:         []string{},
			Mode:            ModeNoContext,
			Confidence:      noContextConfidence,
			FixedConfidence: true,
		}
	}

	contextBlock, sources := buildContext(candidates)
	g.logContextSize(contextBlock)

	answer, err := g.llm.Complete(ctx, groundingPrompt(query, contextBlock))
	if err != nil {
		g.logger.Warn("generation model unavailable, returning extractive fallback", zap.Error(err))
		return Generation{
			Answer:          extractiveAnswer(candidates),
			Sources:         sources,
			Mode:            ModeExtractive,
			Confidence:      extractiveConfidence,
			FixedConfidence: true,
		}
	}
	answer = strings.TrimSpace(answer)

	mode := ModeGrounded
	if strings.HasPrefix(answer, InsufficientMarker) {
		// The model declared the content insufficient even though grounding
		// material exists. Over-cautious models discard usable content, so
		// surface the leading excerpts instead of the refusal.
		answer = synthesizedAnswer(candidates)
		mode = ModeSynthesized
	}

	gen := Generation{
		Answer:  answer,
		Sources: sources,
		Mode:    mode,
	}

	if withSelfEval {
		gen.SelfEval = g.selfEvaluate(ctx, query, answer)
		gen.HasSelfEval = true
	}
	return gen
}

func groundingPrompt(query, contextBlock string) string {
	return fmt.Sprintf(`You are an Intranet AI assistant.

Rules:
1. Answer ONLY using the information provided below.
2. Do NOT use outside knowledge.
3. If the provided information is insufficient, start your reply with %s before explaining or answering partially.
4. If the question is entirely out of scope of the provided information, reply with %s followed by: %q
5. Answer according to the questioner's tone.
6. Cite the source documents where possible.

Question:
%s

Internal Content:
%s

Answer:`, InsufficientMarker, InsufficientMarker, UnavailableAnswer, query, contextBlock)
}

// selfEvaluate asks the model to rate the groundedness of its own answer in
// [0,1]. Any failure degrades to a neutral default instead of an error.
func (g *Generator) selfEvaluate(ctx context.Context, query, answer string) float64 {
	prompt := fmt.Sprintf(`You are reviewing an answer generated from internal documents.

Question:
%s

Answer:
%s

Based ONLY on the provided content, rate how well the answer is supported.
Return a number between 0 and 1.
Return ONLY the number.`, query, answer)

	reply, err := g.llm.Complete(ctx, prompt)
	if err != nil {
		g.logger.Warn("self-eval model unavailable, using default score", zap.Error(err))
		return selfEvalDefault
	}

	score, err := parseScore(reply)
	if err != nil {
		g.logger.Warn("self-eval reply unparseable, using default score",
			zap.String("reply", truncate(reply, 100)))
		return selfEvalDefault
	}
	return clamp01(score)
}

func parseScore(reply string) (float64, error) {
	fields := strings.Fields(strings.TrimSpace(reply))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty reply")
	}
	return strconv.ParseFloat(strings.TrimSuffix(fields[0], "."), 64)
}

// buildContext concatenates candidate texts in rerank order into a bounded
// block and collects the distinct source filenames, preserving first-seen
// order.
func buildContext(candidates []types.RetrievalResult) (string, []string) {
	var b strings.Builder
	sources := make([]string, 0, len(candidates))
	seen := make(map[string]struct{})

	for _, c := range candidates {
		if b.Len()+len(c.Chunk.Text) > maxContextChars && b.Len() > 0 {
			break
		}
		b.WriteString(c.Chunk.Text)
		b.WriteString("\n\n")

		src := c.Chunk.Source
		if src == "" {
			src = "Unknown Document"
		}
		if _, ok := seen[src]; !ok {
			seen[src] = struct{}{}
			sources = append(sources, src)
		}
	}
	return b.String(), sources
}

func extractiveAnswer(candidates []types.RetrievalResult) string {
	text := candidates[0].Chunk.Text
	if truncated := truncate(text, extractiveMaxChars); truncated != text {
		text = truncated + "..."
	}
	return ExtractivePrefix + "\n\n" + text
}

func synthesizedAnswer(candidates []types.RetrievalResult) string {
	var parts []string
	for i, c := range candidates {
		if i == 2 {
			break
		}
		parts = append(parts, truncate(c.Chunk.Text, synthesizedPartLen))
	}
	return SynthesizedPrefix + "\n\n" + strings.Join(parts, "\n\n")
}

func (g *Generator) logContextSize(contextBlock string) {
	if g.encoder == nil {
		g.logger.Debug("grounding context built", zap.Int("bytes", len(contextBlock)))
		return
	}
	tokens := g.encoder.Encode(contextBlock, nil, nil)
	g.logger.Debug("grounding context built",
		zap.Int("bytes", len(contextBlock)),
		zap.Int("tokens", len(tokens)),
	)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
