// Package pipeline implements the query-answering core: intent routing,
// department-filtered retrieval, LLM reranking, grounded answer generation
// and confidence estimation. Every stage contains its own failures; the
// orchestrator only sequences values. The single fatal condition is an
// unavailable similarity index, which no fallback can paper over.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"intranet/types"

	"go.uber.org/zap"
)

const (
	defaultRetrievalK = 15
	defaultRerankTopK = 3

	// OutOfScopeAnswer is returned for GENERAL queries without touching the
	// index or the model.
	OutOfScopeAnswer = "This question is outside the internal knowledge scope."

	chunkPreviewMaxChars = 600
)

// ErrIndexUnavailable marks the one request-fatal failure: the similarity
// index cannot be queried. Callers should tell operators to run ingestion
// rather than blaming the question.
var ErrIndexUnavailable = errors.New("document index unavailable")

// TextGenerator is the completion contract of the generative model.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Embedder turns query text into the vector the index searches with.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChunkSearcher is the similarity-search collaborator: top-k chunks for a
// department, ascending by distance.
type ChunkSearcher interface {
	SearchDepartment(ctx context.Context, vector []float32, department types.Department, k int) ([]types.RetrievalResult, error)
}

// Options tune the pipeline; zero values take the defaults.
type Options struct {
	RetrievalK int
	RerankTopK int
	SelfEval   bool
}

// Pipeline wires the stages together. Data flows strictly forward; no stage
// reads state written by a later one, and nothing persists between requests.
type Pipeline struct {
	router    *Router
	retriever *Retriever
	reranker  *Reranker
	generator *Generator
	topK      int
	selfEval  bool
	logger    *zap.Logger
}

func New(llm TextGenerator, embedder Embedder, searcher ChunkSearcher, opts Options, logger *zap.Logger) *Pipeline {
	if opts.RerankTopK <= 0 {
		opts.RerankTopK = defaultRerankTopK
	}
	return &Pipeline{
		router:    NewRouter(llm, logger),
		retriever: NewRetriever(embedder, searcher, opts.RetrievalK, logger),
		reranker:  NewReranker(llm, logger),
		generator: NewGenerator(llm, logger),
		topK:      opts.RerankTopK,
		selfEval:  opts.SelfEval,
		logger:    logger,
	}
}

// Answer runs the full chain for one query. The only error it can return
// wraps ErrIndexUnavailable; every other failure has already been absorbed
// into a fallback by the owning stage.
func (p *Pipeline) Answer(ctx context.Context, query string, wantChunks bool) (types.AnswerPayload, error) {
	department := p.router.Classify(ctx, query)
	p.logger.Info("routed query", zap.String("department", string(department)))

	if department == types.DepartmentGeneral {
		payload := types.AnswerPayload{
			Department: types.DepartmentGeneral,
			Answer:     OutOfScopeAnswer,
			Confidence: 0.0,
			Sources:    []string{},
		}
		if wantChunks {
			payload.Chunks = []types.RetrievedChunk{}
		}
		return payload, nil
	}

	candidates, err := p.retriever.Retrieve(ctx, query, department)
	if err != nil {
		return types.AnswerPayload{}, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	selected, fellBack := p.reranker.Rerank(ctx, query, candidates, p.topK)
	if fellBack {
		p.logger.Info("reranker degraded to distance order")
	}

	gen := p.generator.Generate(ctx, query, selected, p.selfEval)

	confidence := gen.Confidence
	if !gen.FixedConfidence {
		confidence = Estimate(selected, gen.SelfEval, gen.HasSelfEval)
	}

	payload := types.AnswerPayload{
		Department: department,
		Answer:     gen.Answer,
		Confidence: confidence,
		Sources:    gen.Sources,
	}
	if wantChunks {
		payload.Chunks = serializeChunks(selected)
	}

	p.logger.Info("answered query",
		zap.String("department", string(department)),
		zap.String("mode", gen.Mode.String()),
		zap.Float64("confidence", confidence),
		zap.Int("sources", len(gen.Sources)),
	)
	return payload, nil
}

func serializeChunks(results []types.RetrievalResult) []types.RetrievedChunk {
	chunks := make([]types.RetrievedChunk, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, types.RetrievedChunk{
			Text:       truncate(r.Chunk.Text, chunkPreviewMaxChars),
			Score:      r.Distance,
			Source:     r.Chunk.Source,
			Department: r.Chunk.Department,
			Page:       r.Chunk.Position,
		})
	}
	return chunks
}
