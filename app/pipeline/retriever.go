package pipeline

import (
	"context"
	"fmt"

	"intranet/types"

	"go.uber.org/zap"
)

// Retriever performs department-filtered similarity search. It owns no state
// of its own; the embedder and the index are injected collaborators.
type Retriever struct {
	embedder Embedder
	searcher ChunkSearcher
	k        int
	logger   *zap.Logger
}

func NewRetriever(embedder Embedder, searcher ChunkSearcher, k int, logger *zap.Logger) *Retriever {
	if k <= 0 {
		k = defaultRetrievalK
	}
	return &Retriever{embedder: embedder, searcher: searcher, k: k, logger: logger}
}

// Retrieve returns up to K candidates for the department, ascending by
// distance. GENERAL short-circuits: no embedding, no index access, empty
// candidate list. Index errors surface to the caller; without the index no
// meaningful answer exists.
func (r *Retriever) Retrieve(ctx context.Context, query string, department types.Department) ([]types.RetrievalResult, error) {
	if department == types.DepartmentGeneral {
		return nil, nil
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := r.searcher.SearchDepartment(ctx, vector, department, r.k)
	if err != nil {
		return nil, fmt.Errorf("search %s index: %w", department, err)
	}

	r.logger.Debug("retrieved candidates",
		zap.String("department", string(department)),
		zap.Int("count", len(results)),
	)
	return results, nil
}
