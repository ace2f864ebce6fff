package pipeline

import "intranet/types"

// Blend weights. Tunable calibration constants, not derived from data.
const (
	bestSimilarityWeight = 0.75
	separationWeight     = 0.25
	selfEvalWeight       = 0.6
	retrievalWeight      = 0.4
)

// Estimate fuses the retrieval-distance signal with the optional self-eval
// score into a single confidence in [0,1].
//
// Distances convert to similarities via 1/(1+d). The separation factor
// compares the best distance against the mean of the whole candidate set.
// Blending the two independent signals is more robust than either alone; a
// model can be confidently wrong, and a distance says nothing about whether
// the content actually answers the question.
func Estimate(results []types.RetrievalResult, selfEval float64, hasSelfEval bool) float64 {
	if len(results) == 0 {
		return 0
	}

	best := results[0].Distance
	var sum float64
	for _, r := range results {
		if r.Distance < best {
			best = r.Distance
		}
		sum += r.Distance
	}
	avg := sum / float64(len(results))

	similarity := 1 / (1 + max0(best))
	separation := 1 / (1 + max0(avg-best))
	retrieval := bestSimilarityWeight*similarity + separationWeight*separation

	confidence := retrieval
	if hasSelfEval && selfEval > 0 {
		confidence = selfEvalWeight*selfEval + retrievalWeight*retrieval
	}
	return clamp01(confidence)
}

func max0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
