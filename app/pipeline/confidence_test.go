package pipeline

import (
	"math"
	"testing"

	"intranet/types"
)

func resultsWithDistances(distances ...float64) []types.RetrievalResult {
	results := make([]types.RetrievalResult, len(distances))
	for i, d := range distances {
		results[i] = mkResult("text", "doc.pdf", d)
	}
	return results
}

func TestEstimateEmptyResults(t *testing.T) {
	if got := Estimate(nil, 0.9, true); got != 0 {
		t.Fatalf("empty results must yield 0, got %f", got)
	}
}

func TestEstimateMatchesFormula(t *testing.T) {
	results := resultsWithDistances(0.2, 0.9, 1.1)

	best := 0.2
	avg := (0.2 + 0.9 + 1.1) / 3
	similarity := 1 / (1 + best)
	separation := 1 / (1 + (avg - best))
	want := 0.75*similarity + 0.25*separation

	got := Estimate(results, 0, false)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("got %f, want %f", got, want)
	}
	if got <= 0 || got >= 1 {
		t.Fatalf("confidence must land strictly between 0 and 1, got %f", got)
	}
}

func TestEstimateBlendsSelfEval(t *testing.T) {
	results := resultsWithDistances(0.2, 0.9, 1.1)
	retrieval := Estimate(results, 0, false)

	got := Estimate(results, 0.9, true)
	want := 0.6*0.9 + 0.4*retrieval
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("got %f, want %f", got, want)
	}
}

func TestEstimateIgnoresZeroSelfEval(t *testing.T) {
	results := resultsWithDistances(0.3, 0.5)
	if Estimate(results, 0, true) != Estimate(results, 0, false) {
		t.Fatal("a zero self-eval score must not change the blend")
	}
}

func TestEstimateBounds(t *testing.T) {
	cases := [][]float64{
		{0},
		{0, 0, 0},
		{-0.5, 0.1},
		{1000, 2000},
		{0.0001},
	}
	for _, distances := range cases {
		for _, selfEval := range []float64{0, 0.5, 1} {
			got := Estimate(resultsWithDistances(distances...), selfEval, true)
			if got < 0 || got > 1 {
				t.Fatalf("distances %v selfEval %f: confidence %f out of [0,1]", distances, selfEval, got)
			}
		}
	}
}

func TestEstimateSeparationTermOrdering(t *testing.T) {
	// Same best distance, so only the separation term differs between the
	// two result sets.
	tight := Estimate(resultsWithDistances(0.2, 0.21, 0.22), 0, false)
	spread := Estimate(resultsWithDistances(0.2, 1.2, 1.4), 0, false)
	if spread >= tight {
		t.Fatalf("larger avg-best gap must lower the separation term: tight=%f spread=%f", tight, spread)
	}
}
