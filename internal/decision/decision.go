// Package decision turns class logits into a verdict, a percentage and a
// confidence band.
package decision

import (
	"fmt"
	"math"

	"github.com/Brownie44l1/pneumo-api/internal/apperr"
	"github.com/Brownie44l1/pneumo-api/internal/domain"
)

const (
	HighThreshold   = 0.70
	MediumThreshold = 0.40
)

// Decision is the outcome for one set of scores.
type Decision struct {
	ClassIndex    int
	Verdict       domain.Verdict
	Confidence    float64 // winning-class probability in [0,1]
	Probability   float64 // Confidence as a percentage, 2 decimals
	Band          domain.ConfidenceBand
	Probabilities []float64
}

// Decide applies softmax to exactly two logits. Ties go to the lower class
// index.
func Decide(scores []float32) (Decision, error) {
	const op = "decision.Decide"

	if len(scores) != 2 {
		return Decision{}, apperr.Errorf(apperr.InvalidScores, op, "expected 2 scores, got %d", len(scores))
	}
	for i, s := range scores {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			return Decision{}, apperr.Errorf(apperr.InvalidScores, op, "score %d is not finite", i)
		}
	}

	probs := Softmax(scores)
	class := 0
	for i, p := range probs {
		if p > probs[class] {
			class = i
		}
	}
	confidence := probs[class]

	return Decision{
		ClassIndex:    class,
		Verdict:       domain.VerdictForClass(class),
		Confidence:    confidence,
		Probability:   Percent(confidence),
		Band:          Band(confidence),
		Probabilities: probs,
	}, nil
}

// Softmax is the numerically stable softmax of scores.
func Softmax(scores []float32) []float64 {
	if len(scores) == 0 {
		return nil
	}
	maxScore := float64(scores[0])
	for _, s := range scores[1:] {
		maxScore = math.Max(maxScore, float64(s))
	}

	out := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		out[i] = math.Exp(float64(s) - maxScore)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Band discretizes a probability: > 0.70 high, > 0.40 medium, otherwise low.
func Band(p float64) domain.ConfidenceBand {
	switch {
	case p > HighThreshold:
		return domain.ConfidenceHigh
	case p > MediumThreshold:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

// Percent converts p in [0,1] to a percentage rounded to 2 decimals.
func Percent(p float64) float64 {
	return math.Round(p*100*100) / 100
}

func (d Decision) String() string {
	return fmt.Sprintf("%s (%.2f%%, %s)", d.Verdict, d.Probability, d.Band)
}
