package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/srujkamble02/ishara/internal/detector"
)

var (
	// ErrInference wraps any failure raised while scoring a feature vector.
	ErrInference = errors.New("inference failed")
	// ErrInvalidScores is returned when a model produces negative or non-finite scores.
	ErrInvalidScores = errors.New("invalid classifier scores")
)

// Model is a loaded classifier artifact.
type Model interface {
	// Score returns one score per label for the feature vector.
	Score(ctx context.Context, fv detector.FeatureVector) (Scores, error)
	// Name identifies the backend for logging.
	Name() string
}

// ScoreFunc adapts an in-process scoring function to the Model interface.
type ScoreFunc func(ctx context.Context, fv detector.FeatureVector) (Scores, error)

// Score calls f.
func (f ScoreFunc) Score(ctx context.Context, fv detector.FeatureVector) (Scores, error) {
	return f(ctx, fv)
}

// Name implements Model.
func (f ScoreFunc) Name() string { return "func" }

// Adapter turns model scores into predictions. It holds no per-call state and
// is safe for concurrent use if the wrapped Model is.
type Adapter struct {
	model Model
}

// NewAdapter wraps a loaded model.
func NewAdapter(m Model) *Adapter {
	return &Adapter{model: m}
}

// Predict scores fv and returns the arg-max label with its raw score as confidence.
func (a *Adapter) Predict(ctx context.Context, fv detector.FeatureVector) (Prediction, error) {
	if a == nil || a.model == nil {
		return Prediction{}, fmt.Errorf("%w: no model loaded", ErrInference)
	}
	for _, v := range fv {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Prediction{}, fmt.Errorf("%w: feature vector contains non-finite values", ErrInference)
		}
	}

	scores, err := a.model.Score(ctx, fv)
	if err != nil {
		return Prediction{}, fmt.Errorf("%w: %s: %w", ErrInference, a.model.Name(), err)
	}
	if err := validateScores(&scores); err != nil {
		return Prediction{}, fmt.Errorf("%w: %w", ErrInference, err)
	}

	idx := scores.ArgMax()
	return Prediction{
		Label:      Labels[idx],
		Index:      idx,
		Confidence: scores[idx],
		Scores:     scores,
	}, nil
}

func validateScores(s *Scores) error {
	for i, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: score %d (%s) = %v", ErrInvalidScores, i, Labels[i], v)
		}
	}
	return nil
}
