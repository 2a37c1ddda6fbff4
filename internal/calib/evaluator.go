package calib

import (
	"context"
	"fmt"
	"math"

	"github.com/banshee-data/trajcal/internal/corpus"
	"github.com/banshee-data/trajcal/internal/params"
	"github.com/banshee-data/trajcal/internal/trajectory"
)

// firstEntryHeadingOffset corrects the reference heading of the first
// recorded sequence in the corpus, which was captured with the camera rig
// rotated a quarter turn relative to every later recording. Preserved
// exactly as a dataset quirk; do not generalise.
const firstEntryHeadingOffset = -math.Pi / 2

// Evaluator scores a parameter set against a training corpus by driving the
// predictor over every entry and reducing to a scalar mean error.
type Evaluator struct {
	predictor trajectory.Predictor
}

// NewEvaluator returns an evaluator backed by the given predictor.
func NewEvaluator(predictor trajectory.Predictor) *Evaluator {
	return &Evaluator{predictor: predictor}
}

// Evaluate returns the mean trajectory error of p over the corpus. With
// rejectImplausible set, any entry whose predicted heading drift exceeds
// expectedLoops*2pi + pi short-circuits the whole evaluation to +Inf: the
// parameter set produced more orientation wraps than the physical path
// allows, so no per-entry score is meaningful.
//
// Evaluate is a pure function of (corpus, p): repeated calls with identical
// inputs return identical results.
func (e *Evaluator) Evaluate(ctx context.Context, c corpus.Corpus, p params.ParameterSet, rejectImplausible bool) (float64, error) {
	if len(c) == 0 {
		return 0, ErrEmptyCorpus
	}

	sum := 0.0
	for i, entry := range c {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		poses, err := e.predictor.Predict(entry.Samples, p)
		if err != nil {
			return 0, fmt.Errorf("entry %d: %w", i, err)
		}

		if rejectImplausible {
			tolerableDrift := float64(entry.ExpectedLoops)*2*math.Pi + math.Pi
			if trajectory.HeadingDrift(poses) > tolerableDrift {
				return math.Inf(1), nil
			}
		}

		if entry.GroundTruth != nil {
			return 0, fmt.Errorf("entry %d: %w", i, ErrUnsupportedComparison)
		}
		sum += trajectory.LoopClosure(poses)
	}

	return sum / float64(len(c)), nil
}

// EvaluateDetailed returns per-entry positional and orientation errors for
// diagnostics, in corpus order. The positional error is the loop-closure
// distance; the orientation error is the magnitude of the
// (heading, pitch, roll) difference between the first and last pose, with
// the first entry's expected heading shifted by firstEntryHeadingOffset.
func (e *Evaluator) EvaluateDetailed(ctx context.Context, c corpus.Corpus, p params.ParameterSet) (positional, orientation []float64, err error) {
	if len(c) == 0 {
		return nil, nil, ErrEmptyCorpus
	}

	positional = make([]float64, 0, len(c))
	orientation = make([]float64, 0, len(c))
	for i, entry := range c {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		poses, err := e.predictor.Predict(entry.Samples, p)
		if err != nil {
			return nil, nil, fmt.Errorf("entry %d: %w", i, err)
		}

		positional = append(positional, trajectory.LoopClosure(poses))

		first, last := poses[0], poses[len(poses)-1]
		expectedHeading := first.Heading
		if i == 0 {
			expectedHeading += firstEntryHeadingOffset
		}
		dh := last.Heading - expectedHeading
		dp := last.Pitch - first.Pitch
		dr := last.Roll - first.Roll
		orientation = append(orientation, math.Sqrt(dh*dh+dp*dp+dr*dr))
	}

	return positional, orientation, nil
}
