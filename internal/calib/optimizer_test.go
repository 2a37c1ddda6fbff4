package calib

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/banshee-data/trajcal/internal/corpus"
	"github.com/banshee-data/trajcal/internal/params"
	"github.com/banshee-data/trajcal/internal/trajectory"
)

// scoredPredictor predicts an open path whose loop-closure distance equals
// score(p), turning any parameter-to-scalar mapping into an objective the
// optimizer can minimise.
func scoredPredictor(score func(params.ParameterSet) float64) *stubPredictor {
	return &stubPredictor{fn: func(_ []trajectory.RawSample, p params.ParameterSet) ([]trajectory.Pose, error) {
		return []trajectory.Pose{{X: 0}, {X: score(p)}}, nil
	}}
}

// memoryPersister records persisted results for assertions.
type memoryPersister struct {
	mu      sync.Mutex
	results []Result
}

func (m *memoryPersister) PersistResult(r Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
	return nil
}

func TestOptimizeOneStepConvergence(t *testing.T) {
	// The error is driven to exactly 0 by a single +0.02 steering step.
	pred := scoredPredictor(func(p params.ParameterSet) float64 {
		return math.Abs(p.SteeringScale - 1.02)
	})
	cfg := DefaultConfig()
	cfg.MinError = 1e-9
	cfg.MaxNeighborAttempts = 1
	cfg.Workers = 2

	result, err := New(NewEvaluator(pred), cfg, nil).Optimize(context.Background(), singleEntryCorpus(0), nil)
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	if result.Outcome != OutcomeConverged {
		t.Errorf("outcome = %s, want converged", result.Outcome)
	}
	if result.Error > 1e-9 {
		t.Errorf("final error = %g, want ~0", result.Error)
	}
	if math.Abs(result.Params.SteeringScale-1.02) > 1e-12 {
		t.Errorf("SteeringScale = %f, want 1.02", result.Params.SteeringScale)
	}
	if result.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", result.Iterations)
	}
}

func TestOptimizeMonotonicHistory(t *testing.T) {
	pred := scoredPredictor(func(p params.ParameterSet) float64 {
		return p.CameraExponent // decreases in 0.1 steps from 1.0
	})
	cfg := DefaultConfig()
	cfg.MinError = 0.15
	cfg.Workers = 1

	result, err := New(NewEvaluator(pred), cfg, nil).Optimize(context.Background(), singleEntryCorpus(0), nil)
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	if result.Outcome != OutcomeConverged {
		t.Errorf("outcome = %s, want converged", result.Outcome)
	}
	if len(result.History) < 2 {
		t.Fatalf("history too short: %v", result.History)
	}
	for i := 1; i < len(result.History); i++ {
		if result.History[i] > result.History[i-1] {
			t.Errorf("history[%d]=%f > history[%d]=%f: committed error increased",
				i, result.History[i], i-1, result.History[i-1])
		}
	}
}

func TestOptimizeLocalMinimum(t *testing.T) {
	// Constant objective: no neighbor ever strictly improves.
	pred := scoredPredictor(func(params.ParameterSet) float64 { return 5.0 })
	cfg := DefaultConfig()
	cfg.MaxNeighborAttempts = 3

	result, err := New(NewEvaluator(pred), cfg, nil).Optimize(context.Background(), singleEntryCorpus(0), nil)
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	if result.Outcome != OutcomeLocalMinimum {
		t.Errorf("outcome = %s, want local_minimum", result.Outcome)
	}
	if result.Error != 5.0 {
		t.Errorf("final error = %f, want 5.0", result.Error)
	}
	if result.Iterations != 3 {
		t.Errorf("iterations = %d, want the attempt budget of 3", result.Iterations)
	}
}

func TestOptimizeEqualErrorNotAdopted(t *testing.T) {
	// Every neighbor ties the current error exactly; strict improvement
	// must leave the starting set untouched.
	pred := scoredPredictor(func(params.ParameterSet) float64 { return 2.0 })
	cfg := DefaultConfig()
	cfg.MaxNeighborAttempts = 2

	result, err := New(NewEvaluator(pred), cfg, nil).Optimize(context.Background(), singleEntryCorpus(0), nil)
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if result.Params != params.Default() {
		t.Error("plateau search moved off the starting parameter set")
	}
	if len(result.History) != 1 {
		t.Errorf("history length = %d, want 1 (no commits)", len(result.History))
	}
}

func TestOptimizeRandomRestartPersistsEveryChain(t *testing.T) {
	pred := scoredPredictor(func(params.ParameterSet) float64 { return 3.0 })
	cfg := DefaultConfig()
	cfg.MaxNeighborAttempts = 1
	cfg.UseRandomRestart = true
	cfg.PersistOnLocalMinimum = true

	seedA := params.Default()
	seedB := params.Default()
	seedB.GyroMix = 0.7
	persister := &memoryPersister{}

	result, err := New(NewEvaluator(pred), cfg, persister).Optimize(
		context.Background(), singleEntryCorpus(0), []params.ParameterSet{seedA, seedB})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	if len(persister.results) != 2 {
		t.Fatalf("persisted %d chain results, want 2", len(persister.results))
	}
	if persister.results[0].SeedIndex != 0 || persister.results[1].SeedIndex != 1 {
		t.Errorf("seed order = %d, %d, want 0, 1",
			persister.results[0].SeedIndex, persister.results[1].SeedIndex)
	}
	for i, r := range persister.results {
		if r.Outcome != OutcomeLocalMinimum {
			t.Errorf("chain %d outcome = %s, want local_minimum", i, r.Outcome)
		}
	}
	if result.Outcome != OutcomeLocalMinimum {
		t.Errorf("returned outcome = %s, want local_minimum", result.Outcome)
	}
}

func TestOptimizeReturnsBestChain(t *testing.T) {
	// Constant objective per seed: the second seed scores lower.
	pred := scoredPredictor(func(p params.ParameterSet) float64 {
		if p.GyroMix > 0.6 {
			return 1.5
		}
		return 4.0
	})
	cfg := DefaultConfig()
	cfg.MaxNeighborAttempts = 1
	cfg.UseRandomRestart = true

	seedA := params.Default() // GyroMix 0.5 -> error 4.0
	seedB := params.Default()
	seedB.GyroMix = 0.9 // error 1.5; neighbors 0.8 and 1.0 also score 1.5

	result, err := New(NewEvaluator(pred), cfg, nil).Optimize(
		context.Background(), singleEntryCorpus(0), []params.ParameterSet{seedA, seedB})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if result.Error != 1.5 {
		t.Errorf("best error = %f, want 1.5 from the second seed", result.Error)
	}
	if result.SeedIndex != 1 {
		t.Errorf("best seed index = %d, want 1", result.SeedIndex)
	}
}

func TestOptimizeFailFast(t *testing.T) {
	pred := scoredPredictor(func(params.ParameterSet) float64 { return 1 })
	e := NewEvaluator(pred)

	t.Run("empty_corpus", func(t *testing.T) {
		_, err := New(e, DefaultConfig(), nil).Optimize(context.Background(), corpus.Corpus{}, nil)
		if !errors.Is(err, ErrEmptyCorpus) {
			t.Errorf("error = %v, want ErrEmptyCorpus", err)
		}
	})

	t.Run("restart_without_seeds", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.UseRandomRestart = true
		_, err := New(e, cfg, nil).Optimize(context.Background(), singleEntryCorpus(0), nil)
		if !errors.Is(err, ErrNoSeeds) {
			t.Errorf("error = %v, want ErrNoSeeds", err)
		}
	})

	t.Run("invalid_config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxIterations = 0
		_, err := New(e, cfg, nil).Optimize(context.Background(), singleEntryCorpus(0), nil)
		if err == nil {
			t.Error("expected config validation error, got nil")
		}
	})
}

func TestOptimizeCancellation(t *testing.T) {
	pred := scoredPredictor(func(params.ParameterSet) float64 { return 10.0 })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(NewEvaluator(pred), DefaultConfig(), nil).Optimize(ctx, singleEntryCorpus(0), nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestOptimizeSurvivesPredictionFailures(t *testing.T) {
	// Candidates that push the steering scale above the default diverge;
	// the search must treat them as very bad and still converge downward.
	pred := &stubPredictor{fn: func(_ []trajectory.RawSample, p params.ParameterSet) ([]trajectory.Pose, error) {
		if p.SteeringScale > 1.0 {
			return nil, &trajectory.PredictionError{Reason: "diverged", Sample: 0}
		}
		return []trajectory.Pose{{X: 0}, {X: p.CameraExponent}}, nil
	}}
	cfg := DefaultConfig()
	cfg.MinError = 0.15
	cfg.Workers = 2

	result, err := New(NewEvaluator(pred), cfg, nil).Optimize(context.Background(), singleEntryCorpus(0), nil)
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if result.Outcome != OutcomeConverged {
		t.Errorf("outcome = %s, want converged despite failing candidates", result.Outcome)
	}
	if result.Params.SteeringScale > 1.0 {
		t.Errorf("adopted a diverging steering scale %f", result.Params.SteeringScale)
	}
}

func TestOptimizeDivergingSeedDoesNotAbortRestart(t *testing.T) {
	// Seed 0 and its whole neighborhood diverge; the chain must finish at
	// +Inf instead of killing the search, and seed 1's chain must still
	// run and win.
	pred := &stubPredictor{fn: func(_ []trajectory.RawSample, p params.ParameterSet) ([]trajectory.Pose, error) {
		if p.GyroMix >= 0.8 {
			return nil, &trajectory.PredictionError{Reason: "diverged", Sample: 0}
		}
		return []trajectory.Pose{{X: 0}, {X: 2.0}}, nil
	}}
	cfg := DefaultConfig()
	cfg.MaxNeighborAttempts = 1
	cfg.UseRandomRestart = true
	cfg.PersistOnLocalMinimum = true

	badSeed := params.Default()
	badSeed.GyroMix = 0.9
	goodSeed := params.Default() // GyroMix 0.5
	persister := &memoryPersister{}

	result, err := New(NewEvaluator(pred), cfg, persister).Optimize(
		context.Background(), singleEntryCorpus(0), []params.ParameterSet{badSeed, goodSeed})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	if result.SeedIndex != 1 {
		t.Errorf("best seed index = %d, want 1", result.SeedIndex)
	}
	if result.Error != 2.0 {
		t.Errorf("best error = %f, want 2.0", result.Error)
	}
	if len(persister.results) != 2 {
		t.Fatalf("persisted %d chain results, want 2 (failing chain must still finish)", len(persister.results))
	}
	if !math.IsInf(persister.results[0].Error, 1) {
		t.Errorf("failing chain error = %f, want +Inf", persister.results[0].Error)
	}
}

func TestOptimizeDivergingSeedRecoversThroughNeighbors(t *testing.T) {
	// The seed itself diverges but a one-step neighbor is healthy; the
	// chain should climb out instead of reporting a failure.
	pred := &stubPredictor{fn: func(_ []trajectory.RawSample, p params.ParameterSet) ([]trajectory.Pose, error) {
		if p.SteeringScale == 1.0 {
			return nil, &trajectory.PredictionError{Reason: "diverged", Sample: 0}
		}
		return []trajectory.Pose{{X: 0}, {X: math.Abs(p.SteeringScale - 1.02)}}, nil
	}}
	cfg := DefaultConfig()
	cfg.MinError = 1e-9
	cfg.MaxNeighborAttempts = 1

	result, err := New(NewEvaluator(pred), cfg, nil).Optimize(context.Background(), singleEntryCorpus(0), nil)
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if result.Outcome != OutcomeConverged {
		t.Errorf("outcome = %s, want converged", result.Outcome)
	}
	if math.Abs(result.Params.SteeringScale-1.02) > 1e-12 {
		t.Errorf("SteeringScale = %f, want 1.02", result.Params.SteeringScale)
	}
}

func TestOptimizeDeterministicAcrossWorkerCounts(t *testing.T) {
	score := func(p params.ParameterSet) float64 {
		return p.CameraExponent + p.OdometryExponent
	}
	cfg := DefaultConfig()
	cfg.MinError = 0.25

	run := func(workers int) Result {
		cfg.Workers = workers
		result, err := New(NewEvaluator(scoredPredictor(score)), cfg, nil).Optimize(
			context.Background(), singleEntryCorpus(0), nil)
		if err != nil {
			t.Fatalf("Optimize failed with %d workers: %v", workers, err)
		}
		return result
	}

	sequential := run(1)
	concurrent := run(8)
	if sequential.Params != concurrent.Params {
		t.Error("worker count changed the selected parameter set")
	}
	if sequential.Error != concurrent.Error {
		t.Errorf("worker count changed the final error: %f vs %f", sequential.Error, concurrent.Error)
	}
}
