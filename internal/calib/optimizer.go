package calib

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"runtime"
	"sync"

	"github.com/banshee-data/trajcal/internal/corpus"
	"github.com/banshee-data/trajcal/internal/params"
	"github.com/banshee-data/trajcal/internal/trajectory"
)

// Outcome describes how a search chain terminated. Local minimum and
// convergence are normal outcomes, not errors.
type Outcome string

const (
	// OutcomeConverged means the error dropped to or below the configured
	// minimum.
	OutcomeConverged Outcome = "converged"
	// OutcomeLocalMinimum means no single-field neighbor improved the
	// error within the attempt budget.
	OutcomeLocalMinimum Outcome = "local_minimum"
	// OutcomeIterationCap means the outer iteration budget ran out first.
	OutcomeIterationCap Outcome = "iteration_cap"
)

// Config controls the hill-climbing search.
type Config struct {
	MaxIterations         int     // outer-loop cap
	MinError              float64 // stop threshold
	MaxNeighborAttempts   int     // generation attempts before declaring a local minimum
	PersistOnLocalMinimum bool    // persist each chain outcome via the Persister
	UseRandomRestart      bool    // chain through the seed queue after each termination
	Workers               int     // concurrent candidate evaluations; <=0 means NumCPU
}

// DefaultConfig returns the standard search configuration.
func DefaultConfig() Config {
	return Config{
		MaxIterations:       1000,
		MinError:            1.0,
		MaxNeighborAttempts: 100,
	}
}

// Validate checks the configuration before any search work starts.
func (c Config) Validate() error {
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max iterations must be positive, got %d", c.MaxIterations)
	}
	if c.MaxNeighborAttempts <= 0 {
		return fmt.Errorf("max neighbor attempts must be positive, got %d", c.MaxNeighborAttempts)
	}
	if math.IsNaN(c.MinError) || c.MinError < 0 {
		return fmt.Errorf("min error must be non-negative, got %f", c.MinError)
	}
	return nil
}

// Result is the outcome of one search chain.
type Result struct {
	Params      params.ParameterSet `json:"params"`
	Error       float64             `json:"error"`
	Iterations  int                 `json:"iterations"`
	Evaluations int                 `json:"evaluations"`
	SeedIndex   int                 `json:"seed_index"` // -1 for the default start
	Outcome     Outcome             `json:"outcome"`
	// History records the committed error after each improving step,
	// starting with the seed's own error.
	History []float64 `json:"history"`
}

// Persister receives chain results for external storage. Persistence
// failures are logged and never abort or corrupt the in-memory search.
type Persister interface {
	PersistResult(Result) error
}

// Optimizer drives a coordinate-wise hill-climbing search over the
// parameter space, evaluating single-field neighbors and committing the
// best strict improvement until convergence, the iteration budget, or a
// local minimum; on termination it optionally chains into the next seed.
type Optimizer struct {
	evaluator *Evaluator
	cfg       Config
	persister Persister // may be nil
}

// New returns an Optimizer. The persister may be nil when persistence of
// chain outcomes is not wanted.
func New(evaluator *Evaluator, cfg Config, persister Persister) *Optimizer {
	return &Optimizer{evaluator: evaluator, cfg: cfg, persister: persister}
}

// Optimize runs the search and returns the best chain result. All fatal
// configuration problems surface before the first evaluation. Without
// random restart a single chain runs from the default parameter set; with
// it, one chain runs per seed in queue order and the lowest-error chain
// result wins, while every chain outcome is individually persisted when
// persistence is enabled.
func (o *Optimizer) Optimize(ctx context.Context, c corpus.Corpus, seeds []params.ParameterSet) (Result, error) {
	if err := o.cfg.Validate(); err != nil {
		return Result{}, err
	}
	if len(c) == 0 {
		return Result{}, ErrEmptyCorpus
	}
	if o.cfg.UseRandomRestart && len(seeds) == 0 {
		return Result{}, ErrNoSeeds
	}

	starts := []chainStart{{seed: params.Default(), index: -1}}
	if o.cfg.UseRandomRestart {
		starts = starts[:0]
		for i, s := range seeds {
			starts = append(starts, chainStart{seed: s, index: i})
		}
	}

	var best Result
	bestSet := false
	for _, start := range starts {
		if err := ctx.Err(); err != nil {
			return best, err
		}

		result, err := o.runChain(ctx, c, start)
		if err != nil {
			return best, err
		}
		log.Printf("[calib] chain seed=%d finished: outcome=%s error=%.6f iterations=%d evaluations=%d",
			result.SeedIndex, result.Outcome, result.Error, result.Iterations, result.Evaluations)

		if o.cfg.PersistOnLocalMinimum && o.persister != nil {
			if err := o.persister.PersistResult(result); err != nil {
				log.Printf("[calib] failed to persist chain result: %v", err)
			}
		}

		if !bestSet || result.Error < best.Error {
			best = result
			bestSet = true
		}
	}

	return best, nil
}

// chainStart names one entry of the seed queue.
type chainStart struct {
	seed  params.ParameterSet
	index int
}

// runChain executes one full hill-climbing chain from a single seed.
func (o *Optimizer) runChain(ctx context.Context, c corpus.Corpus, start chainStart) (Result, error) {
	current := start.seed
	currentErr, err := o.evaluator.Evaluate(ctx, c, current, true)
	if err != nil {
		var perr *trajectory.PredictionError
		if !errors.As(err, &perr) {
			return Result{}, err
		}
		// A seed that cannot produce a trajectory scores +Inf like any
		// other failing candidate; its neighbors may still be viable.
		currentErr = math.Inf(1)
	}

	result := Result{
		SeedIndex:   start.index,
		Evaluations: 1,
		History:     []float64{currentErr},
	}

	// Best neighbor seen so far, tracked across generation attempts and
	// reset on every commit.
	bestNeighborErr := math.Inf(1)
	var bestNeighbor params.ParameterSet
	attempts := 0

	for currentErr > o.cfg.MinError && result.Iterations < o.cfg.MaxIterations {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		result.Iterations++

		neighbors := params.Neighbors(current)
		scores, err := o.evaluateAll(ctx, c, neighbors)
		if err != nil {
			return Result{}, err
		}
		result.Evaluations += len(neighbors)

		// Deterministic fold in candidate order, independent of which
		// worker finished first.
		for i, score := range scores {
			if score < bestNeighborErr {
				bestNeighborErr = score
				bestNeighbor = neighbors[i]
			}
		}

		// Strict improvement only: adopting an equal-error neighbor would
		// cycle forever on plateaus.
		if bestNeighborErr < currentErr {
			current = bestNeighbor
			currentErr = bestNeighborErr
			result.History = append(result.History, currentErr)
			bestNeighborErr = math.Inf(1)
			attempts = 0
			continue
		}

		attempts++
		if attempts >= o.cfg.MaxNeighborAttempts {
			result.Params = current
			result.Error = currentErr
			result.Outcome = OutcomeLocalMinimum
			return result, nil
		}
	}

	result.Params = current
	result.Error = currentErr
	if currentErr <= o.cfg.MinError {
		result.Outcome = OutcomeConverged
	} else {
		result.Outcome = OutcomeIterationCap
	}
	return result, nil
}

// evaluateAll scores every candidate concurrently over the shared read-only
// corpus. The returned slice is indexed like candidates, so the caller's
// reduction is deterministic regardless of completion order. A failed
// prediction scores its candidate +Inf and the search continues; any other
// evaluation failure aborts with the lowest-index error.
func (o *Optimizer) evaluateAll(ctx context.Context, c corpus.Corpus, candidates []params.ParameterSet) ([]float64, error) {
	scores := make([]float64, len(candidates))
	errs := make([]error, len(candidates))

	workers := o.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(candidates) {
		workers = len(candidates)
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				scores[i], errs[i] = o.evaluator.Evaluate(ctx, c, candidates[i], true)
			}
		}()
	}

feed:
	for i := range candidates {
		select {
		case <-ctx.Done():
			// Stop feeding work; the ctx check below reports cancellation.
			break feed
		case indexes <- i:
		}
	}
	close(indexes)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, err := range errs {
		if err == nil {
			continue
		}
		var perr *trajectory.PredictionError
		if errors.As(err, &perr) {
			// A candidate that cannot produce a trajectory is a very bad
			// candidate, not a fatal condition.
			scores[i] = math.Inf(1)
			continue
		}
		return nil, err
	}

	return scores, nil
}
