// Package calib implements the parameter calibration search: the trajectory
// error evaluator and the hill-climbing optimizer with local-minimum
// detection and multi-seed random-restart chaining.
package calib

import "errors"

var (
	// ErrEmptyCorpus is returned before any search or evaluation when the
	// training corpus has no entries; the mean error would be undefined.
	ErrEmptyCorpus = errors.New("training corpus is empty")

	// ErrNoSeeds is returned when random restart is requested without any
	// seed parameter sets to restart from.
	ErrNoSeeds = errors.New("random restart requested but no seeds supplied")

	// ErrUnsupportedComparison is returned when a corpus entry carries a
	// ground-truth trajectory. Direct ground-truth comparison is not
	// implemented; the condition surfaces loudly instead of silently
	// scoring the entry zero.
	ErrUnsupportedComparison = errors.New("ground-truth trajectory comparison is not implemented")
)
