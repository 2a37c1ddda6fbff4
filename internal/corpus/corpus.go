// Package corpus holds the training corpus for calibration: an ordered,
// read-only collection of recorded sensor sequences paired with the known
// number of physical loops each recording drove, and optionally a
// ground-truth trajectory.
package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/trajcal/internal/trajectory"
)

// maxFileSize caps corpus files at 64MB; recorded logs run to a few MB.
const maxFileSize = 64 * 1024 * 1024

// Entry pairs one recorded sensor sequence with its expected loop count and
// an optional ground-truth trajectory. Entries are immutable once loaded.
type Entry struct {
	// ExpectedLoops is the number of full physical loops driven during the
	// recording. Used to bound plausible orientation drift.
	ExpectedLoops int
	Samples       []trajectory.RawSample
	// GroundTruth is nil when no reference trajectory exists for the
	// recording; scoring then falls back to the loop-closure proxy.
	GroundTruth []trajectory.Pose
	// Source is the log path the entry was loaded from, for diagnostics.
	Source string
}

// Corpus is an ordered collection of entries. Append-only before training,
// read-only during.
type Corpus []Entry

// LoadEntry reads a recorded sensor log and builds a corpus entry. When
// groundTruthPath is non-empty the reference trajectory is loaded alongside.
func LoadEntry(path string, expectedLoops int, groundTruthPath string) (Entry, error) {
	if expectedLoops < 0 {
		return Entry{}, fmt.Errorf("expected loop count must be non-negative, got %d", expectedLoops)
	}

	var samples []trajectory.RawSample
	if err := readJSONFile(path, &samples); err != nil {
		return Entry{}, fmt.Errorf("loading sensor log: %w", err)
	}
	if len(samples) == 0 {
		return Entry{}, fmt.Errorf("sensor log %q contains no samples", path)
	}

	entry := Entry{
		ExpectedLoops: expectedLoops,
		Samples:       samples,
		Source:        path,
	}

	if groundTruthPath != "" {
		var poses []trajectory.Pose
		if err := readJSONFile(groundTruthPath, &poses); err != nil {
			return Entry{}, fmt.Errorf("loading ground truth: %w", err)
		}
		entry.GroundTruth = poses
	}

	return entry, nil
}

// readJSONFile decodes a size- and extension-checked JSON file into dst.
func readJSONFile(path string, dst interface{}) error {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return fmt.Errorf("file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return fmt.Errorf("file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return nil
}
