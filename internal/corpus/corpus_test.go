package corpus

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleLog = `[
	{"timestamp_nanos": 0, "odometry_left": 0.1, "odometry_right": 0.1, "gyro_z": 0.0},
	{"timestamp_nanos": 100000000, "odometry_left": 0.1, "odometry_right": 0.1, "gyro_z": 0.02}
]`

func TestLoadEntry(t *testing.T) {
	path := writeFile(t, "run1.json", sampleLog)

	entry, err := LoadEntry(path, 2, "")
	if err != nil {
		t.Fatalf("LoadEntry failed: %v", err)
	}
	if entry.ExpectedLoops != 2 {
		t.Errorf("ExpectedLoops = %d, want 2", entry.ExpectedLoops)
	}
	if len(entry.Samples) != 2 {
		t.Errorf("sample count = %d, want 2", len(entry.Samples))
	}
	if entry.Samples[1].GyroZ != 0.02 {
		t.Errorf("GyroZ = %f, want 0.02", entry.Samples[1].GyroZ)
	}
	if entry.GroundTruth != nil {
		t.Error("GroundTruth should be nil when no path given")
	}
}

func TestLoadEntryWithGroundTruth(t *testing.T) {
	logPath := writeFile(t, "run1.json", sampleLog)
	gtPath := writeFile(t, "truth.json", `[{"x": 0, "y": 0, "heading": 0}, {"x": 1, "y": 0, "heading": 0}]`)

	entry, err := LoadEntry(logPath, 0, gtPath)
	if err != nil {
		t.Fatalf("LoadEntry failed: %v", err)
	}
	if len(entry.GroundTruth) != 2 {
		t.Errorf("ground truth pose count = %d, want 2", len(entry.GroundTruth))
	}
	if entry.GroundTruth[1].X != 1 {
		t.Errorf("ground truth X = %f, want 1", entry.GroundTruth[1].X)
	}
}

func TestLoadEntryErrors(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(t *testing.T) (path string, loops int, gtPath string)
	}{
		{"negative_loops", func(t *testing.T) (string, int, string) {
			return writeFile(t, "run.json", sampleLog), -1, ""
		}},
		{"missing_file", func(t *testing.T) (string, int, string) {
			return filepath.Join(t.TempDir(), "absent.json"), 0, ""
		}},
		{"wrong_extension", func(t *testing.T) (string, int, string) {
			return writeFile(t, "run.csv", sampleLog), 0, ""
		}},
		{"malformed_json", func(t *testing.T) (string, int, string) {
			return writeFile(t, "run.json", "{not json"), 0, ""
		}},
		{"empty_log", func(t *testing.T) (string, int, string) {
			return writeFile(t, "run.json", "[]"), 0, ""
		}},
		{"bad_ground_truth", func(t *testing.T) (string, int, string) {
			return writeFile(t, "run.json", sampleLog), 0, writeFile(t, "truth.json", "oops")
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path, loops, gtPath := tc.setup(t)
			if _, err := LoadEntry(path, loops, gtPath); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
