package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/trajcal/internal/calib"
)

// SearchConfig represents the root configuration for the calibration
// search. Every field is optional: fields omitted from the JSON file fall
// back to the Get* defaults, so partial configs are safe.
type SearchConfig struct {
	// Hill-climbing params
	MaxIterations       *int     `json:"max_iterations,omitempty"`
	MinError            *float64 `json:"min_error,omitempty"`
	MaxNeighborAttempts *int     `json:"max_neighbor_attempts,omitempty"`

	// Restart and persistence params
	PersistOnLocalMinimum *bool `json:"persist_on_local_minimum,omitempty"`
	UseRandomRestart      *bool `json:"use_random_restart,omitempty"`

	// Evaluation params
	Workers *int `json:"workers,omitempty"` // <=0 or unset means NumCPU

	// Output params (optional)
	DatabasePath *string `json:"database_path,omitempty"`
	ReportDir    *string `json:"report_dir,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }

// EmptySearchConfig returns a SearchConfig with all fields set to nil.
func EmptySearchConfig() *SearchConfig {
	return &SearchConfig{}
}

// LoadSearchConfig loads a SearchConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under
// the max file size.
func LoadSearchConfig(path string) (*SearchConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySearchConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *SearchConfig) Validate() error {
	if c.MaxIterations != nil && *c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", *c.MaxIterations)
	}
	if c.MaxNeighborAttempts != nil && *c.MaxNeighborAttempts <= 0 {
		return fmt.Errorf("max_neighbor_attempts must be positive, got %d", *c.MaxNeighborAttempts)
	}
	if c.MinError != nil && *c.MinError < 0 {
		return fmt.Errorf("min_error must be non-negative, got %f", *c.MinError)
	}
	return nil
}

// GetMaxIterations returns the max_iterations value or the default.
func (c *SearchConfig) GetMaxIterations() int {
	if c.MaxIterations == nil {
		return 1000
	}
	return *c.MaxIterations
}

// GetMinError returns the min_error value or the default.
func (c *SearchConfig) GetMinError() float64 {
	if c.MinError == nil {
		return 1.0
	}
	return *c.MinError
}

// GetMaxNeighborAttempts returns the max_neighbor_attempts value or the default.
func (c *SearchConfig) GetMaxNeighborAttempts() int {
	if c.MaxNeighborAttempts == nil {
		return 100
	}
	return *c.MaxNeighborAttempts
}

// GetPersistOnLocalMinimum returns the persist_on_local_minimum value or the default.
func (c *SearchConfig) GetPersistOnLocalMinimum() bool {
	if c.PersistOnLocalMinimum == nil {
		return false
	}
	return *c.PersistOnLocalMinimum
}

// GetUseRandomRestart returns the use_random_restart value or the default.
func (c *SearchConfig) GetUseRandomRestart() bool {
	if c.UseRandomRestart == nil {
		return false
	}
	return *c.UseRandomRestart
}

// GetWorkers returns the workers value or 0, which lets the optimizer
// pick one worker per CPU.
func (c *SearchConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetDatabasePath returns the database_path value or the default.
func (c *SearchConfig) GetDatabasePath() string {
	if c.DatabasePath == nil || *c.DatabasePath == "" {
		return "calibration.db"
	}
	return *c.DatabasePath
}

// GetReportDir returns the report_dir value or the default.
func (c *SearchConfig) GetReportDir() string {
	if c.ReportDir == nil || *c.ReportDir == "" {
		return "reports"
	}
	return *c.ReportDir
}

// SearchParams converts the file configuration into the optimizer's
// runtime configuration.
func (c *SearchConfig) SearchParams() calib.Config {
	return calib.Config{
		MaxIterations:         c.GetMaxIterations(),
		MinError:              c.GetMinError(),
		MaxNeighborAttempts:   c.GetMaxNeighborAttempts(),
		PersistOnLocalMinimum: c.GetPersistOnLocalMinimum(),
		UseRandomRestart:      c.GetUseRandomRestart(),
		Workers:               c.GetWorkers(),
	}
}
