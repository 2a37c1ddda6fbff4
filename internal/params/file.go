package params

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// maxFileSize caps parameter files at 1MB. A valid set serialises to a few
// hundred bytes; anything larger is a wrong file.
const maxFileSize = 1 * 1024 * 1024

// Load reads a ParameterSet from a JSON file. The path must carry a .json
// extension and the file must be under the max file size. Fields omitted
// from the JSON keep their Default() values, so partial files are safe.
func Load(path string) (ParameterSet, error) {
	p := Default()

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return p, fmt.Errorf("parameter file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return p, fmt.Errorf("failed to stat parameter file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return p, fmt.Errorf("parameter file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return p, fmt.Errorf("failed to read parameter file: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse parameter JSON: %w", err)
	}

	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("invalid parameter set: %w", err)
	}
	return p, nil
}

// LoadList reads a JSON array of parameter sets, validating each one.
// Fields omitted from an element keep their Default() values.
func LoadList(path string) ([]ParameterSet, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("parameter file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat parameter file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("parameter file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read parameter file: %w", err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse parameter JSON: %w", err)
	}

	sets := make([]ParameterSet, 0, len(raw))
	for i, msg := range raw {
		p := Default()
		if err := json.Unmarshal(msg, &p); err != nil {
			return nil, fmt.Errorf("element %d: failed to parse parameter JSON: %w", i, err)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("element %d: invalid parameter set: %w", i, err)
		}
		sets = append(sets, p)
	}
	return sets, nil
}

// Save writes a ParameterSet to a JSON file, creating parent directories as
// needed. The set is validated before anything touches the filesystem.
func Save(p ParameterSet, path string) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid parameter set: %w", err)
	}

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return fmt.Errorf("parameter file must have .json extension, got %q", ext)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal parameter set: %w", err)
	}
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create parameter directory: %w", err)
		}
	}
	if err := os.WriteFile(cleanPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write parameter file: %w", err)
	}
	return nil
}
