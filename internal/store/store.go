// Package store persists calibration runs and named parameter sets in
// SQLite so long searches survive process restarts and results can be
// compared across corpus revisions.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/trajcal/internal/calib"
	"github.com/banshee-data/trajcal/internal/params"
)

// Store wraps the calibration results database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path. Run MigrateUp
// before using the store on a fresh database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Run is a persisted search chain outcome.
type Run struct {
	RunID       string          `json:"run_id"`
	SeedIndex   int             `json:"seed_index"`
	Outcome     string          `json:"outcome"`
	FinalError  float64         `json:"final_error"`
	Iterations  int             `json:"iterations"`
	Evaluations int             `json:"evaluations"`
	ParamsJSON  json.RawMessage `json:"params_json"`
	HistoryJSON json.RawMessage `json:"history_json,omitempty"`
	CreatedAt   int64           `json:"created_at"`
}

// Params decodes the stored parameter set.
func (r *Run) Params() (params.ParameterSet, error) {
	var p params.ParameterSet
	if err := json.Unmarshal(r.ParamsJSON, &p); err != nil {
		return params.ParameterSet{}, fmt.Errorf("decode run %s params: %w", r.RunID, err)
	}
	return p, nil
}

// PersistResult records a finished search chain. It implements the
// optimizer's Persister interface.
func (s *Store) PersistResult(result calib.Result) error {
	paramsJSON, err := json.Marshal(result.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	historyJSON, err := json.Marshal(result.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	run := Run{
		RunID:       uuid.New().String(),
		SeedIndex:   result.SeedIndex,
		Outcome:     string(result.Outcome),
		FinalError:  result.Error,
		Iterations:  result.Iterations,
		Evaluations: result.Evaluations,
		ParamsJSON:  paramsJSON,
		HistoryJSON: historyJSON,
		CreatedAt:   time.Now().UnixNano(),
	}
	return s.InsertRun(&run)
}

// InsertRun persists a run. If RunID is empty, a UUID is generated.
func (s *Store) InsertRun(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}

	var historyStr interface{}
	if len(run.HistoryJSON) > 0 {
		historyStr = string(run.HistoryJSON)
	}

	_, err := s.db.Exec(`
		INSERT INTO calibration_runs (
			run_id, seed_index, outcome, final_error,
			iterations, evaluations, params_json, history_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.SeedIndex, run.Outcome, run.FinalError,
		run.Iterations, run.Evaluations, string(run.ParamsJSON), historyStr, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun returns a single run by ID.
func (s *Store) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, seed_index, outcome, final_error,
		       iterations, evaluations, params_json, history_json, created_at
		FROM calibration_runs
		WHERE run_id = ?`, runID)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return run, nil
}

// ListRuns returns all runs ordered by creation time descending.
func (s *Store) ListRuns() ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT run_id, seed_index, outcome, final_error,
		       iterations, evaluations, params_json, history_json, created_at
		FROM calibration_runs
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// BestRun returns the run with the lowest final error, ties broken by the
// earlier run.
func (s *Store) BestRun() (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, seed_index, outcome, final_error,
		       iterations, evaluations, params_json, history_json, created_at
		FROM calibration_runs
		ORDER BY final_error ASC, created_at ASC
		LIMIT 1`)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no runs recorded")
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return run, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(sc scanner) (*Run, error) {
	var run Run
	var paramsStr string
	var historyStr sql.NullString
	err := sc.Scan(
		&run.RunID, &run.SeedIndex, &run.Outcome, &run.FinalError,
		&run.Iterations, &run.Evaluations, &paramsStr, &historyStr, &run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	run.ParamsJSON = json.RawMessage(paramsStr)
	if historyStr.Valid {
		run.HistoryJSON = json.RawMessage(historyStr.String)
	}
	return &run, nil
}

// SaveParameterSet stores a parameter set under a name, replacing any
// previous set with the same name.
func (s *Store) SaveParameterSet(name string, p params.ParameterSet) error {
	if name == "" {
		return fmt.Errorf("parameter set name must not be empty")
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("parameter set %q: %w", name, err)
	}
	paramsJSON, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO parameter_sets (name, params_json, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			params_json = excluded.params_json,
			created_at = excluded.created_at`,
		name, string(paramsJSON), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save parameter set %q: %w", name, err)
	}
	return nil
}

// GetParameterSet loads a named parameter set.
func (s *Store) GetParameterSet(name string) (params.ParameterSet, error) {
	var paramsStr string
	err := s.db.QueryRow(`
		SELECT params_json FROM parameter_sets WHERE name = ?`, name).Scan(&paramsStr)
	if err == sql.ErrNoRows {
		return params.ParameterSet{}, fmt.Errorf("parameter set %q not found", name)
	}
	if err != nil {
		return params.ParameterSet{}, fmt.Errorf("query parameter set %q: %w", name, err)
	}

	var p params.ParameterSet
	if err := json.Unmarshal([]byte(paramsStr), &p); err != nil {
		return params.ParameterSet{}, fmt.Errorf("decode parameter set %q: %w", name, err)
	}
	return p, nil
}

// ListParameterSetNames returns all stored set names in alphabetical order.
func (s *Store) ListParameterSetNames() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM parameter_sets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query parameter sets: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan parameter set name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
