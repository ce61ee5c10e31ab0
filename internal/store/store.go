// Package store persists uncertainty runs and their error samples to
// sqlite, so fitted coefficients can be reused without re-simulating.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/demworks/waffle/internal/uncertainty"
)

type Store struct {
	*sql.DB
}

// Open opens (creating if needed) the sqlite database at path. Run
// MigrateUp before first use.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	// sqlite allows a single writer; serialize access through one
	// connection instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return &Store{db}, nil
}

// Run is one persisted uncertainty run.
type Run struct {
	ID          string
	Name        string
	Region      string
	CellSize    float64
	Percentile  float64
	Sims        int
	TileCount   int
	TrialCount  int
	SampleCount int
	Density     float64
	Distance    uncertainty.Coefficients
	Slope       uncertainty.Coefficients
	CreatedAt   time.Time
}

// SaveRun inserts a run and its samples in one transaction. A missing
// ID is assigned; CreatedAt is always stamped here.
func (s *Store) SaveRun(run *Run, samples []uncertainty.Sample) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.SampleCount = len(samples)
	run.CreatedAt = time.Now().UTC()

	distJSON, err := json.Marshal(run.Distance)
	if err != nil {
		return fmt.Errorf("marshal distance coefficients: %w", err)
	}
	slopeJSON, err := json.Marshal(run.Slope)
	if err != nil {
		return fmt.Errorf("marshal slope coefficients: %w", err)
	}

	tx, err := s.Begin()
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (
			run_id, name, region, cell_size, percentile, sims,
			tile_count, trial_count, sample_count, density,
			distance_coeffs, slope_coeffs, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, run.Region, run.CellSize, run.Percentile, run.Sims,
		run.TileCount, run.TrialCount, run.SampleCount, run.Density,
		string(distJSON), string(slopeJSON), run.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.Prepare(`INSERT INTO samples (run_id, error, distance, slope) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare sample insert: %w", err)
	}
	defer stmt.Close()
	for _, sm := range samples {
		if _, err := stmt.Exec(run.ID, sm.Error, sm.Distance, sm.Slope); err != nil {
			return fmt.Errorf("insert sample for run %s: %w", run.ID, err)
		}
	}

	return tx.Commit()
}

const runColumns = `run_id, name, region, cell_size, percentile, sims,
	tile_count, trial_count, sample_count, density,
	distance_coeffs, slope_coeffs, created_at`

// Run loads one run by ID.
func (s *Store) Run(id string) (*Run, error) {
	row := s.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	return run, nil
}

// Runs lists the most recent runs, newest first.
func (s *Store) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Query(`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Samples loads all error samples of a run.
func (s *Store) Samples(runID string) ([]uncertainty.Sample, error) {
	rows, err := s.Query(`SELECT error, distance, slope FROM samples WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("load samples of %s: %w", runID, err)
	}
	defer rows.Close()

	var out []uncertainty.Sample
	for rows.Next() {
		var sm uncertainty.Sample
		if err := rows.Scan(&sm.Error, &sm.Distance, &sm.Slope); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		out = append(out, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteRun removes a run and its samples.
func (s *Store) DeleteRun(id string) error {
	tx, err := s.Begin()
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM samples WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("delete samples of %s: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM runs WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var distJSON, slopeJSON, created string
	err := row.Scan(
		&run.ID, &run.Name, &run.Region, &run.CellSize, &run.Percentile, &run.Sims,
		&run.TileCount, &run.TrialCount, &run.SampleCount, &run.Density,
		&distJSON, &slopeJSON, &created,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(distJSON), &run.Distance); err != nil {
		return nil, fmt.Errorf("distance coefficients: %w", err)
	}
	if err := json.Unmarshal([]byte(slopeJSON), &run.Slope); err != nil {
		return nil, fmt.Errorf("slope coefficients: %w", err)
	}
	run.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	return &run, nil
}
