// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history keeps a SQLite journal of research loop runs and their
// iterations in the project directory, so past runs can be inspected after
// the terminal output is gone.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/pdiddy/research-ralph/pkg/types"
)

const dbFile = "history.db"

// ErrRunNotFound is returned when a run ID is not in the journal.
var ErrRunNotFound = errors.New("run not found")

var now = time.Now

// Run is one recorded loop run.
type Run struct {
	ID            string          `json:"id" yaml:"id"`
	Agent         types.AgentKind `json:"agent" yaml:"agent"`
	MaxIterations int             `json:"max_iterations" yaml:"max_iterations"`
	StartedAt     time.Time       `json:"started_at" yaml:"started_at"`

	// FinishedAt is zero while the run is in progress or was interrupted.
	FinishedAt time.Time   `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Completed  bool        `json:"completed" yaml:"completed"`
	Iterations int         `json:"iterations" yaml:"iterations"`
	FinalPhase types.Phase `json:"final_phase,omitempty" yaml:"final_phase,omitempty"`
	Error      string      `json:"error,omitempty" yaml:"error,omitempty"`
}

// Iteration is one recorded loop iteration.
type Iteration struct {
	RunID           string          `json:"run_id" yaml:"run_id"`
	Iteration       int             `json:"iteration" yaml:"iteration"`
	Success         bool            `json:"success" yaml:"success"`
	Phase           types.Phase     `json:"phase" yaml:"phase"`
	PapersDelta     int             `json:"papers_delta" yaml:"papers_delta"`
	Complete        bool            `json:"complete" yaml:"complete"`
	ErrorKind       types.ErrorKind `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Error           string          `json:"error,omitempty" yaml:"error,omitempty"`
	DocumentChanged bool            `json:"document_changed" yaml:"document_changed"`
	Duration        time.Duration   `json:"duration" yaml:"duration"`
	RecordedAt      time.Time       `json:"recorded_at" yaml:"recorded_at"`
}

// Journal is the run history database of one project.
type Journal struct {
	db   *sql.DB
	path string
}

// Open opens or creates projectDir/history.db and its schema.
func Open(projectDir string) (*Journal, error) {
	path := filepath.Join(projectDir, dbFile)
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	j := &Journal{db: db, path: path}
	if err := j.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return j, nil
}

// Path returns the database file path.
func (j *Journal) Path() string { return j.path }

// Close releases the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			agent TEXT NOT NULL,
			max_iterations INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			completed INTEGER NOT NULL DEFAULT 0,
			iterations INTEGER NOT NULL DEFAULT 0,
			final_phase TEXT,
			error TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS iterations (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			iteration INTEGER NOT NULL,
			success INTEGER NOT NULL,
			phase TEXT NOT NULL,
			papers_delta INTEGER NOT NULL,
			complete INTEGER NOT NULL,
			error_kind TEXT,
			error TEXT,
			document_changed INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (run_id, iteration)
		)`,
	}

	for _, stmt := range statements {
		if _, err := j.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// BeginRun records the start of a run and returns its ULID.
func (j *Journal) BeginRun(ctx context.Context, agent types.AgentKind, maxIterations int) (string, error) {
	id := ulid.Make().String()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, agent, max_iterations, started_at) VALUES (?, ?, ?, ?)`,
		id, string(agent), maxIterations, formatTime(now()),
	)
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}
	return id, nil
}

// RecordIteration appends one iteration to runID.
func (j *Journal) RecordIteration(ctx context.Context, runID string, r types.IterationResult) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO iterations (run_id, iteration, success, phase, papers_delta, complete,
			error_kind, error, document_changed, duration_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, r.Iteration, r.Success, string(r.Phase), r.PapersDelta, r.IsComplete,
		nullString(string(r.AgentResult.ErrorKind)), nullString(r.ErrorMessage),
		r.DocumentChanged, r.Duration.Milliseconds(), formatTime(now()),
	)
	if err != nil {
		return fmt.Errorf("inserting iteration %d of run %s: %w", r.Iteration, runID, err)
	}
	return nil
}

// FinishRun stores the outcome of runID.
func (j *Journal) FinishRun(ctx context.Context, runID string, res types.LoopResult) error {
	result, err := j.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, completed = ?, iterations = ?, final_phase = ?, error = ?
		WHERE id = ?`,
		formatTime(now()), res.Completed, res.IterationsRun, string(res.FinalPhase),
		nullString(res.ErrorMessage), runID,
	)
	if err != nil {
		return fmt.Errorf("updating run %s: %w", runID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating run %s: %w", runID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// Runs returns the most recent runs first. limit <= 0 returns all runs.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, agent, max_iterations, started_at, finished_at, completed,
		iterations, final_phase, error FROM runs ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Run returns a single run.
func (j *Journal) Run(ctx context.Context, runID string) (Run, error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT id, agent, max_iterations, started_at, finished_at, completed,
			iterations, final_phase, error FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, err
}

// Iterations returns the iterations of runID in order.
func (j *Journal) Iterations(ctx context.Context, runID string) ([]Iteration, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT run_id, iteration, success, phase, papers_delta, complete, error_kind,
			error, document_changed, duration_ms, recorded_at
		FROM iterations WHERE run_id = ? ORDER BY iteration`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying iterations: %w", err)
	}
	defer rows.Close()

	var out []Iteration
	for rows.Next() {
		var (
			it                  Iteration
			phase               string
			errorKind, errorMsg sql.NullString
			durationMs          int64
			recordedAt          string
		)
		if err := rows.Scan(&it.RunID, &it.Iteration, &it.Success, &phase, &it.PapersDelta,
			&it.Complete, &errorKind, &errorMsg, &it.DocumentChanged, &durationMs, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning iteration: %w", err)
		}
		it.Phase = types.Phase(phase)
		it.ErrorKind = types.ErrorKind(errorKind.String)
		it.Error = errorMsg.String
		it.Duration = time.Duration(durationMs) * time.Millisecond
		it.RecordedAt = parseTime(recordedAt)
		out = append(out, it)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run                   Run
		agent, startedAt      string
		finishedAt, phase, er sql.NullString
	)
	if err := s.Scan(&run.ID, &agent, &run.MaxIterations, &startedAt, &finishedAt,
		&run.Completed, &run.Iterations, &phase, &er); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scanning run: %w", err)
	}
	run.Agent = types.AgentKind(agent)
	run.StartedAt = parseTime(startedAt)
	if finishedAt.Valid {
		run.FinishedAt = parseTime(finishedAt.String)
	}
	run.FinalPhase = types.Phase(phase.String)
	run.Error = er.String
	return run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
