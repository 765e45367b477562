package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// OpenDB opens the database without touching the schema. The migrate
// subcommand uses it so golang-migrate owns every schema change.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id            TEXT PRIMARY KEY,
			kind              TEXT NOT NULL,
			protocol          TEXT,
			sample_number     BIGINT,
			instrument_date   TEXT,
			start_time        TEXT,
			bitsum_local      BIGINT DEFAULT 0,
			bitsum_reported   BIGINT DEFAULT 0,
			channels          BIGINT DEFAULT 0,
			complete          BIGINT DEFAULT 0,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS time_points (
			run_id            TEXT,
			seconds           BIGINT,
			counts            BIGINT,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);
		CREATE TABLE IF NOT EXISTS spectra (
			run_id            TEXT,
			channel           BIGINT,
			counts            BIGINT,
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);
		CREATE INDEX IF NOT EXISTS idx_time_points_run ON time_points(run_id);
		CREATE INDEX IF NOT EXISTS idx_spectra_run ON spectra(run_id, channel);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// Run kinds. A time run is the counts-vs-time record streamed during a
// measurement; a spectrum run is the channel histogram transferred after it.
const (
	RunKindTime     = "time"
	RunKindSpectrum = "spectrum"
)

// Run is one recorded acquisition, either a time readout or a spectrum.
type Run struct {
	ID             string `json:"id"`
	Kind           string `json:"kind"`
	Protocol       string `json:"protocol"`
	SampleNumber   int    `json:"sample_number"`
	InstrumentDate string `json:"instrument_date"`
	StartTime      string `json:"start_time"`
	BitsumLocal    int    `json:"bitsum_local"`
	BitsumReported int    `json:"bitsum_reported"`
	Channels       int    `json:"channels"`
	Complete       bool   `json:"complete"`
	CreatedAt      string `json:"created_at"`
}

// TimePoint is one entry of a time run's counts-vs-time record.
type TimePoint struct {
	Seconds int `json:"seconds"`
	Counts  int `json:"counts"`
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

func (db *DB) CreateRun(run Run) error {
	_, err := db.Exec(
		`INSERT INTO runs (run_id, kind, protocol, sample_number, instrument_date, start_time)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.Protocol, run.SampleNumber, run.InstrumentDate, run.StartTime,
	)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", run.ID, err)
	}
	return nil
}

// UpdateRunMeta refreshes the identifying fields of a run that were learned
// after the run was created (the preamble is not always observed first).
func (db *DB) UpdateRunMeta(run Run) error {
	_, err := db.Exec(
		`UPDATE runs SET protocol = ?, sample_number = ?, instrument_date = ?, start_time = ?
		 WHERE run_id = ?`,
		run.Protocol, run.SampleNumber, run.InstrumentDate, run.StartTime, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", run.ID, err)
	}
	return nil
}

func (db *DB) RecordTimePoint(runID string, seconds, counts int) error {
	_, err := db.Exec(
		"INSERT INTO time_points (run_id, seconds, counts) VALUES (?, ?, ?)",
		runID, seconds, counts,
	)
	if err != nil {
		return fmt.Errorf("failed to record time point for run %s: %w", runID, err)
	}
	return nil
}

// RecordSpectrum stores a decoded spectrum in one transaction and marks the
// run complete when all channels are present.
func (db *DB) RecordSpectrum(runID string, counts []int) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin spectrum transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT INTO spectra (run_id, channel, counts) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare spectrum insert: %w", err)
	}
	defer stmt.Close()

	for channel, c := range counts {
		if _, err := stmt.Exec(runID, channel, c); err != nil {
			return fmt.Errorf("failed to insert channel %d for run %s: %w", channel, runID, err)
		}
	}

	complete := 0
	if len(counts) == 1024 {
		complete = 1
	}
	if _, err := tx.Exec("UPDATE runs SET channels = ?, complete = ? WHERE run_id = ?", len(counts), complete, runID); err != nil {
		return fmt.Errorf("failed to update run %s channel count: %w", runID, err)
	}

	return tx.Commit()
}

// SetRunBitsum stores the locally computed and instrument-reported checksums
// for a spectrum run. Both are advisory.
func (db *DB) SetRunBitsum(runID string, local, reported int) error {
	_, err := db.Exec(
		"UPDATE runs SET bitsum_local = ?, bitsum_reported = ? WHERE run_id = ?",
		local, reported, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to set bitsum for run %s: %w", runID, err)
	}
	return nil
}

const runColumns = `run_id, kind, protocol, sample_number, instrument_date, start_time,
	bitsum_local, bitsum_reported, channels, complete, timestamp`

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var r Run
	var complete int
	err := row.Scan(&r.ID, &r.Kind, &r.Protocol, &r.SampleNumber, &r.InstrumentDate,
		&r.StartTime, &r.BitsumLocal, &r.BitsumReported, &r.Channels, &complete, &r.CreatedAt)
	r.Complete = complete == 1
	return r, err
}

func (db *DB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		"SELECT "+runColumns+" FROM runs ORDER BY timestamp DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (db *DB) GetRun(id string) (*Run, error) {
	row := db.QueryRow("SELECT "+runColumns+" FROM runs WHERE run_id = ?", id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return &r, nil
}

// GetSpectrum returns a run's channel counts in channel order.
func (db *DB) GetSpectrum(runID string) ([]int, error) {
	rows, err := db.Query(
		"SELECT channel, counts FROM spectra WHERE run_id = ? ORDER BY channel ASC", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query spectrum for run %s: %w", runID, err)
	}
	defer rows.Close()

	var counts []int
	for rows.Next() {
		var channel, c int
		if err := rows.Scan(&channel, &c); err != nil {
			return nil, fmt.Errorf("failed to scan spectrum row: %w", err)
		}
		// channel index equals array position for a well-formed spectrum
		if channel != len(counts) {
			return nil, fmt.Errorf("spectrum for run %s has a gap at channel %d", runID, len(counts))
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (db *DB) GetTimeSeries(runID string) ([]TimePoint, error) {
	rows, err := db.Query(
		"SELECT seconds, counts FROM time_points WHERE run_id = ? ORDER BY timestamp ASC, seconds ASC", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query time series for run %s: %w", runID, err)
	}
	defer rows.Close()

	var points []TimePoint
	for rows.Next() {
		var p TimePoint
		if err := rows.Scan(&p.Seconds, &p.Counts); err != nil {
			return nil, fmt.Errorf("failed to scan time point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// touchTimestamp is used by tests to fabricate run ordering.
func (db *DB) touchTimestamp(runID string, t time.Time) error {
	_, err := db.Exec("UPDATE runs SET timestamp = ? WHERE run_id = ?", t.UTC().Format(time.RFC3339), runID)
	return err
}
