package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a record is not found.
var ErrNotFound = errors.New("not found")

// RunRecord summarizes one finished run.
type RunRecord struct {
	ID            int64
	StartedAt     time.Time
	FinishedAt    time.Time
	Processed     int
	RelevantCount int
	ErrorCount    int
	Truncated     bool
}

// VerdictRecord is one video's outcome within a run.
type VerdictRecord struct {
	VideoID        string
	Title          string
	ChannelName    string
	Result         string
	Tier           string
	Reason         string
	MatchedKeyword string
}

// DB wraps the SQLite connection holding run history. The history is
// write-only diagnostics: it is never consulted to deduplicate videos
// across runs.
type DB struct {
	conn *sql.DB
}

// NewDB opens the database and initializes the schema.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		processed INTEGER NOT NULL DEFAULT 0,
		relevant_count INTEGER NOT NULL DEFAULT 0,
		error_count INTEGER NOT NULL DEFAULT 0,
		truncated INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS verdicts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id),
		video_id TEXT NOT NULL,
		title TEXT NOT NULL,
		channel_name TEXT NOT NULL,
		result TEXT NOT NULL,
		tier TEXT NOT NULL,
		reason TEXT,
		matched_keyword TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_verdicts_run_id ON verdicts(run_id);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// SaveRun inserts a run and its verdicts in one transaction and returns
// the run ID.
func (db *DB) SaveRun(ctx context.Context, run *RunRecord, verdicts []VerdictRecord) (int64, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	truncated := 0
	if run.Truncated {
		truncated = 1
	}

	res, err := tx.ExecContext(ctx, `
	INSERT INTO runs (started_at, finished_at, processed, relevant_count, error_count, truncated)
	VALUES (?, ?, ?, ?, ?, ?)`,
		run.StartedAt, run.FinishedAt, run.Processed, run.RelevantCount, run.ErrorCount, truncated,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}

	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run id: %w", err)
	}

	for _, v := range verdicts {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO verdicts (run_id, video_id, title, channel_name, result, tier, reason, matched_keyword)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, v.VideoID, v.Title, v.ChannelName, v.Result, v.Tier, v.Reason, v.MatchedKeyword,
		)
		if err != nil {
			return 0, fmt.Errorf("insert verdict: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return runID, nil
}

// LastRun returns the most recent run record.
func (db *DB) LastRun(ctx context.Context) (*RunRecord, error) {
	query := `
	SELECT id, started_at, finished_at, processed, relevant_count, error_count, truncated
	FROM runs ORDER BY id DESC LIMIT 1
	`

	run := &RunRecord{}
	var truncated int
	err := db.conn.QueryRowContext(ctx, query).Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Processed,
		&run.RelevantCount,
		&run.ErrorCount,
		&truncated,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	run.Truncated = truncated != 0

	return run, nil
}

// RunVerdicts returns the verdicts recorded for a run.
func (db *DB) RunVerdicts(ctx context.Context, runID int64) ([]VerdictRecord, error) {
	query := `
	SELECT video_id, title, channel_name, result, tier, reason, matched_keyword
	FROM verdicts WHERE run_id = ? ORDER BY id
	`

	rows, err := db.conn.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var verdicts []VerdictRecord
	for rows.Next() {
		var v VerdictRecord
		var reason, matched sql.NullString
		if err := rows.Scan(&v.VideoID, &v.Title, &v.ChannelName, &v.Result, &v.Tier, &reason, &matched); err != nil {
			return nil, err
		}
		v.Reason = reason.String
		v.MatchedKeyword = matched.String
		verdicts = append(verdicts, v)
	}
	return verdicts, rows.Err()
}
