// Package journal records batch pass outcomes in a local sqlite database.
//
// The journal is an operations aid, never a correctness mechanism: stages
// stay idempotent through their output paths whether or not a journal is
// configured, and a journal write failure never fails a pass.
package journal

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Journal wraps the sqlite handle.
type Journal struct {
	*sql.DB
}

// Open opens (or creates) the journal database at path and ensures the
// schema exists.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS passes (
			pass_id TEXT PRIMARY KEY,
			run_id TEXT,
			stage TEXT,
			device TEXT,
			window_start TIMESTAMP,
			window_end TIMESTAMP,
			produced INTEGER,
			skipped INTEGER,
			failed INTEGER,
			error TEXT,
			timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: create schema: %w", err)
	}

	return &Journal{db}, nil
}

// Pass is one recorded stage pass.
type Pass struct {
	PassID      string
	RunID       string
	Stage       string
	Device      string
	WindowStart time.Time
	WindowEnd   time.Time
	Produced    int
	Skipped     int
	Failed      int
	Error       string
}

// NewRunID mints an identifier shared by the passes of one scheduler cycle.
func NewRunID() string { return uuid.NewString() }

// RecordPass inserts one pass row. The pass ID is minted here.
func (j *Journal) RecordPass(p Pass) error {
	if p.PassID == "" {
		p.PassID = uuid.NewString()
	}
	_, err := j.Exec(`
		INSERT INTO passes
			(pass_id, run_id, stage, device, window_start, window_end,
			 produced, skipped, failed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.PassID, p.RunID, p.Stage, p.Device,
		p.WindowStart.UTC(), p.WindowEnd.UTC(),
		p.Produced, p.Skipped, p.Failed, p.Error)
	if err != nil {
		return fmt.Errorf("journal: record pass: %w", err)
	}
	return nil
}

// RecentPasses returns the newest passes, most recent first.
func (j *Journal) RecentPasses(limit int) ([]Pass, error) {
	rows, err := j.Query(`
		SELECT pass_id, run_id, stage, device, window_start, window_end,
		       produced, skipped, failed, error
		FROM passes ORDER BY timestamp DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var passes []Pass
	for rows.Next() {
		var p Pass
		if err := rows.Scan(&p.PassID, &p.RunID, &p.Stage, &p.Device,
			&p.WindowStart, &p.WindowEnd,
			&p.Produced, &p.Skipped, &p.Failed, &p.Error); err != nil {
			return nil, err
		}
		passes = append(passes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return passes, nil
}
