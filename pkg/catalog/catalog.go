// Package catalog records completed windows into a small SQLite database
// at <outroot>/catalog.db. The catalog is an operational convenience for
// inspecting large runs; it is never on the failure path — callers log
// and ignore catalog errors.
package catalog

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/sergiubuhatel/ra2/pkg/model"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS windows (
	company      TEXT NOT NULL,
	window_id    TEXT NOT NULL,
	status       TEXT NOT NULL,
	fatal        TEXT,
	n_events     INTEGER NOT NULL DEFAULT 0,
	duration_ms  INTEGER NOT NULL DEFAULT 0,
	finished_at  TEXT NOT NULL,
	PRIMARY KEY (company, window_id)
);
`

// Catalog is a write-mostly record of window outcomes. The orchestrator's
// worker goroutines each call Record after every window; the underlying
// *sql.DB is safe for that concurrent use.
type Catalog struct {
	db *sql.DB
}

// Open creates (or opens) the catalog database and ensures the schema.
func Open(path string) (*Catalog, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init catalog schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Record upserts one window outcome.
func (c *Catalog) Record(rec model.RunRecord) error {
	_, err := c.db.Exec(`
		INSERT INTO windows (company, window_id, status, fatal, n_events, duration_ms, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (company, window_id) DO UPDATE SET
			status = excluded.status,
			fatal = excluded.fatal,
			n_events = excluded.n_events,
			duration_ms = excluded.duration_ms,
			finished_at = excluded.finished_at`,
		rec.Company, rec.WindowID, rec.Status, rec.Fatal,
		rec.NEvents, rec.ElapsedMS, rec.FinishedAt.UTC().Format("2006-01-02T15:04:05Z"),
	)
	if err != nil {
		return fmt.Errorf("record window %s/%s: %w", rec.Company, rec.WindowID, err)
	}
	return nil
}

// Count returns the number of windows recorded with the given status
// ("" counts everything).
func (c *Catalog) Count(status string) (int64, error) {
	var (
		n   int64
		err error
	)
	if status == "" {
		err = c.db.QueryRow(`SELECT COUNT(*) FROM windows`).Scan(&n)
	} else {
		err = c.db.QueryRow(`SELECT COUNT(*) FROM windows WHERE status = ?`, status).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count windows: %w", err)
	}
	return n, nil
}

// Close releases the database handle.
func (c *Catalog) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
