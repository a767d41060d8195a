// Package kpi persists daily energy records of dispatch schedules.
package kpi

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/kilianp07/gridflex/core/metrics/eco"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists eco records in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `CREATE TABLE IF NOT EXISTS eco_records (
    asset_id TEXT NOT NULL,
    day INTEGER NOT NULL,
    consumed REAL NOT NULL DEFAULT 0,
    produced REAL NOT NULL DEFAULT 0,
    low_window REAL NOT NULL DEFAULT 0,
    PRIMARY KEY(asset_id, day)
);`

// NewSQLiteStore opens or creates the database and ensures the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create eco schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Add accumulates r into the record of its asset and day.
func (s *SQLiteStore) Add(r eco.Record) error {
	d := eco.Day(r.Date)
	_, err := s.db.Exec(`INSERT INTO eco_records (asset_id, day, consumed, produced, low_window)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(asset_id, day) DO UPDATE SET
            consumed = consumed + excluded.consumed,
            produced = produced + excluded.produced,
            low_window = low_window + excluded.low_window`,
		r.AssetID, d.Unix(), r.ConsumedKWh, r.ProducedKWh, r.LowWindowKWh)
	return err
}

// Query returns records in the range [start,end] ordered by day.
func (s *SQLiteStore) Query(assetID string, start, end time.Time) ([]eco.Record, error) {
	rows, err := s.db.Query(`SELECT asset_id, day, consumed, produced, low_window
        FROM eco_records WHERE asset_id = ? AND day >= ? AND day <= ? ORDER BY day`,
		assetID, eco.Day(start).Unix(), eco.Day(end).Unix())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []eco.Record
	for rows.Next() {
		var r eco.Record
		var ts int64
		if err := rows.Scan(&r.AssetID, &ts, &r.ConsumedKWh, &r.ProducedKWh, &r.LowWindowKWh); err != nil {
			return nil, err
		}
		r.Date = time.Unix(ts, 0).UTC()
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
