// Package prices stores raw energy price series in SQLite and turns them into
// dynamic tariffs.
package prices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/gridflex/core/model"
	"github.com/kilianp07/gridflex/core/tariff"
)

// ErrNoPrices is returned when a source has no price in the requested range.
var ErrNoPrices = errors.New("no prices stored")

// Store persists price points keyed by source and start time.
type Store struct {
	db *sql.DB
}

// Series is a price series of one source with a fixed sample length.
type Series struct {
	Source string
	Step   time.Duration
	Points []tariff.PricePoint
}

// Source summarizes what is stored for one source.
type Source struct {
	Name  string
	Count int
	First time.Time
	Last  time.Time
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	schema := `CREATE TABLE IF NOT EXISTS prices (
        source TEXT NOT NULL,
        ts INTEGER NOT NULL,
        step_s INTEGER NOT NULL,
        price REAL NOT NULL,
        PRIMARY KEY(source, ts)
    );`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &Store{db: db}, nil
}

// Put upserts the series in a single transaction.
func (s *Store) Put(ctx context.Context, series Series) error {
	if series.Source == "" {
		return fmt.Errorf("price series without source")
	}
	if series.Step <= 0 {
		return fmt.Errorf("price series %s: non-positive step %s", series.Source, series.Step)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO prices (source, ts, step_s, price) VALUES (?, ?, ?, ?)
        ON CONFLICT(source, ts) DO UPDATE SET step_s = excluded.step_s, price = excluded.price`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()
	for _, p := range series.Points {
		if _, err := stmt.ExecContext(ctx, series.Source, p.Time.UTC().Unix(), int64(series.Step/time.Second), p.Price); err != nil {
			return fmt.Errorf("insert %s at %s: %w", series.Source, p.Time.Format(time.RFC3339), err)
		}
	}
	return tx.Commit()
}

// Range returns the points of source starting in [start, end), ordered by time.
func (s *Store) Range(ctx context.Context, source string, start, end time.Time) (Series, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ts, step_s, price FROM prices
        WHERE source = ? AND ts >= ? AND ts < ? ORDER BY ts`, source, start.UTC().Unix(), end.UTC().Unix())
	if err != nil {
		return Series{}, err
	}
	defer func() { _ = rows.Close() }()
	out := Series{Source: source}
	for rows.Next() {
		var ts, step int64
		var price float64
		if err := rows.Scan(&ts, &step, &price); err != nil {
			return Series{}, err
		}
		d := time.Duration(step) * time.Second
		if out.Step == 0 {
			out.Step = d
		} else if out.Step != d {
			return Series{}, fmt.Errorf("source %s mixes %s and %s samples", source, out.Step, d)
		}
		out.Points = append(out.Points, tariff.PricePoint{Time: time.Unix(ts, 0).UTC(), Price: price})
	}
	if err := rows.Err(); err != nil {
		return Series{}, err
	}
	return out, nil
}

// Sources lists stored sources by name.
func (s *Store) Sources(ctx context.Context) ([]Source, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source, COUNT(*), MIN(ts), MAX(ts) FROM prices GROUP BY source ORDER BY source`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []Source
	for rows.Next() {
		var src Source
		var first, last int64
		if err := rows.Scan(&src.Name, &src.Count, &first, &last); err != nil {
			return nil, err
		}
		src.First, src.Last = time.Unix(first, 0).UTC(), time.Unix(last, 0).UTC()
		res = append(res, src)
	}
	return res, rows.Err()
}

// feeHistory is how far before the horizon prices are loaded. Dynamic network
// fees take their windows from a reference day up to a week back.
const feeHistory = 8 * 24 * time.Hour

// TariffSpec returns a dynamic tariff descriptor covering h from the stored
// prices of source. Prices from up to eight days earlier are included so that
// fee windows can follow their reference day, and one day after the horizon
// keeps the last day complete; gaps inside the horizon are left to tariff
// coverage.
func (s *Store) TariffSpec(ctx context.Context, source string, h model.TimeHorizon, fee *model.NetworkFeeSpec) (model.TariffSpec, error) {
	series, err := s.Range(ctx, source, h.Start().Add(-feeHistory), h.End().Add(24*time.Hour))
	if err != nil {
		return model.TariffSpec{}, err
	}
	if len(series.Points) == 0 {
		return model.TariffSpec{}, fmt.Errorf("%w for %s between %s and %s", ErrNoPrices, source,
			h.Start().Format(time.RFC3339), h.End().Format(time.RFC3339))
	}
	var nf *tariff.NetworkFee
	if fee != nil {
		f, err := tariff.NetworkFeeFromSpec(*fee)
		if err != nil {
			return model.TariffSpec{}, err
		}
		nf = &f
	}
	if _, err := tariff.FromPrices(series.Points, series.Step, nf); err != nil {
		return model.TariffSpec{}, fmt.Errorf("prices of %s: %w", source, err)
	}
	spec := model.TariffSpec{Type: model.TariffDynamic, NetworkFee: fee}
	for _, p := range series.Points {
		spec.Entries = append(spec.Entries, model.RateEntrySpec{
			Start:           p.Time,
			DurationMinutes: int(series.Step / time.Minute),
			Energy:          p.Price,
		})
	}
	return spec, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }
