package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/zhaobenny/sleepdash/internal/model"
)

// ErrNoSnapshot is returned by LoadSnapshot before any table was saved
var ErrNoSnapshot = errors.New("no cached snapshot")

// DB wraps the SQL database connection
type DB struct {
	*sql.DB
}

// Snapshot describes one cached fetch
type Snapshot struct {
	ID          int64
	FetchedAt   time.Time
	WindowStart time.Time
	WindowEnd   time.Time
	Rows        int
}

// Open opens a SQLite database connection
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set busy timeout to avoid "database is locked" errors under concurrent load
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	return &DB{db}, nil
}

// Migrate creates the database schema
func (db *DB) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		expiry REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_expiry ON sessions(expiry);

	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		fetched_at TIMESTAMP NOT NULL,
		window_start TIMESTAMP NOT NULL,
		window_end TIMESTAMP NOT NULL,
		row_count INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sleep_rows (
		date TEXT PRIMARY KEY,
		has_sleep INTEGER NOT NULL,
		asleep_duration REAL,
		need_total REAL,
		sws_duration REAL,
		quality_duration REAL,
		light_duration REAL,
		rem_duration REAL,
		wake_duration REAL,
		respiratory_rate REAL,
		efficiency REAL,
		consistency REAL
	);
	`

	if _, err := db.Exec(schema); err != nil {
		return err
	}

	// caches written before the cycle-level totals had their own column
	return db.addColumn("sleep_rows", "asleep_duration", "REAL")
}

func (db *DB) addColumn(table, column, typ string) error {
	var n int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column,
	).Scan(&n)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err = db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, typ))
	return err
}

// SaveSnapshot replaces the cached rows with table and records the fetch.
// Either the whole table is stored or nothing changes.
func (db *DB) SaveSnapshot(table *model.SleepTable, windowStart, windowEnd time.Time) (*Snapshot, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM sleep_rows`); err != nil {
		return nil, err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO sleep_rows
		(date, has_sleep, asleep_duration, need_total, sws_duration, quality_duration,
		 light_duration, rem_duration, wake_duration, respiratory_rate, efficiency, consistency)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	rows := table.Rows()
	for _, r := range rows {
		_, err := stmt.Exec(
			r.Date.Format(model.DayLayout), r.HasSleep(),
			nullable(r.Asleep), nullable(r.Need),
			nullable(r.Stat(model.SlowWave)), nullable(r.Stat(model.Quality)),
			nullable(r.Stat(model.Light)), nullable(r.Stat(model.REM)),
			nullable(r.Stat(model.Wake)), nullable(r.Stat(model.RespiratoryRate)),
			nullable(r.Stat(model.Efficiency)), nullable(r.Stat(model.Consistency)),
		)
		if err != nil {
			return nil, fmt.Errorf("insert row %s: %w", r.Date.Format(model.DayLayout), err)
		}
	}

	snap := &Snapshot{
		FetchedAt:   time.Now().UTC(),
		WindowStart: windowStart.UTC(),
		WindowEnd:   windowEnd.UTC(),
		Rows:        len(rows),
	}
	result, err := tx.Exec(
		`INSERT INTO snapshots (fetched_at, window_start, window_end, row_count) VALUES (?, ?, ?, ?)`,
		snap.FetchedAt, snap.WindowStart, snap.WindowEnd, snap.Rows,
	)
	if err != nil {
		return nil, err
	}
	if snap.ID, err = result.LastInsertId(); err != nil {
		return nil, err
	}

	return snap, tx.Commit()
}

// LatestSnapshot returns the most recent fetch record, or ErrNoSnapshot
func (db *DB) LatestSnapshot() (*Snapshot, error) {
	snap := &Snapshot{}
	err := db.QueryRow(
		`SELECT id, fetched_at, window_start, window_end, row_count
		 FROM snapshots ORDER BY id DESC LIMIT 1`,
	).Scan(&snap.ID, &snap.FetchedAt, &snap.WindowStart, &snap.WindowEnd, &snap.Rows)
	if err == sql.ErrNoRows {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// LoadSnapshot returns the cached table together with its fetch record
func (db *DB) LoadSnapshot() (*model.SleepTable, *Snapshot, error) {
	snap, err := db.LatestSnapshot()
	if err != nil {
		return nil, nil, err
	}

	rs, err := db.Query(`
		SELECT date, has_sleep, asleep_duration, need_total, sws_duration, quality_duration,
		       light_duration, rem_duration, wake_duration, respiratory_rate, efficiency, consistency
		FROM sleep_rows ORDER BY date
	`)
	if err != nil {
		return nil, nil, err
	}
	defer rs.Close()

	var rows []model.SleepRow
	for rs.Next() {
		var (
			date     string
			hasSleep bool
			asleep   sql.NullFloat64
			need     sql.NullFloat64
			cols     [8]sql.NullFloat64
		)
		if err := rs.Scan(&date, &hasSleep, &asleep, &need,
			&cols[0], &cols[1], &cols[2], &cols[3],
			&cols[4], &cols[5], &cols[6], &cols[7]); err != nil {
			return nil, nil, err
		}

		d, err := model.ParseDay(date)
		if err != nil {
			return nil, nil, fmt.Errorf("cached row: %w", err)
		}
		row := model.SleepRow{Date: d, Asleep: metric(asleep), Need: metric(need)}
		if hasSleep {
			row.Stats = &model.SleepStats{
				SlowWave:        metric(cols[0]),
				Quality:         metric(cols[1]),
				Light:           metric(cols[2]),
				REM:             metric(cols[3]),
				Wake:            metric(cols[4]),
				RespiratoryRate: metric(cols[5]),
				Efficiency:      metric(cols[6]),
				Consistency:     metric(cols[7]),
			}
		}
		rows = append(rows, row)
	}
	if err := rs.Err(); err != nil {
		return nil, nil, err
	}

	return model.NewSleepTable(rows), snap, nil
}

func nullable(m model.Metric) sql.NullFloat64 {
	return sql.NullFloat64{Float64: m.Value, Valid: m.Valid}
}

func metric(n sql.NullFloat64) model.Metric {
	if !n.Valid {
		return model.Metric{}
	}
	return model.Present(n.Float64)
}
