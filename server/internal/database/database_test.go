package database

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhaobenny/sleepdash/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func sampleTable() *model.SleepTable {
	return model.NewSleepTable([]model.SleepRow{
		{
			Date:   time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC),
			Asleep: model.Present(26000000),
			Need:   model.Present(28800000),
			Stats: &model.SleepStats{
				SlowWave:   model.Present(3600000),
				Efficiency: model.Present(90),
			},
		},
		{Date: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), Need: model.Present(27000000)},
		{
			Date:  time.Date(2021, 1, 3, 0, 0, 0, 0, time.UTC),
			Stats: &model.SleepStats{Wake: model.Present(0)},
		},
	})
}

var (
	winStart = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	winEnd   = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
)

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.Migrate())
	assert.NoError(t, db.Ping())
}

func TestMigrate_AddsCycleColumnsToOldCache(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "old.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE sleep_rows (
		date TEXT PRIMARY KEY,
		has_sleep INTEGER NOT NULL,
		sws_duration REAL,
		quality_duration REAL,
		light_duration REAL,
		rem_duration REAL,
		wake_duration REAL,
		respiratory_rate REAL,
		efficiency REAL,
		consistency REAL,
		need_total REAL
	)`)
	require.NoError(t, err)

	require.NoError(t, db.Migrate())
	_, err = db.SaveSnapshot(sampleTable(), winStart, winEnd)
	require.NoError(t, err)

	loaded, _, err := db.LoadSnapshot()
	require.NoError(t, err)
	assert.Equal(t, sampleTable().Rows(), loaded.Rows())
}

func TestLoadSnapshot_Empty(t *testing.T) {
	db := openTestDB(t)

	_, _, err := db.LoadSnapshot()
	assert.True(t, errors.Is(err, ErrNoSnapshot))
}

func TestSnapshot_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	table := sampleTable()

	saved, err := db.SaveSnapshot(table, winStart, winEnd)
	require.NoError(t, err)
	assert.Equal(t, 3, saved.Rows)
	assert.NotZero(t, saved.ID)

	loaded, snap, err := db.LoadSnapshot()
	require.NoError(t, err)
	assert.Equal(t, saved.ID, snap.ID)
	assert.True(t, winStart.Equal(snap.WindowStart))
	assert.True(t, winEnd.Equal(snap.WindowEnd))
	assert.Equal(t, 3, snap.Rows)

	assert.Equal(t, table.Rows(), loaded.Rows())

	rows := loaded.Rows()
	assert.False(t, rows[0].HasSleep())
	assert.Equal(t, model.Present(27000000), rows[0].Need)
	assert.False(t, rows[0].Asleep.Valid)
	assert.Equal(t, model.Present(26000000), rows[1].Asleep)
	// missing stays missing, zero stays zero
	assert.False(t, rows[1].Stat(model.Quality).Valid)
	assert.Equal(t, model.Present(0), rows[2].Stat(model.Wake))
}

func TestSaveSnapshot_Replaces(t *testing.T) {
	db := openTestDB(t)

	_, err := db.SaveSnapshot(sampleTable(), winStart, winEnd)
	require.NoError(t, err)

	second := model.NewSleepTable([]model.SleepRow{
		{Date: time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)},
	})
	_, err = db.SaveSnapshot(second, winStart, winEnd)
	require.NoError(t, err)

	loaded, snap, err := db.LoadSnapshot()
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
	assert.Equal(t, 1, snap.Rows)
}

func TestSaveSnapshot_EmptyTable(t *testing.T) {
	db := openTestDB(t)

	_, err := db.SaveSnapshot(model.NewSleepTable(nil), winStart, winEnd)
	require.NoError(t, err)

	loaded, _, err := db.LoadSnapshot()
	require.NoError(t, err)
	assert.Zero(t, loaded.Len())
}
