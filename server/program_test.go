package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhaobenny/sleepdash/internal/config"
	"github.com/zhaobenny/sleepdash/internal/model"
	"github.com/zhaobenny/sleepdash/internal/whoop"
	"github.com/zhaobenny/sleepdash/server/internal/database"
)

func fakeVendor(t *testing.T, tokenStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, _ *http.Request) {
		if tokenStatus != http.StatusOK {
			w.WriteHeader(tokenStatus)
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok","user":{"id":9}}`))
	})
	mux.HandleFunc("/users/9/cycles", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[
			{"days":["2021-01-01"],"sleep":{"sleeps":[{"slowWaveSleepDuration":3600000,"sleepEfficiency":90}]}},
			{"days":["2021-01-02"]}
		]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func setup(t *testing.T, baseURL string) (*config.Config, *database.DB) {
	t.Helper()
	t.Setenv("TEST_WHOOP_PASSWORD", "hunter2")

	cfg := config.Defaults()
	cfg.Whoop.BaseURL = baseURL
	cfg.Whoop.PasswordEnv = "TEST_WHOOP_PASSWORD"

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return cfg, db
}

func TestLoadTable_FetchesAndCaches(t *testing.T) {
	vendor := fakeVendor(t, http.StatusOK)
	cfg, db := setup(t, vendor.URL)

	table, err := loadTable(context.Background(), cfg, db, nopLogger())
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, model.Present(90), table.Rows()[0].Stat(model.Efficiency))

	cached, snap, err := db.LoadSnapshot()
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Rows)
	assert.Equal(t, table.Rows(), cached.Rows())

	// offline mode now serves the cache without touching the vendor
	vendor.Close()
	cfg.Server.Offline = true
	offline, err := loadTable(context.Background(), cfg, db, nopLogger())
	require.NoError(t, err)
	assert.Equal(t, table.Rows(), offline.Rows())
}

func TestLoadTable_OfflineWithoutSnapshot(t *testing.T) {
	cfg, db := setup(t, "http://127.0.0.1:1")
	cfg.Server.Offline = true

	_, err := loadTable(context.Background(), cfg, db, nopLogger())
	assert.True(t, errors.Is(err, database.ErrNoSnapshot))
}

func TestLoadTable_AuthRejected(t *testing.T) {
	vendor := fakeVendor(t, http.StatusUnauthorized)
	cfg, db := setup(t, vendor.URL)

	_, err := loadTable(context.Background(), cfg, db, nopLogger())
	var authErr *whoop.AuthError
	require.True(t, errors.As(err, &authErr))

	_, _, err = db.LoadSnapshot()
	assert.True(t, errors.Is(err, database.ErrNoSnapshot))
}

func TestLoadTable_MissingPassword(t *testing.T) {
	cfg, db := setup(t, "http://127.0.0.1:1")
	t.Setenv("TEST_WHOOP_PASSWORD", "")

	_, err := loadTable(context.Background(), cfg, db, nopLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TEST_WHOOP_PASSWORD")
}

func nopLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
