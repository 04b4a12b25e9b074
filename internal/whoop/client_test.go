package whoop

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhaobenny/sleepdash/internal/model"
)

// fakeWhoop serves the token and cycles endpoints for a single user.
func fakeWhoop(t *testing.T, tokenStatus, cyclesStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "password", body["grant_type"])
		assert.Equal(t, false, body["issueRefresh"])
		assert.Equal(t, "me@example.com", body["username"])
		assert.Equal(t, "hunter2", body["password"])

		if tokenStatus != http.StatusOK {
			w.WriteHeader(tokenStatus)
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok-123","user":{"id":4242}}`))
	})

	mux.HandleFunc("/users/4242/cycles", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "2021-01-01T00:00:00.000Z", r.URL.Query().Get("start"))
		assert.Equal(t, "2021-02-01T00:00:00.000Z", r.URL.Query().Get("end"))

		if cyclesStatus != http.StatusOK {
			w.WriteHeader(cyclesStatus)
			return
		}
		_, _ = w.Write([]byte(`[{"days":["2021-01-02"]},{"days":["2021-01-03"],"sleep":{"sleeps":[]}}]`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

var (
	cred        = model.Credential{Username: "me@example.com", Password: "hunter2"}
	windowStart = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC)
)

func TestAuthenticate(t *testing.T) {
	srv := fakeWhoop(t, http.StatusOK, http.StatusOK)
	c := NewClient(srv.URL, 5*time.Second, nil)

	session, err := c.Authenticate(context.Background(), cred)
	require.NoError(t, err)
	assert.Equal(t, model.Session{Token: "tok-123", UserID: "4242"}, session)
}

func TestAuthenticate_RejectedCredentials(t *testing.T) {
	srv := fakeWhoop(t, http.StatusUnauthorized, http.StatusOK)
	c := NewClient(srv.URL, 5*time.Second, nil)

	_, err := c.Authenticate(context.Background(), cred)
	require.Error(t, err)

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
}

func TestAuthenticate_MissingToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"user":{"id":1}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, nil).Authenticate(context.Background(), cred)
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Zero(t, authErr.StatusCode)
}

func TestAuthenticate_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, time.Second, nil).Authenticate(context.Background(), cred)
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Error(t, authErr.Unwrap())
}

func TestFetchCycles(t *testing.T) {
	srv := fakeWhoop(t, http.StatusOK, http.StatusOK)
	c := NewClient(srv.URL+"/", 5*time.Second, nil)

	session, err := c.Authenticate(context.Background(), cred)
	require.NoError(t, err)

	records, err := c.FetchCycles(context.Background(), session, windowStart, windowEnd)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.JSONEq(t, `{"days":["2021-01-02"]}`, string(records[0]))
}

func TestFetchCycles_ExpiredSession(t *testing.T) {
	srv := fakeWhoop(t, http.StatusOK, http.StatusUnauthorized)
	c := NewClient(srv.URL, 5*time.Second, nil)

	_, err := c.FetchCycles(context.Background(), model.Session{Token: "tok-123", UserID: "4242"}, windowStart, windowEnd)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusUnauthorized, fetchErr.StatusCode)
}

func TestFetchCycles_CancelledContext(t *testing.T) {
	srv := fakeWhoop(t, http.StatusOK, http.StatusOK)
	c := NewClient(srv.URL, 5*time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchCycles(ctx, model.Session{Token: "tok-123", UserID: "4242"}, windowStart, windowEnd)
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.ErrorIs(t, err, context.Canceled)
}
