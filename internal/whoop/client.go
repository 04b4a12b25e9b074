package whoop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhaobenny/sleepdash/internal/model"
)

// DefaultBaseURL is the WHOOP v1 API host
const DefaultBaseURL = "https://api-7.whoop.com"

// TimestampLayout is the ISO-8601 form the cycles endpoint expects
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Client talks to the WHOOP token and cycles endpoints
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// TokenRequest is the body posted to the token endpoint
type TokenRequest struct {
	GrantType    string `json:"grant_type"`
	IssueRefresh bool   `json:"issueRefresh"`
	Password     string `json:"password"`
	Username     string `json:"username"`
}

// TokenResponse is the subset of the token endpoint response we use
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	User        struct {
		ID json.RawMessage `json:"id"`
	} `json:"user"`
}

// AuthError reports a failed token exchange. StatusCode is 0 when the
// request never got a response.
type AuthError struct {
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("whoop auth: token endpoint returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("whoop auth: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// FetchError reports a failed cycles request
type FetchError struct {
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("whoop fetch: cycles endpoint returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("whoop fetch: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewClient creates a new WHOOP client. A zero timeout disables the
// per-request deadline.
func NewClient(baseURL string, timeout time.Duration, logger *zap.SugaredLogger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Authenticate exchanges a username and password for a bearer token.
// The password is sent once, in the request body, and never logged.
func (c *Client) Authenticate(ctx context.Context, cred model.Credential) (model.Session, error) {
	data, err := json.Marshal(TokenRequest{
		GrantType:    "password",
		IssueRefresh: false,
		Password:     cred.Password,
		Username:     cred.Username,
	})
	if err != nil {
		return model.Session{}, &AuthError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/token", bytes.NewReader(data))
	if err != nil {
		return model.Session{}, &AuthError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.Session{}, &AuthError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return model.Session{}, &AuthError{StatusCode: resp.StatusCode}
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return model.Session{}, &AuthError{Err: fmt.Errorf("decode token response: %w", err)}
	}

	// user.id is numeric in v1 but tolerate a quoted form
	userID := strings.Trim(string(token.User.ID), `"`)
	if token.AccessToken == "" || userID == "" || userID == "null" {
		return model.Session{}, &AuthError{Err: fmt.Errorf("token response missing access_token or user.id")}
	}

	c.logger.Debugw("whoop: authenticated", "user_id", userID)
	return model.Session{Token: token.AccessToken, UserID: userID}, nil
}

// FetchCycles downloads the raw cycle records for [start, end] in a single
// request. The endpoint is not paginated here.
func (c *Client) FetchCycles(ctx context.Context, session model.Session, start, end time.Time) ([]json.RawMessage, error) {
	q := url.Values{}
	q.Set("start", start.UTC().Format(TimestampLayout))
	q.Set("end", end.UTC().Format(TimestampLayout))
	endpoint := fmt.Sprintf("%s/users/%s/cycles?%s", c.baseURL, url.PathEscape(session.UserID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	req.Header.Set("Authorization", "bearer "+session.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil, &FetchError{StatusCode: resp.StatusCode}
	}

	var records []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, &FetchError{Err: fmt.Errorf("decode cycles: %w", err)}
	}

	c.logger.Debugw("whoop: fetched cycles", "count", len(records),
		"start", start.Format(TimestampLayout), "end", end.Format(TimestampLayout))
	return records, nil
}
