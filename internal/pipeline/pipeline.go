package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zhaobenny/sleepdash/internal/model"
	"github.com/zhaobenny/sleepdash/internal/parser"
)

// Source is the vendor API as seen by the pipeline. *whoop.Client implements it.
type Source interface {
	Authenticate(ctx context.Context, cred model.Credential) (model.Session, error)
	FetchCycles(ctx context.Context, session model.Session, start, end time.Time) ([]json.RawMessage, error)
}

// Window is the date range requested from the vendor
type Window struct {
	Start time.Time
	End   time.Time
}

// Stage names the pipeline step that failed
type Stage string

const (
	StageAuthenticate Stage = "authenticate"
	StageFetch        Stage = "fetch"
	StageFlatten      Stage = "flatten"
)

// Error wraps the failure of one stage. The cause stays reachable with
// errors.As, so callers can still match *whoop.AuthError and friends.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Run authenticates, fetches every cycle in the window and flattens them into
// a table. The first failing stage aborts the run; there is no partial table.
func Run(ctx context.Context, src Source, cred model.Credential, window Window, logger *zap.SugaredLogger) (*model.SleepTable, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	logger.Infow("authenticating", "username", cred.Username)
	session, err := src.Authenticate(ctx, cred)
	if err != nil {
		return nil, &Error{Stage: StageAuthenticate, Err: err}
	}

	started := time.Now()
	records, err := src.FetchCycles(ctx, session, window.Start, window.End)
	if err != nil {
		return nil, &Error{Stage: StageFetch, Err: err}
	}
	logger.Infow("fetched cycles", "count", len(records), "elapsed", time.Since(started))

	table, err := parser.Flatten(records)
	if err != nil {
		return nil, &Error{Stage: StageFlatten, Err: err}
	}
	if first, last, ok := table.Bounds(); ok {
		logger.Infow("flattened cycles",
			"rows", table.Len(),
			"first", first.Format(model.DayLayout),
			"last", last.Format(model.DayLayout))
	} else {
		logger.Warnw("vendor returned no cycles")
	}

	return table, nil
}
