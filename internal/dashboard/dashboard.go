package dashboard

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhaobenny/sleepdash/internal/model"
)

// State is the lifecycle of the dashboard
type State int

const (
	StateUninitialized State = iota
	StateReady
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

var (
	ErrNotReady      = errors.New("dashboard: table not loaded")
	ErrAlreadyLoaded = errors.New("dashboard: table already loaded")
)

// Options configure a Dashboard
type Options struct {
	Title string
	// DefaultStart is the historical start date preselected in the picker
	DefaultStart time.Time
}

// Range describes the date picker: its bounds and preselected dates
type Range struct {
	Min          time.Time
	Max          time.Time
	DefaultStart time.Time
	DefaultEnd   time.Time
	Empty        bool
}

// MarshalJSON encodes dates as YYYY-MM-DD, or null for an empty table
func (r Range) MarshalJSON() ([]byte, error) {
	day := func(t time.Time) *string {
		if r.Empty {
			return nil
		}
		s := t.Format(model.DayLayout)
		return &s
	}
	return json.Marshal(struct {
		Min          *string `json:"min"`
		Max          *string `json:"max"`
		DefaultStart *string `json:"default_start"`
		DefaultEnd   *string `json:"default_end"`
		Empty        bool    `json:"empty"`
	}{day(r.Min), day(r.Max), day(r.DefaultStart), day(r.DefaultEnd), r.Empty})
}

// Dashboard owns the loaded sleep table and answers chart requests.
// The table is immutable after Load, so readers share it without copying.
type Dashboard struct {
	opts   Options
	logger *zap.SugaredLogger

	mu    sync.RWMutex
	state State
	table *model.SleepTable
}

// New creates an uninitialized dashboard
func New(opts Options, logger *zap.SugaredLogger) *Dashboard {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.Title == "" {
		opts.Title = "Sleep Analysis"
	}
	opts.DefaultStart = model.Day(opts.DefaultStart)
	return &Dashboard{opts: opts, logger: logger}
}

// Title returns the page title
func (d *Dashboard) Title() string {
	return d.opts.Title
}

// State returns the current lifecycle state
func (d *Dashboard) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Load installs the table and makes the dashboard ready. It succeeds once.
func (d *Dashboard) Load(table *model.SleepTable) error {
	if table == nil {
		table = model.NewSleepTable(nil)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateReady {
		return ErrAlreadyLoaded
	}
	d.table = table
	d.state = StateReady
	d.logger.Infow("dashboard ready", "rows", table.Len())
	return nil
}

// Table returns the loaded table
func (d *Dashboard) Table() (*model.SleepTable, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.state != StateReady {
		return nil, ErrNotReady
	}
	return d.table, nil
}

// Range returns the picker bounds. The default start is the configured
// historical date, unmodified: it may lie outside the table, in which case the
// default view holds every row (start before the table) or none (start after
// it). The default end is the last date.
func (d *Dashboard) Range() (Range, error) {
	table, err := d.Table()
	if err != nil {
		return Range{}, err
	}

	first, last, ok := table.Bounds()
	if !ok {
		return Range{Empty: true}, nil
	}

	return Range{
		Min:          first,
		Max:          last,
		DefaultStart: d.opts.DefaultStart,
		DefaultEnd:   last,
	}, nil
}

// StartMin is the earliest useful start date. The start is exclusive, so the
// day before Min is needed to include the first row.
func (r Range) StartMin() time.Time {
	lo := r.Min.AddDate(0, 0, -1)
	if r.DefaultStart.Before(lo) {
		return r.DefaultStart
	}
	return lo
}

// Rows returns the filtered view for (start, end]
func (d *Dashboard) Rows(start, end time.Time) ([]model.SleepRow, error) {
	table, err := d.Table()
	if err != nil {
		return nil, err
	}
	return table.Filter(start, end), nil
}

// Charts recomputes all four charts for the rows dated in (start, end]
func (d *Dashboard) Charts(start, end time.Time) (*Charts, error) {
	rows, err := d.Rows(start, end)
	if err != nil {
		return nil, err
	}

	charts := BuildCharts(rows)
	charts.Start = model.Day(start).Format(model.DayLayout)
	charts.End = model.Day(end).Format(model.DayLayout)
	return &charts, nil
}
