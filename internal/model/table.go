package model

import (
	"fmt"
	"sort"
	"time"
)

// DayLayout is the calendar date format used by the vendor and the UI
const DayLayout = "2006-01-02"

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD date. A timestamp is accepted when the date
// is followed by a 'T' time part, which is dropped.
func ParseDay(s string) (time.Time, error) {
	day := s
	if len(s) > len(DayLayout) && s[len(DayLayout)] == 'T' {
		day = s[:len(DayLayout)]
	}
	t, err := time.Parse(DayLayout, day)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

// SleepTable is the immutable, date-ordered table of flattened cycles.
type SleepTable struct {
	rows []SleepRow
}

// NewSleepTable copies rows, normalises their dates and sorts them ascending.
// Uniqueness of dates is enforced by the flattener, not here.
func NewSleepTable(rows []SleepRow) *SleepTable {
	cp := make([]SleepRow, len(rows))
	for i, r := range rows {
		r.Date = Day(r.Date)
		cp[i] = r
	}
	sort.SliceStable(cp, func(i, j int) bool {
		return cp[i].Date.Before(cp[j].Date)
	})
	return &SleepTable{rows: cp}
}

// Len returns the number of rows
func (t *SleepTable) Len() int {
	return len(t.rows)
}

// Rows returns a copy of all rows in date order
func (t *SleepTable) Rows() []SleepRow {
	return append([]SleepRow(nil), t.rows...)
}

// Bounds returns the first and last dates. ok is false for an empty table.
func (t *SleepTable) Bounds() (first, last time.Time, ok bool) {
	if len(t.rows) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return t.rows[0].Date, t.rows[len(t.rows)-1].Date, true
}

// Filter returns the rows dated in (start, end]: a row on start is excluded,
// a row on end is included. When start and end fall on the same day the view
// is that single day. When start is after end the view is empty.
// The result is a copy; the table itself is never modified.
func (t *SleepTable) Filter(start, end time.Time) []SleepRow {
	start, end = Day(start), Day(end)
	if start.After(end) {
		return []SleepRow{}
	}

	// first index with date > start (or >= start for a single-day view)
	lo := sort.Search(len(t.rows), func(i int) bool {
		if start.Equal(end) {
			return !t.rows[i].Date.Before(start)
		}
		return t.rows[i].Date.After(start)
	})
	// first index with date > end
	hi := sort.Search(len(t.rows), func(i int) bool {
		return t.rows[i].Date.After(end)
	})
	if lo >= hi {
		return []SleepRow{}
	}
	return append([]SleepRow(nil), t.rows[lo:hi]...)
}

// Mean averages the valid metrics. It is missing when none are valid.
func Mean(metrics []Metric) Metric {
	var sum float64
	var n int
	for _, m := range metrics {
		if !m.Valid {
			continue
		}
		sum += m.Value
		n++
	}
	if n == 0 {
		return Metric{}
	}
	return Present(sum / float64(n))
}

// Column extracts one session statistic from every row
func Column(rows []SleepRow, pick func(*SleepStats) Metric) []Metric {
	return Values(rows, func(r SleepRow) Metric { return r.Stat(pick) })
}

// Values extracts one row-level value from every row
func Values(rows []SleepRow, pick func(SleepRow) Metric) []Metric {
	out := make([]Metric, len(rows))
	for i, r := range rows {
		out[i] = pick(r)
	}
	return out
}
