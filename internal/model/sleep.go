package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// Credential is the WHOOP login supplied once at startup. It is never persisted.
type Credential struct {
	Username string
	Password string
}

// Session is the bearer token and user ID returned by the token endpoint.
// There is no refresh; a session lives for one fetch.
type Session struct {
	Token  string
	UserID string
}

// MillisPerHour converts vendor durations to hours
const MillisPerHour = 3.6e6

// Metric is a sleep statistic that may be absent from the vendor payload.
// A missing metric is distinct from a zero one.
type Metric struct {
	Value float64
	Valid bool
}

// Present returns a valid metric holding v.
func Present(v float64) Metric {
	return Metric{Value: v, Valid: true}
}

// Div returns the metric divided by d, staying missing if m is missing.
func (m Metric) Div(d float64) Metric {
	if !m.Valid {
		return m
	}
	return Present(m.Value / d)
}

// MarshalJSON encodes a missing metric as null
func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(m.Value, 'f', -1, 64)), nil
}

// UnmarshalJSON decodes null as a missing metric
func (m *Metric) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Metric{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Present(v)
	return nil
}

// SleepStats holds the statistics of the first sleep session of a cycle.
// Durations are in milliseconds, efficiency and consistency are percentages.
type SleepStats struct {
	SlowWave        Metric `json:"sws_duration"`
	Quality         Metric `json:"quality_duration"`
	Light           Metric `json:"light_duration"`
	REM             Metric `json:"rem_duration"`
	Wake            Metric `json:"wake_duration"`
	RespiratoryRate Metric `json:"respiratory_rate"`
	Efficiency      Metric `json:"efficiency"`
	Consistency     Metric `json:"consistency"`
}

// SleepRow is one flattened cycle. Stats is nil when the cycle carried no
// sleep session, in which case every statistic reads as missing.
//
// Asleep and Need come from the cycle-level sleep object
// (sleep.qualityDuration, sleep.needBreakdown.total) and are set whenever the
// vendor sent them, with or without a recorded session.
type SleepRow struct {
	Date   time.Time
	Asleep Metric
	Need   Metric
	Stats  *SleepStats
}

// HasSleep reports whether the cycle carried a sleep session
func (r SleepRow) HasSleep() bool {
	return r.Stats != nil
}

// Stat returns the statistic selected by pick, or a missing metric when the
// row has no sleep session.
func (r SleepRow) Stat(pick func(*SleepStats) Metric) Metric {
	if r.Stats == nil {
		return Metric{}
	}
	return pick(r.Stats)
}

// MarshalJSON flattens the row into a single object with a YYYY-MM-DD date
func (r SleepRow) MarshalJSON() ([]byte, error) {
	stats := SleepStats{}
	if r.Stats != nil {
		stats = *r.Stats
	}
	return json.Marshal(struct {
		Date     string `json:"date"`
		HasSleep bool   `json:"has_sleep"`
		Asleep   Metric `json:"asleep_duration"`
		Need     Metric `json:"need_total"`
		SleepStats
	}{
		Date:       r.Date.Format(DayLayout),
		HasSleep:   r.HasSleep(),
		Asleep:     r.Asleep,
		Need:       r.Need,
		SleepStats: stats,
	})
}

// Stat selectors shared by the dashboard and the CLI
func SlowWave(s *SleepStats) Metric        { return s.SlowWave }
func Quality(s *SleepStats) Metric         { return s.Quality }
func Light(s *SleepStats) Metric           { return s.Light }
func REM(s *SleepStats) Metric             { return s.REM }
func Wake(s *SleepStats) Metric            { return s.Wake }
func RespiratoryRate(s *SleepStats) Metric { return s.RespiratoryRate }
func Efficiency(s *SleepStats) Metric      { return s.Efficiency }
func Consistency(s *SleepStats) Metric     { return s.Consistency }

// Cycle-level selectors
func Asleep(r SleepRow) Metric { return r.Asleep }
func Need(r SleepRow) Metric   { return r.Need }

// SleepSummary represents sleep rows aggregated by some key (week, month, ...)
type SleepSummary struct {
	Key         string // The grouping key (date, ISO week, month)
	Nights      int    // Rows that carried a sleep session
	Rows        int    // All rows in the group
	Quality     Metric // Mean hours of quality sleep
	Need        Metric // Mean hours of sleep need
	Efficiency  Metric // Mean efficiency percentage
	Consistency Metric // Mean consistency percentage
}
