package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/zhaobenny/sleepdash/internal/model"
)

// rawCycle represents the fields of a WHOOP cycle object that we read.
// Everything else the vendor sends is ignored.
type rawCycle struct {
	Days  []string       `json:"days"`
	Sleep *rawCycleSleep `json:"sleep"`
}

// rawCycleSleep is the cycle-level sleep object. It may be present with an
// empty sleeps list when no sleep was recorded.
type rawCycleSleep struct {
	QualityDuration *float64 `json:"qualityDuration"`
	NeedBreakdown   *struct {
		Total *float64 `json:"total"`
	} `json:"needBreakdown"`
	Sleeps []rawSleep `json:"sleeps"`
}

// rawSleep is one recorded sleep session
type rawSleep struct {
	SlowWaveSleepDuration *float64 `json:"slowWaveSleepDuration"`
	QualityDuration       *float64 `json:"qualityDuration"`
	LightSleepDuration    *float64 `json:"lightSleepDuration"`
	RemSleepDuration      *float64 `json:"remSleepDuration"`
	WakeDuration          *float64 `json:"wakeDuration"`
	RespiratoryRate       *float64 `json:"respiratoryRate"`
	SleepEfficiency       *float64 `json:"sleepEfficiency"`
	SleepConsistency      *float64 `json:"sleepConsistency"`
}

// MalformedRecordError reports a cycle that cannot be flattened. It aborts
// the whole table; no rows are dropped silently.
type MalformedRecordError struct {
	Index  int
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed cycle record %d: %s", e.Index, e.Reason)
}

// Flatten converts raw cycle records into a sorted SleepTable.
func Flatten(records []json.RawMessage) (*model.SleepTable, error) {
	rows := make([]model.SleepRow, 0, len(records))
	seen := make(map[string]int, len(records))

	for i, rec := range records {
		row, err := flattenOne(i, rec)
		if err != nil {
			return nil, err
		}

		key := row.Date.Format(model.DayLayout)
		if prev, dup := seen[key]; dup {
			return nil, &MalformedRecordError{
				Index:  i,
				Reason: fmt.Sprintf("date %s already used by record %d", key, prev),
			}
		}
		seen[key] = i
		rows = append(rows, row)
	}

	return model.NewSleepTable(rows), nil
}

func flattenOne(index int, rec json.RawMessage) (model.SleepRow, error) {
	var raw rawCycle
	if err := json.Unmarshal(rec, &raw); err != nil {
		return model.SleepRow{}, &MalformedRecordError{Index: index, Reason: err.Error()}
	}

	if len(raw.Days) == 0 {
		return model.SleepRow{}, &MalformedRecordError{Index: index, Reason: "empty day list"}
	}
	date, err := model.ParseDay(raw.Days[0])
	if err != nil {
		return model.SleepRow{}, &MalformedRecordError{Index: index, Reason: err.Error()}
	}

	row := model.SleepRow{Date: date}
	if raw.Sleep == nil {
		return row, nil
	}
	row.Asleep = metric(raw.Sleep.QualityDuration)
	if nb := raw.Sleep.NeedBreakdown; nb != nil {
		row.Need = metric(nb.Total)
	}
	if len(raw.Sleep.Sleeps) == 0 {
		return row, nil
	}

	s := raw.Sleep.Sleeps[0]
	row.Stats = &model.SleepStats{
		SlowWave:        metric(s.SlowWaveSleepDuration),
		Quality:         metric(s.QualityDuration),
		Light:           metric(s.LightSleepDuration),
		REM:             metric(s.RemSleepDuration),
		Wake:            metric(s.WakeDuration),
		RespiratoryRate: metric(s.RespiratoryRate),
		Efficiency:      metric(s.SleepEfficiency),
		Consistency:     metric(s.SleepConsistency),
	}

	return row, nil
}

func metric(v *float64) model.Metric {
	if v == nil {
		return model.Metric{}
	}
	return model.Present(*v)
}

// Decode reads a JSON array of cycle objects, as returned by the cycles
// endpoint or saved by `sleepdash fetch`.
func Decode(r io.Reader) ([]json.RawMessage, error) {
	var records []json.RawMessage
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode cycles: %w", err)
	}
	return records, nil
}

// ParseFile reads a saved cycles file
func ParseFile(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []json.RawMessage{}, nil
	}
	return Decode(bytes.NewReader(data))
}
