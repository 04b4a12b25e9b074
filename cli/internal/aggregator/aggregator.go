package aggregator

import (
	"fmt"
	"sort"
	"time"

	"github.com/zhaobenny/sleepdash/internal/model"
)

// Options for aggregation
type Options struct {
	Since time.Time // inclusive, zero means open
	Until time.Time // inclusive, zero means open
}

// FilterRows keeps the rows dated within [Since, Until]
func FilterRows(rows []model.SleepRow, opts Options) []model.SleepRow {
	since, until := model.Day(opts.Since), model.Day(opts.Until)

	var filtered []model.SleepRow
	for _, r := range rows {
		if !opts.Since.IsZero() && r.Date.Before(since) {
			continue
		}
		if !opts.Until.IsZero() && r.Date.After(until) {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}

// ByDay summarises each row on its own
func ByDay(rows []model.SleepRow) []model.SleepSummary {
	return group(rows, func(d time.Time) string {
		return d.Format(model.DayLayout)
	})
}

// ByWeek summarises rows by ISO week (2021-W05)
func ByWeek(rows []model.SleepRow) []model.SleepSummary {
	return group(rows, func(d time.Time) string {
		year, week := d.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	})
}

// ByMonth summarises rows by calendar month
func ByMonth(rows []model.SleepRow) []model.SleepSummary {
	return group(rows, func(d time.Time) string {
		return d.Format("2006-01")
	})
}

// Total summarises all rows under the key "Total"
func Total(rows []model.SleepRow) model.SleepSummary {
	return summarise("Total", rows)
}

func group(rows []model.SleepRow, keyOf func(time.Time) string) []model.SleepSummary {
	grouped := make(map[string][]model.SleepRow)
	for _, r := range rows {
		key := keyOf(r.Date)
		grouped[key] = append(grouped[key], r)
	}

	results := make([]model.SleepSummary, 0, len(grouped))
	for key, members := range grouped {
		results = append(results, summarise(key, members))
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Key > results[j].Key // Newest first
	})

	return results
}

func summarise(key string, rows []model.SleepRow) model.SleepSummary {
	s := model.SleepSummary{
		Key:         key,
		Rows:        len(rows),
		Quality:     model.Mean(model.Values(rows, model.Asleep)).Div(model.MillisPerHour),
		Need:        model.Mean(model.Values(rows, model.Need)).Div(model.MillisPerHour),
		Efficiency:  model.Mean(model.Column(rows, model.Efficiency)),
		Consistency: model.Mean(model.Column(rows, model.Consistency)),
	}
	for _, r := range rows {
		if r.HasSleep() {
			s.Nights++
		}
	}
	return s
}
