package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/zhaobenny/sleepdash/internal/model"
)

const (
	compactThreshold = 80 // Terminal width below which compact mode kicks in
	defaultWidth     = 120
)

// TableOptions controls table display behavior
type TableOptions struct {
	ForceCompact bool
}

// columnsFromEnv reads the COLUMNS override
func columnsFromEnv() (int, bool) {
	width, err := strconv.Atoi(os.Getenv("COLUMNS"))
	if err != nil || width <= 0 {
		return 0, false
	}
	return width, true
}

// shouldUseCompact determines if compact mode should be used
func shouldUseCompact(opts TableOptions) bool {
	if opts.ForceCompact {
		return true
	}
	return getTerminalWidth() < compactThreshold
}

// FormatHours formats an hour metric, or "-" when missing
func FormatHours(m model.Metric) string {
	if !m.Valid {
		return "-"
	}
	return fmt.Sprintf("%.2f h", m.Value)
}

// FormatPct formats a percentage metric, or "-" when missing
func FormatPct(m model.Metric) string {
	if !m.Valid {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", m.Value)
}

// PrintTable prints summaries as a formatted table, followed by total when
// there is more than one row
func PrintTable(w io.Writer, results []model.SleepSummary, total model.SleepSummary, title string, opts TableOptions) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No sleep data found.")
		return
	}

	compact := shouldUseCompact(opts)

	keyWidth := len(title)
	for _, r := range results {
		if len(r.Key) > keyWidth {
			keyWidth = len(r.Key)
		}
	}
	if keyWidth < 10 {
		keyWidth = 10
	}

	fmt.Fprintln(w)

	if compact {
		// Compact: Key, Sleep, Need, Efficiency
		rule := strings.Repeat("─", keyWidth+2+9+2+9+2+10)
		line := func(s model.SleepSummary) {
			fmt.Fprintf(w, "%-*s  %9s  %9s  %10s\n",
				keyWidth, s.Key, FormatHours(s.Quality), FormatHours(s.Need), FormatPct(s.Efficiency))
		}

		fmt.Fprintf(w, "%-*s  %9s  %9s  %10s\n", keyWidth, title, "Sleep", "Need", "Efficiency")
		fmt.Fprintln(w, rule)
		for _, r := range results {
			line(r)
		}
		if len(results) > 1 {
			fmt.Fprintln(w, rule)
			line(total)
		}

		fmt.Fprintln(w)
		fmt.Fprintln(w, "(Compact mode - expand terminal for full view)")
		return
	}

	// Full: Key, Nights, Sleep, Need, Efficiency, Consistency
	rule := strings.Repeat("─", keyWidth+2+8+2+9+2+9+2+10+2+11)
	line := func(s model.SleepSummary) {
		fmt.Fprintf(w, "%-*s  %8s  %9s  %9s  %10s  %11s\n",
			keyWidth, s.Key,
			fmt.Sprintf("%d/%d", s.Nights, s.Rows),
			FormatHours(s.Quality), FormatHours(s.Need),
			FormatPct(s.Efficiency), FormatPct(s.Consistency))
	}

	fmt.Fprintf(w, "%-*s  %8s  %9s  %9s  %10s  %11s\n",
		keyWidth, title, "Nights", "Sleep", "Need", "Efficiency", "Consistency")
	fmt.Fprintln(w, rule)
	for _, r := range results {
		line(r)
	}
	if len(results) > 1 {
		fmt.Fprintln(w, rule)
		line(total)
	}
	fmt.Fprintln(w)
}

// PrintStages prints the mean hours per sleep stage and each stage's share
func PrintStages(w io.Writer, labels []string, means []model.Metric) {
	var total float64
	for _, m := range means {
		if m.Valid {
			total += m.Value
		}
	}
	if total == 0 {
		fmt.Fprintln(w, "No sleep stage data found.")
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-8s  %9s  %7s\n", "Stage", "Mean", "Share")
	fmt.Fprintln(w, strings.Repeat("─", 8+2+9+2+7))
	for i, m := range means {
		share := "-"
		if m.Valid {
			share = fmt.Sprintf("%.1f%%", m.Value/total*100)
		}
		fmt.Fprintf(w, "%-8s  %9s  %7s\n", labels[i], FormatHours(m), share)
	}
	fmt.Fprintln(w)
}

// JSONOutput represents the JSON output structure
type JSONOutput struct {
	Results []JSONResult `json:"results"`
	Total   JSONResult   `json:"total"`
}

// JSONResult represents a single result in JSON format. Missing means are null.
type JSONResult struct {
	Key            string       `json:"key"`
	Nights         int          `json:"nights"`
	Cycles         int          `json:"cycles"`
	SleepHours     model.Metric `json:"sleep_hours"`
	NeedHours      model.Metric `json:"need_hours"`
	EfficiencyPct  model.Metric `json:"efficiency_pct"`
	ConsistencyPct model.Metric `json:"consistency_pct"`
}

func toJSON(s model.SleepSummary) JSONResult {
	return JSONResult{
		Key:            s.Key,
		Nights:         s.Nights,
		Cycles:         s.Rows,
		SleepHours:     s.Quality,
		NeedHours:      s.Need,
		EfficiencyPct:  s.Efficiency,
		ConsistencyPct: s.Consistency,
	}
}

// PrintJSON outputs results as JSON
func PrintJSON(w io.Writer, results []model.SleepSummary, total model.SleepSummary) error {
	out := JSONOutput{
		Results: make([]JSONResult, len(results)),
		Total:   toJSON(total),
	}
	for i, r := range results {
		out.Results[i] = toJSON(r)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}
