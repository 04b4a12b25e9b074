package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhaobenny/sleepdash/internal/model"
)

var summaries = []model.SleepSummary{
	{Key: "2021-02", Nights: 2, Rows: 3, Quality: model.Present(7.5), Need: model.Present(8), Efficiency: model.Present(87.5)},
	{Key: "2021-01", Nights: 1, Rows: 1, Quality: model.Present(6), Need: model.Present(8), Efficiency: model.Present(80), Consistency: model.Present(70)},
}

var total = model.SleepSummary{Key: "Total", Nights: 3, Rows: 4, Quality: model.Present(7), Need: model.Present(8), Efficiency: model.Present(85)}

func TestFormat(t *testing.T) {
	assert.Equal(t, "7.50 h", FormatHours(model.Present(7.5)))
	assert.Equal(t, "-", FormatHours(model.Metric{}))
	assert.Equal(t, "87.5%", FormatPct(model.Present(87.5)))
	assert.Equal(t, "-", FormatPct(model.Metric{}))
}

func TestPrintTable_Full(t *testing.T) {
	t.Setenv("COLUMNS", "200")

	var buf bytes.Buffer
	PrintTable(&buf, summaries, total, "Month", TableOptions{})
	out := buf.String()

	assert.Contains(t, out, "Consistency")
	assert.Contains(t, out, "2/3")
	assert.Contains(t, out, "70.0%")
	assert.Contains(t, out, "Total")
	assert.NotContains(t, out, "Compact mode")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.True(t, strings.HasPrefix(lines[0], "Month"))
}

func TestPrintTable_Compact(t *testing.T) {
	var buf bytes.Buffer
	PrintTable(&buf, summaries[:1], total, "Month", TableOptions{ForceCompact: true})
	out := buf.String()

	assert.Contains(t, out, "Compact mode")
	assert.NotContains(t, out, "Consistency")
	// a single row has no total line
	assert.NotContains(t, out, "Total")
}

func TestPrintTable_NarrowTerminal(t *testing.T) {
	t.Setenv("COLUMNS", "60")

	var buf bytes.Buffer
	PrintTable(&buf, summaries, total, "Month", TableOptions{})
	assert.Contains(t, buf.String(), "Compact mode")
}

func TestPrintTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	PrintTable(&buf, nil, total, "Date", TableOptions{})
	assert.Equal(t, "No sleep data found.\n", buf.String())
}

func TestPrintStages(t *testing.T) {
	var buf bytes.Buffer
	PrintStages(&buf, []string{"sws", "rem", "light", "wake"},
		[]model.Metric{model.Present(1), model.Present(1), model.Present(2), {}})
	out := buf.String()

	assert.Contains(t, out, "light")
	assert.Contains(t, out, "50.0%")
	assert.Contains(t, out, "25.0%")

	buf.Reset()
	PrintStages(&buf, []string{"sws"}, []model.Metric{{}})
	assert.Equal(t, "No sleep stage data found.\n", buf.String())
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, summaries, total))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))

	results := got["results"].([]any)
	require.Len(t, results, 2)
	first := results[0].(map[string]any)
	assert.Equal(t, "2021-02", first["key"])
	assert.Equal(t, 7.5, first["sleep_hours"])
	assert.Nil(t, first["consistency_pct"])

	assert.Equal(t, "Total", got["total"].(map[string]any)["key"])
}
