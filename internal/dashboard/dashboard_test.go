package dashboard

import (
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhaobenny/sleepdash/internal/model"
)

func day(s string) time.Time {
	t, err := time.Parse(model.DayLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// tenDays builds rows for 2021-01-01..2021-01-10; time asleep grows by an hour a day.
func tenDays() *model.SleepTable {
	rows := make([]model.SleepRow, 10)
	for i := range rows {
		rows[i] = model.SleepRow{
			Date:   day("2021-01-01").AddDate(0, 0, i),
			Asleep: model.Present(float64(i+1) * msPerHour),
			Need:   model.Present(8 * msPerHour),
			Stats: &model.SleepStats{
				Quality:     model.Present(float64(i+1)*msPerHour - msPerHour/2),
				Efficiency:  model.Present(90),
				Consistency: model.Present(70),
				SlowWave:    model.Present(msPerHour),
				REM:         model.Present(2 * msPerHour),
				Light:       model.Present(4 * msPerHour),
				Wake:        model.Present(0.5 * msPerHour),
			},
		}
	}
	return model.NewSleepTable(rows)
}

func loaded(t *testing.T, table *model.SleepTable, opts Options) *Dashboard {
	t.Helper()
	d := New(opts, nil)
	require.NoError(t, d.Load(table))
	return d
}

func TestLifecycle(t *testing.T) {
	d := New(Options{}, nil)
	assert.Equal(t, StateUninitialized, d.State())
	assert.Equal(t, "Sleep Analysis", d.Title())

	_, err := d.Range()
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = d.Charts(day("2021-01-01"), day("2021-01-02"))
	assert.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, d.Load(tenDays()))
	assert.Equal(t, StateReady, d.State())
	assert.Equal(t, "ready", d.State().String())

	assert.ErrorIs(t, d.Load(tenDays()), ErrAlreadyLoaded)
}

func TestRange_KeepsConfiguredDefaultStart(t *testing.T) {
	tests := []struct {
		name         string
		defaultStart string
		startMin     string
		rows         int
	}{
		{"inside bounds", "2021-01-04", "2020-12-31", 6},
		{"before first row", "2020-06-01", "2020-06-01", 10},
		{"day before first row", "2020-12-31", "2020-12-31", 10},
		{"after last row", "2021-04-11", "2020-12-31", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := loaded(t, tenDays(), Options{DefaultStart: day(tt.defaultStart)})

			r, err := d.Range()
			require.NoError(t, err)
			assert.False(t, r.Empty)
			assert.Equal(t, day("2021-01-01"), r.Min)
			assert.Equal(t, day("2021-01-10"), r.Max)
			assert.Equal(t, day(tt.defaultStart), r.DefaultStart)
			assert.Equal(t, day("2021-01-10"), r.DefaultEnd)
			assert.Equal(t, day(tt.startMin), r.StartMin())

			charts, err := d.Charts(r.DefaultStart, r.DefaultEnd)
			require.NoError(t, err)
			assert.Equal(t, tt.rows, charts.Rows)
		})
	}
}

func TestRange_DefaultViewBeforeTableKeepsFirstRow(t *testing.T) {
	d := loaded(t, tenDays(), Options{DefaultStart: day("2020-06-01")})

	r, err := d.Range()
	require.NoError(t, err)
	charts, err := d.Charts(r.DefaultStart, r.DefaultEnd)
	require.NoError(t, err)

	points := charts.Need.Series[0].Points
	require.Len(t, points, 10)
	assert.Equal(t, "2021-01-01", points[0].X)
}

func TestRange_JSON(t *testing.T) {
	d := loaded(t, tenDays(), Options{DefaultStart: day("2021-01-03")})
	r, err := d.Range()
	require.NoError(t, err)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"min":"2021-01-01","max":"2021-01-10","default_start":"2021-01-03","default_end":"2021-01-10","empty":false}`, string(data))

	data, err = json.Marshal(Range{Empty: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"min":null,"max":null,"default_start":null,"default_end":null,"empty":true}`, string(data))
}

func TestCharts_SingleDayView(t *testing.T) {
	d := loaded(t, tenDays(), Options{})

	charts, err := d.Charts(day("2021-01-05"), day("2021-01-05"))
	require.NoError(t, err)
	assert.Equal(t, 1, charts.Rows)
	assert.Equal(t, "2021-01-05", charts.Start)

	sleep := charts.Need.Series[0]
	require.Len(t, sleep.Points, 1)
	assert.Equal(t, "2021-01-05", sleep.Points[0].X)
	assert.Equal(t, model.Present(5), sleep.Points[0].Y)
}

func TestCharts_StartExcludedEndIncluded(t *testing.T) {
	d := loaded(t, tenDays(), Options{})

	charts, err := d.Charts(day("2021-01-03"), day("2021-01-06"))
	require.NoError(t, err)

	var dates []string
	for _, p := range charts.Efficiency.Series[0].Points {
		dates = append(dates, p.X)
	}
	assert.Equal(t, []string{"2021-01-04", "2021-01-05", "2021-01-06"}, dates)
}

func TestCharts_Payloads(t *testing.T) {
	d := loaded(t, tenDays(), Options{})
	charts, err := d.Charts(day("2020-12-31"), day("2021-01-10"))
	require.NoError(t, err)

	assert.Equal(t, "Hours of Sleep vs Sleep Need", charts.Need.Title)
	assert.Equal(t, []string{"#52B2BF", "#0A1172"}, charts.Need.Colorway)
	require.Len(t, charts.Need.Series, 2)
	assert.Equal(t, "Sleep Duration", charts.Need.Series[0].Name)
	assert.Equal(t, "Sleep Need", charts.Need.Series[1].Name)
	assert.Equal(t, model.Present(8), charts.Need.Series[1].Points[0].Y)

	assert.Equal(t, "Sleep Efficiency", charts.Efficiency.Title)
	assert.Equal(t, []string{"#7A4988"}, charts.Efficiency.Colorway)
	assert.Equal(t, model.Present(90), charts.Efficiency.Series[0].Points[9].Y)
	assert.Equal(t, "Sleep Consistency", charts.Consistency.Title)
	assert.Equal(t, model.Present(90), charts.MeanEfficiency)
	assert.Equal(t, model.Present(70), charts.MeanConsistency)

	pie := charts.Stages
	assert.Equal(t, PieHole, pie.Hole)
	assert.False(t, pie.Empty)
	assert.Equal(t, []Slice{
		{Label: "sws", Value: 1},
		{Label: "rem", Value: 2},
		{Label: "light", Value: 4},
		{Label: "wake", Value: 0.5},
	}, pie.Slices)
	assert.InDelta(t, 7.5, pie.Total(), 1e-9)
}

func TestCharts_MissingValuesAreGaps(t *testing.T) {
	table := model.NewSleepTable([]model.SleepRow{
		{Date: day("2021-01-01")},
		{Date: day("2021-01-02"), Stats: &model.SleepStats{Efficiency: model.Present(80)}},
	})
	d := loaded(t, table, Options{})

	charts, err := d.Charts(day("2020-12-31"), day("2021-01-02"))
	require.NoError(t, err)

	eff := charts.Efficiency.Series[0].Points
	assert.False(t, eff[0].Y.Valid)
	assert.Equal(t, model.Present(80), eff[1].Y)
	assert.False(t, charts.Efficiency.Empty())
	assert.True(t, charts.Consistency.Empty())

	data, err := json.Marshal(charts.Efficiency.Series[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Efficiency","points":[{"x":"2021-01-01","y":null},{"x":"2021-01-02","y":80}]}`, string(data))
}

func TestCharts_NeedUsesCycleTotals(t *testing.T) {
	table := model.NewSleepTable([]model.SleepRow{
		// need recorded, no session
		{Date: day("2021-01-01"), Need: model.Present(8 * msPerHour)},
		{
			Date:   day("2021-01-02"),
			Asleep: model.Present(7 * msPerHour),
			Need:   model.Present(9 * msPerHour),
			Stats:  &model.SleepStats{Quality: model.Present(6 * msPerHour)},
		},
	})
	d := loaded(t, table, Options{})

	charts, err := d.Charts(day("2020-12-31"), day("2021-01-02"))
	require.NoError(t, err)

	asleep, need := charts.Need.Series[0].Points, charts.Need.Series[1].Points
	assert.False(t, asleep[0].Y.Valid)
	assert.Equal(t, model.Present(8), need[0].Y)
	assert.Equal(t, model.Present(7), asleep[1].Y)
	assert.Equal(t, model.Present(9), need[1].Y)
}

func TestStageMeans_ExcludeMissing(t *testing.T) {
	rows := []model.SleepRow{
		{Date: day("2021-01-01"), Stats: &model.SleepStats{SlowWave: model.Present(2 * msPerHour)}},
		{Date: day("2021-01-02"), Stats: &model.SleepStats{SlowWave: model.Present(4 * msPerHour), REM: model.Present(msPerHour)}},
		{Date: day("2021-01-03")},
	}

	means := StageMeans(rows)
	require.Len(t, means, 4)
	assert.Equal(t, model.Present(3), means[0])
	assert.Equal(t, model.Present(1), means[1])
	assert.False(t, means[2].Valid)
	assert.False(t, means[3].Valid)
}

func TestCharts_AllMissingPieIsZero(t *testing.T) {
	table := model.NewSleepTable([]model.SleepRow{
		{Date: day("2021-01-01")},
		{Date: day("2021-01-02")},
	})
	d := loaded(t, table, Options{})

	charts, err := d.Charts(day("2020-12-31"), day("2021-01-02"))
	require.NoError(t, err)

	assert.True(t, charts.Stages.Empty)
	for _, s := range charts.Stages.Slices {
		assert.Zero(t, s.Value)
		assert.False(t, math.IsNaN(s.Value))
	}
}

func TestEmptyTable(t *testing.T) {
	d := loaded(t, model.NewSleepTable(nil), Options{DefaultStart: day("2021-04-11")})

	r, err := d.Range()
	require.NoError(t, err)
	assert.True(t, r.Empty)

	charts, err := d.Charts(day("2021-04-11"), day("2021-05-01"))
	require.NoError(t, err)
	assert.Zero(t, charts.Rows)
	assert.True(t, charts.Need.Empty())
	assert.True(t, charts.Stages.Empty)
	assert.Len(t, charts.Stages.Slices, 4)
}

func TestLoad_NilTable(t *testing.T) {
	d := loaded(t, nil, Options{})
	r, err := d.Range()
	require.NoError(t, err)
	assert.True(t, r.Empty)
}

func TestCharts_ConcurrentReaders(t *testing.T) {
	d := loaded(t, tenDays(), Options{})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			end := day("2021-01-01").AddDate(0, 0, i%10)
			charts, err := d.Charts(day("2020-12-31"), end)
			assert.NoError(t, err)
			assert.Equal(t, i%10+1, charts.Rows)
		}(i)
	}
	wg.Wait()
}
