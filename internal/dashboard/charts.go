package dashboard

import (
	"github.com/zhaobenny/sleepdash/internal/model"
)

const msPerHour = model.MillisPerHour

// PieHole is the inner radius fraction of the stage chart
const PieHole = 0.3

// Chart colours
var (
	NeedColorway  = []string{"#52B2BF", "#0A1172"}
	TrendColorway = []string{"#7A4988"}
	// PurpSequence is the sequential purple scale used for stage slices
	PurpSequence = []string{"#f3e0f7", "#e4c7f1", "#d1afe8", "#b998dd", "#9f82ce", "#826dba", "#63589f"}
)

// Stage slice labels, in display order
var StageLabels = []string{"sws", "rem", "light", "wake"}

// Point is one x/y sample. A missing Y is a gap in the line.
type Point struct {
	X string       `json:"x"`
	Y model.Metric `json:"y"`
}

// Series is one named line
type Series struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// LineChart is a time series payload
type LineChart struct {
	Title    string   `json:"title"`
	Unit     string   `json:"unit"`
	Colorway []string `json:"colorway"`
	Series   []Series `json:"series"`
}

// Empty reports whether no series has a single valid point
func (c LineChart) Empty() bool {
	for _, s := range c.Series {
		for _, p := range s.Points {
			if p.Y.Valid {
				return false
			}
		}
	}
	return true
}

// Slice is one pie category
type Slice struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// PieChart is the sleep stage proportion payload
type PieChart struct {
	Title  string   `json:"title"`
	Hole   float64  `json:"hole"`
	Colors []string `json:"colors"`
	Slices []Slice  `json:"slices"`
	Empty  bool     `json:"empty"`
}

// Total returns the sum of all slice values
func (p PieChart) Total() float64 {
	var total float64
	for _, s := range p.Slices {
		total += s.Value
	}
	return total
}

// Charts holds the four payloads for one date range
type Charts struct {
	Start       string    `json:"start"`
	End         string    `json:"end"`
	Rows        int       `json:"rows"`
	Need        LineChart `json:"need"`
	Efficiency  LineChart `json:"efficiency"`
	Consistency LineChart `json:"consistency"`
	Stages      PieChart  `json:"stages"`

	// Means over the view, missing when no row has a value
	MeanEfficiency  model.Metric `json:"mean_efficiency"`
	MeanConsistency model.Metric `json:"mean_consistency"`
}

// BuildCharts computes every chart from an already filtered view
func BuildCharts(rows []model.SleepRow) Charts {
	return Charts{
		Rows: len(rows),
		Need: LineChart{
			Title:    "Hours of Sleep vs Sleep Need",
			Unit:     "hours",
			Colorway: NeedColorway,
			Series: []Series{
				series("Sleep Duration", rows, model.Asleep, toHours),
				series("Sleep Need", rows, model.Need, toHours),
			},
		},
		Efficiency: LineChart{
			Title:    "Sleep Efficiency",
			Unit:     "percent",
			Colorway: TrendColorway,
			Series:   []Series{series("Efficiency", rows, stat(model.Efficiency), asIs)},
		},
		Consistency: LineChart{
			Title:    "Sleep Consistency",
			Unit:     "percent",
			Colorway: TrendColorway,
			Series:   []Series{series("Consistency", rows, stat(model.Consistency), asIs)},
		},
		Stages:          stagePie(rows),
		MeanEfficiency:  model.Mean(model.Column(rows, model.Efficiency)),
		MeanConsistency: model.Mean(model.Column(rows, model.Consistency)),
	}
}

func toHours(m model.Metric) model.Metric { return m.Div(msPerHour) }

func asIs(m model.Metric) model.Metric { return m }

// stat lifts a session statistic to a row value
func stat(pick func(*model.SleepStats) model.Metric) func(model.SleepRow) model.Metric {
	return func(r model.SleepRow) model.Metric { return r.Stat(pick) }
}

func series(name string, rows []model.SleepRow, pick func(model.SleepRow) model.Metric, conv func(model.Metric) model.Metric) Series {
	points := make([]Point, len(rows))
	for i, r := range rows {
		points[i] = Point{
			X: r.Date.Format(model.DayLayout),
			Y: conv(pick(r)),
		}
	}
	return Series{Name: name, Points: points}
}

// StageMeans returns the mean hours spent in each stage, in StageLabels
// order. Missing values are excluded from each mean; a stage with no valid
// value at all reads as missing.
func StageMeans(rows []model.SleepRow) []model.Metric {
	picks := []func(*model.SleepStats) model.Metric{
		model.SlowWave, model.REM, model.Light, model.Wake,
	}
	means := make([]model.Metric, len(picks))
	for i, pick := range picks {
		means[i] = toHours(model.Mean(model.Column(rows, pick)))
	}
	return means
}

func stagePie(rows []model.SleepRow) PieChart {
	pie := PieChart{
		Title:  "Proportion of Sleep Spent in Major Stages",
		Hole:   PieHole,
		Colors: PurpSequence,
		Slices: make([]Slice, len(StageLabels)),
		Empty:  true,
	}
	for i, m := range StageMeans(rows) {
		// undefined means render as zero slices
		v := 0.0
		if m.Valid {
			v = m.Value
		}
		pie.Slices[i] = Slice{Label: StageLabels[i], Value: v}
		if v != 0 {
			pie.Empty = false
		}
	}
	return pie
}
