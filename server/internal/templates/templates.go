package templates

import (
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/zhaobenny/sleepdash/internal/model"
)

//go:embed *.html partials/*.html
var FS embed.FS

// Parse returns the parsed templates with custom functions
func Parse() (*template.Template, error) {
	funcMap := template.FuncMap{
		"formatHours": formatHours,
		"formatPct":   formatPct,
		"formatDay":   formatDay,
		"plotLine":    PlotLine,
		"plotPie":     PlotPie,
	}

	return template.New("").Funcs(funcMap).ParseFS(FS, "*.html", "partials/*.html")
}

func formatHours(h float64) string {
	return fmt.Sprintf("%.1f h", h)
}

func formatPct(m model.Metric) string {
	if !m.Valid {
		return "n/a"
	}
	return fmt.Sprintf("%.0f%%", m.Value)
}

func formatDay(d time.Time) string {
	return d.Format(model.DayLayout)
}
