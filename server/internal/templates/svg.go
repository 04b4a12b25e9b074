package templates

import (
	"fmt"
	"html/template"
	"math"
	"strings"

	"github.com/zhaobenny/sleepdash/internal/dashboard"
)

// Line chart geometry, in SVG user units
const (
	lineWidth   = 640
	lineHeight  = 260
	padLeft     = 44
	padRight    = 16
	padTop      = 36
	padBottom   = 28
	pieSize     = 260
	pieRadius   = 100
	legendWidth = 180
)

// PlotLine renders a line chart as inline SVG. Missing points break the line.
func PlotLine(c dashboard.LineChart) template.HTML {
	var b strings.Builder
	fmt.Fprintf(&b, `<svg class="chart line" viewBox="0 0 %d %d" role="img" aria-label="%s">`,
		lineWidth, lineHeight, template.HTMLEscapeString(c.Title))
	fmt.Fprintf(&b, `<text class="chart-title" x="%d" y="20">%s</text>`, padLeft, template.HTMLEscapeString(c.Title))

	if c.Empty() {
		fmt.Fprintf(&b, `<text class="chart-empty" x="%d" y="%d" text-anchor="middle">No data for this range</text></svg>`,
			lineWidth/2, lineHeight/2)
		return template.HTML(b.String())
	}

	lo, hi := yBounds(c)
	n := 0
	for _, s := range c.Series {
		if len(s.Points) > n {
			n = len(s.Points)
		}
	}

	plotW := float64(lineWidth - padLeft - padRight)
	plotH := float64(lineHeight - padTop - padBottom)
	x := func(i int) float64 {
		if n == 1 {
			return padLeft + plotW/2
		}
		return padLeft + plotW*float64(i)/float64(n-1)
	}
	y := func(v float64) float64 {
		return padTop + plotH*(1-(v-lo)/(hi-lo))
	}

	// axes and y labels
	fmt.Fprintf(&b, `<line class="axis" x1="%d" y1="%d" x2="%d" y2="%d"/>`, padLeft, lineHeight-padBottom, lineWidth-padRight, lineHeight-padBottom)
	fmt.Fprintf(&b, `<text class="tick" x="%d" y="%.1f" text-anchor="end">%.1f</text>`, padLeft-4, y(hi)+4, hi)
	fmt.Fprintf(&b, `<text class="tick" x="%d" y="%.1f" text-anchor="end">%.1f</text>`, padLeft-4, y(lo)+4, lo)

	if first, last := firstLastX(c); first != "" {
		fmt.Fprintf(&b, `<text class="tick" x="%d" y="%d">%s</text>`, padLeft, lineHeight-8, template.HTMLEscapeString(first))
		fmt.Fprintf(&b, `<text class="tick" x="%d" y="%d" text-anchor="end">%s</text>`, lineWidth-padRight, lineHeight-8, template.HTMLEscapeString(last))
	}

	for si, s := range c.Series {
		color := pick(c.Colorway, si)
		var d strings.Builder
		pen := false
		single := -1
		segLen := 0
		for i, p := range s.Points {
			if !p.Y.Valid {
				if segLen == 1 {
					drawDot(&b, x(single), y(s.Points[single].Y.Value), color)
				}
				pen, segLen = false, 0
				continue
			}
			cmd := "L"
			if !pen {
				cmd = "M"
				single = i
			}
			fmt.Fprintf(&d, "%s%.1f %.1f ", cmd, x(i), y(p.Y.Value))
			pen = true
			segLen++
		}
		if segLen == 1 {
			drawDot(&b, x(single), y(s.Points[single].Y.Value), color)
		}
		fmt.Fprintf(&b, `<path class="series" fill="none" stroke="%s" stroke-width="2" d="%s"><title>%s</title></path>`,
			color, strings.TrimSpace(d.String()), template.HTMLEscapeString(s.Name))
	}

	if len(c.Series) > 1 {
		for si, s := range c.Series {
			lx := lineWidth - padRight - 120*(len(c.Series)-si)
			fmt.Fprintf(&b, `<rect x="%d" y="10" width="10" height="10" fill="%s"/>`, lx, pick(c.Colorway, si))
			fmt.Fprintf(&b, `<text class="legend" x="%d" y="19">%s</text>`, lx+14, template.HTMLEscapeString(s.Name))
		}
	}

	b.WriteString(`</svg>`)
	return template.HTML(b.String())
}

func drawDot(b *strings.Builder, cx, cy float64, color string) {
	fmt.Fprintf(b, `<circle class="point" cx="%.1f" cy="%.1f" r="2.5" fill="%s"/>`, cx, cy, color)
}

func yBounds(c dashboard.LineChart) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range c.Series {
		for _, p := range s.Points {
			if !p.Y.Valid {
				continue
			}
			lo = math.Min(lo, p.Y.Value)
			hi = math.Max(hi, p.Y.Value)
		}
	}
	if lo == hi {
		lo, hi = lo-1, hi+1
	}
	return lo, hi
}

func firstLastX(c dashboard.LineChart) (string, string) {
	for _, s := range c.Series {
		if len(s.Points) > 0 {
			return s.Points[0].X, s.Points[len(s.Points)-1].X
		}
	}
	return "", ""
}

// PlotPie renders the stage chart as an SVG donut with a legend. Each slice
// is a dashed stroke on a circle, so a single full slice needs no special arc.
func PlotPie(p dashboard.PieChart) template.HTML {
	var b strings.Builder
	width := pieSize + legendWidth
	fmt.Fprintf(&b, `<svg class="chart pie" viewBox="0 0 %d %d" role="img" aria-label="%s">`,
		width, pieSize+30, template.HTMLEscapeString(p.Title))
	fmt.Fprintf(&b, `<text class="chart-title" x="10" y="20">%s</text>`, template.HTMLEscapeString(p.Title))

	total := p.Total()
	if p.Empty || total <= 0 {
		fmt.Fprintf(&b, `<text class="chart-empty" x="%d" y="%d" text-anchor="middle">No sleep stage data</text></svg>`,
			width/2, pieSize/2+30)
		return template.HTML(b.String())
	}

	cx, cy := float64(pieSize)/2, float64(pieSize)/2+30
	inner := pieRadius * p.Hole
	r := (pieRadius + inner) / 2
	stroke := pieRadius - inner
	circ := 2 * math.Pi * r

	offset := 0.0
	for i, s := range p.Slices {
		frac := s.Value / total
		if frac > 0 {
			fmt.Fprintf(&b, `<circle class="slice" cx="%.1f" cy="%.1f" r="%.2f" fill="none" stroke="%s" stroke-width="%.2f" stroke-dasharray="%.3f %.3f" stroke-dashoffset="%.3f" transform="rotate(-90 %.1f %.1f)"><title>%s</title></circle>`,
				cx, cy, r, pick(p.Colors, i), stroke, frac*circ, circ-frac*circ, -offset*circ, cx, cy,
				template.HTMLEscapeString(s.Label))
		}
		offset += frac

		ly := 50 + i*22
		fmt.Fprintf(&b, `<rect x="%d" y="%d" width="12" height="12" fill="%s"/>`, pieSize+10, ly, pick(p.Colors, i))
		fmt.Fprintf(&b, `<text class="legend" x="%d" y="%d">%s %.1f%% (%.2f h)</text>`,
			pieSize+28, ly+11, template.HTMLEscapeString(s.Label), frac*100, s.Value)
	}

	b.WriteString(`</svg>`)
	return template.HTML(b.String())
}

// pick cycles through a palette
func pick(palette []string, i int) string {
	if len(palette) == 0 {
		return "currentColor"
	}
	return palette[i%len(palette)]
}
