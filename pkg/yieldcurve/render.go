package yieldcurve

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"github.com/alim08/treasury_line/pkg/pricefmt"
)

const (
	colorBackground = "#1a1a1a"
	colorGrid       = "#333333"
	colorCurve      = "#00ff00"
	colorLabel      = "#ffffff"
	colorUp         = "#00ff00"
	colorDown       = "#ff0000"
	colorNeutral    = "#888888"

	markerRadius = 4
	labelFont    = "Roboto Mono, monospace"
	labelSize    = 10
	// canvas text sits on its baseline; nudge y labels onto the grid line
	yLabelBaseline = 3
)

// Renderer draws geometry onto some output surface.
type Renderer interface {
	Render(w io.Writer, g Geometry) error
	ContentType() string
}

func markerColor(c pricefmt.Category) string {
	switch c {
	case pricefmt.Up:
		return colorUp
	case pricefmt.Down:
		return colorDown
	default:
		return colorNeutral
	}
}

// SVGRenderer draws the geometry as a standalone SVG document, pixel for
// pixel as laid out by Build.
type SVGRenderer struct{}

func (SVGRenderer) ContentType() string { return "image/svg+xml" }

func (SVGRenderer) Render(w io.Writer, g Geometry) error {
	c := g.Canvas
	var buf bytes.Buffer

	fmt.Fprintf(&buf, `<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="0 0 %s %s">`+"\n",
		num(c.Width), num(c.Height), num(c.Width), num(c.Height))
	fmt.Fprintf(&buf, `<rect x="0" y="0" width="%s" height="%s" fill="%s"/>`+"\n",
		num(c.Width), num(c.Height), colorBackground)

	if !g.Empty() {
		buf.WriteString(`<g stroke="` + colorGrid + `" stroke-width="1">` + "\n")
		for _, l := range g.HorizontalGrid {
			writeLine(&buf, l)
		}
		for _, l := range g.VerticalGrid {
			writeLine(&buf, l)
		}
		buf.WriteString("</g>\n")

		pts := make([]string, len(g.Points))
		for i, p := range g.Points {
			pts[i] = num(p.X) + "," + num(p.Y)
		}
		fmt.Fprintf(&buf, `<polyline fill="none" stroke="%s" stroke-width="2" points="%s"/>`+"\n",
			colorCurve, strings.Join(pts, " "))

		for _, p := range g.Points {
			fmt.Fprintf(&buf, `<circle cx="%s" cy="%s" r="%d" fill="%s" class="%s"><title>%s</title></circle>`+"\n",
				num(p.X), num(p.Y), markerRadius, markerColor(p.Category), p.Category.CSSClass(), escape(string(p.Maturity)))
		}

		fmt.Fprintf(&buf, `<g fill="%s" font-family="%s" font-size="%d">`+"\n", colorLabel, labelFont, labelSize)
		for _, l := range g.XLabels {
			writeLabel(&buf, l, 0)
		}
		for _, l := range g.YLabels {
			writeLabel(&buf, l, yLabelBaseline)
		}
		buf.WriteString("</g>\n")
	}

	buf.WriteString("</svg>\n")
	_, err := w.Write(buf.Bytes())
	return err
}

func writeLine(buf *bytes.Buffer, l Line) {
	fmt.Fprintf(buf, `<line x1="%s" y1="%s" x2="%s" y2="%s"/>`+"\n", num(l.X1), num(l.Y1), num(l.X2), num(l.Y2))
}

func writeLabel(buf *bytes.Buffer, l Label, dy float64) {
	fmt.Fprintf(buf, `<text x="%s" y="%s" text-anchor="%s">%s</text>`+"\n",
		num(l.X), num(l.Y+dy), l.Anchor, escape(l.Text))
}

// num prints coordinates with at most two decimals and no trailing zeros.
func num(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func escape(s string) string { return escaper.Replace(s) }

// EChartsRenderer renders an interactive HTML page using go-echarts. The
// sorted points and padded yield bounds come from the geometry; echarts
// does its own pixel layout.
type EChartsRenderer struct {
	Title string
}

func (EChartsRenderer) ContentType() string { return "text/html; charset=utf-8" }

func (r EChartsRenderer) Render(w io.Writer, g Geometry) error {
	title := r.Title
	if title == "" {
		title = "US Treasury Yield Curve"
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:       title,
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", int(g.Canvas.Width)),
			Height:          fmt.Sprintf("%dpx", int(g.Canvas.Height)),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      title,
			TitleStyle: &opts.TextStyle{Color: colorLabel, FontSize: 12},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorLabel},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorGrid}},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Min:         g.MinYield,
			Max:         g.MaxYield,
			SplitNumber: HorizontalDivisions,
			AxisLabel:   &opts.AxisLabel{Color: colorLabel, Formatter: "{value}%"},
			SplitLine:   &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorGrid}},
		}),
	)

	labels := make([]string, len(g.Points))
	curve := make([]opts.LineData, len(g.Points))
	byCategory := map[pricefmt.Category][]opts.ScatterData{}
	for i, p := range g.Points {
		labels[i] = string(p.Maturity)
		curve[i] = opts.LineData{Name: labels[i], Value: float64(p.Yield)}
		for _, c := range []pricefmt.Category{pricefmt.Up, pricefmt.Down, pricefmt.Neutral} {
			v := opts.ScatterData{Value: nil}
			if p.Category == c {
				v = opts.ScatterData{Value: float64(p.Yield), SymbolSize: 2 * markerRadius}
			}
			byCategory[c] = append(byCategory[c], v)
		}
	}

	line.SetXAxis(labels).AddSeries("Yield", curve,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorCurve, Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)

	markers := charts.NewScatter()
	markers.SetXAxis(labels)
	for _, c := range []pricefmt.Category{pricefmt.Up, pricefmt.Down, pricefmt.Neutral} {
		markers.AddSeries(c.String(), byCategory[c],
			charts.WithItemStyleOpts(opts.ItemStyle{Color: markerColor(c)}))
	}
	line.Overlap(markers)

	return line.Render(w)
}
