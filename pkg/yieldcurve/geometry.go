// Package yieldcurve turns a set of maturity/yield observations into chart
// geometry: an ordered polyline, point markers, grid lines and axis labels
// in the pixel space of a given canvas. Drawing the geometry is left to a
// Renderer.
package yieldcurve

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/alim08/treasury_line/pkg/models"
	"github.com/alim08/treasury_line/pkg/pricefmt"
)

const (
	// DefaultPadding is the gap between the canvas edge and the plot area.
	DefaultPadding = 40
	// YieldPad widens the observed yield range on both sides.
	YieldPad = 0.1
	// HorizontalDivisions splits the plot height into equal bands.
	HorizontalDivisions = 5

	xLabelOffset = 10
	yLabelOffset = 10
)

var ErrInvalidCanvas = errors.New("invalid canvas")

// Canvas is the pixel surface the chart is laid out on.
type Canvas struct {
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	Padding float64 `json:"padding"`
}

// DefaultCanvas matches the dashboard's 400x200 chart.
func DefaultCanvas() Canvas {
	return Canvas{Width: 400, Height: 200, Padding: DefaultPadding}
}

// Validate reports whether the canvas leaves room for a plot area.
func (c Canvas) Validate() error {
	for _, v := range []float64{c.Width, c.Height, c.Padding} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite dimension", ErrInvalidCanvas)
		}
	}
	if c.Padding < 0 {
		return fmt.Errorf("%w: negative padding %v", ErrInvalidCanvas, c.Padding)
	}
	if c.Width <= 2*c.Padding || c.Height <= 2*c.Padding {
		return fmt.Errorf("%w: %vx%v leaves no plot area with padding %v",
			ErrInvalidCanvas, c.Width, c.Height, c.Padding)
	}
	return nil
}

// ChartWidth is the width of the plot area.
func (c Canvas) ChartWidth() float64 { return c.Width - 2*c.Padding }

// ChartHeight is the height of the plot area.
func (c Canvas) ChartHeight() float64 { return c.Height - 2*c.Padding }

// Point is one plotted observation.
type Point struct {
	X        float64              `json:"x"`
	Y        float64              `json:"y"`
	Maturity models.Maturity      `json:"maturity"`
	Yield    models.PercentPoints `json:"yield"`
	Change   models.PercentPoints `json:"change"`
	Category pricefmt.Category    `json:"category"`
	IsUp     bool                 `json:"isUp"`
}

// Line is a grid segment.
type Line struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Anchor is the horizontal alignment of a label relative to its position.
type Anchor string

const (
	AnchorMiddle Anchor = "middle"
	AnchorEnd    Anchor = "end"
)

// Label is axis text placed at (X, Y).
type Label struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Text   string  `json:"text"`
	Anchor Anchor  `json:"anchor"`
}

// Skipped records a quote that could not be plotted.
type Skipped struct {
	Maturity models.Maturity `json:"maturity"`
	Reason   string          `json:"reason"`
}

// Geometry is the fully derived chart for one quote set.
type Geometry struct {
	Canvas         Canvas    `json:"canvas"`
	Points         []Point   `json:"points"`
	MinYield       float64   `json:"minYield"`
	MaxYield       float64   `json:"maxYield"`
	HorizontalGrid []Line    `json:"horizontalGrid"`
	VerticalGrid   []Line    `json:"verticalGrid"`
	XLabels        []Label   `json:"xLabels"`
	YLabels        []Label   `json:"yLabels"`
	Skipped        []Skipped `json:"skipped,omitempty"`
}

// Empty reports whether there is nothing to plot.
func (g Geometry) Empty() bool { return len(g.Points) == 0 }

// Build lays out quotes on canvas. Quotes are ordered by maturity with a
// stable sort; unknown maturities sort first. Quotes with a non-finite
// yield are left out and listed in Skipped. An empty quote set yields
// empty geometry and no error.
func Build(quotes []models.CurveQuote, canvas Canvas) (Geometry, error) {
	if err := canvas.Validate(); err != nil {
		return Geometry{}, err
	}
	g := Geometry{Canvas: canvas}

	plotted := make([]models.CurveQuote, 0, len(quotes))
	for _, q := range quotes {
		y := float64(q.Yield)
		if math.IsNaN(y) || math.IsInf(y, 0) {
			g.Skipped = append(g.Skipped, Skipped{Maturity: q.Maturity, Reason: "non-finite yield"})
			continue
		}
		plotted = append(plotted, q)
	}
	if len(plotted) == 0 {
		return g, nil
	}

	sort.SliceStable(plotted, func(i, j int) bool {
		return plotted[i].Maturity.SortKey() < plotted[j].Maturity.SortKey()
	})

	lo, hi := float64(plotted[0].Yield), float64(plotted[0].Yield)
	for _, q := range plotted[1:] {
		lo = math.Min(lo, float64(q.Yield))
		hi = math.Max(hi, float64(q.Yield))
	}
	g.MinYield = lo - YieldPad
	g.MaxYield = hi + YieldPad

	pad := canvas.Padding
	chartW, chartH := canvas.ChartWidth(), canvas.ChartHeight()
	span := g.MaxYield - g.MinYield
	n := len(plotted)

	g.Points = make([]Point, 0, n)
	for i, q := range plotted {
		x := pad
		if n > 1 {
			x = pad + float64(i)/float64(n-1)*chartW
		}
		y := canvas.Height - pad - (float64(q.Yield)-g.MinYield)/span*chartH

		cat := classify(q.YieldChange)
		g.Points = append(g.Points, Point{
			X:        x,
			Y:        y,
			Maturity: q.Maturity,
			Yield:    q.Yield,
			Change:   q.YieldChange,
			Category: cat,
			IsUp:     cat == pricefmt.Up,
		})
		g.VerticalGrid = append(g.VerticalGrid, Line{X1: x, Y1: pad, X2: x, Y2: canvas.Height - pad})
		g.XLabels = append(g.XLabels, Label{
			X:      x,
			Y:      canvas.Height - xLabelOffset,
			Text:   string(q.Maturity),
			Anchor: AnchorMiddle,
		})
	}

	for i := 0; i <= HorizontalDivisions; i++ {
		frac := float64(i) / HorizontalDivisions
		y := pad + frac*chartH
		g.HorizontalGrid = append(g.HorizontalGrid, Line{X1: pad, Y1: y, X2: canvas.Width - pad, Y2: y})

		text, err := pricefmt.FormatFixed(g.MaxYield-frac*span, 2)
		if err != nil {
			text = pricefmt.Invalid
		} else {
			text += "%"
		}
		g.YLabels = append(g.YLabels, Label{
			X:      pad - yLabelOffset,
			Y:      y,
			Text:   text,
			Anchor: AnchorEnd,
		})
	}

	return g, nil
}

// classify treats a non-finite change as no change.
func classify(d models.PercentPoints) pricefmt.Category {
	f := float64(d)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return pricefmt.Neutral
	}
	return pricefmt.ClassifyYieldChange(d)
}

// Maturities returns the plotted labels in curve order.
func (g Geometry) Maturities() []models.Maturity {
	out := make([]models.Maturity, len(g.Points))
	for i, p := range g.Points {
		out[i] = p.Maturity
	}
	return out
}
