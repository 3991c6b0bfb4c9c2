package yieldcurve

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/alim08/treasury_line/pkg/models"
	"github.com/alim08/treasury_line/pkg/pricefmt"
)

const eps = 1e-9

func approx(a, b float64) bool { return math.Abs(a-b) < eps }

func seedQuotes() []models.CurveQuote {
	return []models.CurveQuote{
		{Maturity: "10Y", Yield: 4.45, YieldChange: 0.01},
		{Maturity: "2Y", Yield: 4.875, YieldChange: -0.02},
		{Maturity: "30Y", Yield: 4.625, YieldChange: 0},
		{Maturity: "5Y", Yield: 4.625, YieldChange: 0.05},
	}
}

func TestBuild_SortsByMaturity(t *testing.T) {
	g, err := Build(seedQuotes(), DefaultCanvas())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := g.Maturities()
	want := []models.Maturity{"2Y", "5Y", "10Y", "30Y"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Maturities = %v; want %v", got, want)
	}
}

func TestBuild_StableForDuplicatesAndUnknown(t *testing.T) {
	quotes := []models.CurveQuote{
		{Maturity: "10Y", Yield: 1},
		{Maturity: "2Y", Yield: 2},
		{Maturity: "7Y", Yield: 3},
		{Maturity: "2Y", Yield: 4},
		{Maturity: "1M", Yield: 5},
	}
	g, err := Build(quotes, DefaultCanvas())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []float64
	for _, p := range g.Points {
		got = append(got, float64(p.Yield))
	}
	want := []float64{3, 5, 2, 4, 1}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("yields in order = %v; want %v", got, want)
	}
	if g.XLabels[0].Text != "7Y" {
		t.Errorf("XLabels[0] = %q; want raw label %q", g.XLabels[0].Text, "7Y")
	}
}

func TestBuild_Scaling(t *testing.T) {
	c := DefaultCanvas()
	g, err := Build(seedQuotes(), c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !approx(g.MinYield, 4.35) || !approx(g.MaxYield, 4.975) {
		t.Errorf("bounds = (%v, %v); want (4.35, 4.975)", g.MinYield, g.MaxYield)
	}

	wantX := []float64{40, 146.66666666666666, 253.33333333333334, 360}
	for i, p := range g.Points {
		if !approx(p.X, wantX[i]) {
			t.Errorf("Points[%d].X = %v; want %v", i, p.X, wantX[i])
		}
		wantY := c.Height - c.Padding - (float64(p.Yield)-g.MinYield)/(g.MaxYield-g.MinYield)*c.ChartHeight()
		if !approx(p.Y, wantY) {
			t.Errorf("Points[%d].Y = %v; want %v", i, p.Y, wantY)
		}
		if p.Y < c.Padding || p.Y > c.Height-c.Padding {
			t.Errorf("Points[%d].Y = %v outside plot area", i, p.Y)
		}
	}

	// 2Y has the highest yield so it sits highest on screen
	for i, p := range g.Points[1:] {
		if p.Y < g.Points[0].Y {
			t.Errorf("Points[%d].Y = %v above the highest yield", i+1, p.Y)
		}
	}
}

func TestBuild_SinglePoint(t *testing.T) {
	c := DefaultCanvas()
	g, err := Build([]models.CurveQuote{{Maturity: "10Y", Yield: 4.0}}, c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(g.Points) != 1 {
		t.Fatalf("len(Points) = %d; want 1", len(g.Points))
	}
	if g.Points[0].X != c.Padding {
		t.Errorf("X = %v; want %v", g.Points[0].X, c.Padding)
	}
	if !approx(g.MinYield, 3.9) || !approx(g.MaxYield, 4.1) {
		t.Errorf("bounds = (%v, %v); want (3.9, 4.1)", g.MinYield, g.MaxYield)
	}
	// flat line sits in the middle of the plot
	if !approx(g.Points[0].Y, c.Height/2) {
		t.Errorf("Y = %v; want %v", g.Points[0].Y, c.Height/2)
	}
	if len(g.VerticalGrid) != 1 {
		t.Errorf("len(VerticalGrid) = %d; want 1", len(g.VerticalGrid))
	}
}

func TestBuild_Empty(t *testing.T) {
	g, err := Build(nil, DefaultCanvas())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !g.Empty() {
		t.Errorf("expected empty geometry, got %d points", len(g.Points))
	}
	if len(g.HorizontalGrid) != 0 || len(g.YLabels) != 0 {
		t.Errorf("expected no grid or labels for empty input")
	}
}

func TestBuild_GridAndLabels(t *testing.T) {
	c := DefaultCanvas()
	quotes := []models.CurveQuote{
		{Maturity: "10Y", Yield: 4.0},
		{Maturity: "5Y", Yield: 4.2},
		{Maturity: "2Y", Yield: 4.5},
	}
	g, err := Build(quotes, c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(g.HorizontalGrid) != HorizontalDivisions+1 {
		t.Fatalf("len(HorizontalGrid) = %d; want %d", len(g.HorizontalGrid), HorizontalDivisions+1)
	}
	if g.HorizontalGrid[0].Y1 != c.Padding || g.HorizontalGrid[HorizontalDivisions].Y1 != c.Height-c.Padding {
		t.Errorf("horizontal grid spans %v..%v; want %v..%v",
			g.HorizontalGrid[0].Y1, g.HorizontalGrid[HorizontalDivisions].Y1, c.Padding, c.Height-c.Padding)
	}
	if len(g.VerticalGrid) != len(g.Points) {
		t.Errorf("len(VerticalGrid) = %d; want %d", len(g.VerticalGrid), len(g.Points))
	}

	wantY := []string{"4.60%", "4.46%", "4.32%", "4.18%", "4.04%", "3.90%"}
	if len(g.YLabels) != len(wantY) {
		t.Fatalf("len(YLabels) = %d; want %d", len(g.YLabels), len(wantY))
	}
	for i, l := range g.YLabels {
		if l.Text != wantY[i] {
			t.Errorf("YLabels[%d] = %q; want %q", i, l.Text, wantY[i])
		}
		if l.X != c.Padding-10 || l.Anchor != AnchorEnd {
			t.Errorf("YLabels[%d] at x=%v anchor=%s", i, l.X, l.Anchor)
		}
	}
	for i, l := range g.XLabels {
		if l.Y != c.Height-10 || l.X != g.Points[i].X {
			t.Errorf("XLabels[%d] at (%v, %v)", i, l.X, l.Y)
		}
	}
}

func TestBuild_Categories(t *testing.T) {
	g, err := Build(seedQuotes(), DefaultCanvas())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[models.Maturity]pricefmt.Category{
		"2Y":  pricefmt.Up,
		"5Y":  pricefmt.Down,
		"10Y": pricefmt.Down,
		"30Y": pricefmt.Neutral,
	}
	for _, p := range g.Points {
		if p.Category != want[p.Maturity] {
			t.Errorf("%s category = %s; want %s", p.Maturity, p.Category, want[p.Maturity])
		}
		if p.IsUp != (p.Category == pricefmt.Up) {
			t.Errorf("%s IsUp = %v with category %s", p.Maturity, p.IsUp, p.Category)
		}
	}
}

func TestBuild_SkipsNonFinite(t *testing.T) {
	quotes := append(seedQuotes(),
		models.CurveQuote{Maturity: "5Y", Yield: models.PercentPoints(math.NaN())},
		models.CurveQuote{Maturity: "30Y", Yield: 4.0, YieldChange: models.PercentPoints(math.Inf(1))},
	)
	g, err := Build(quotes, DefaultCanvas())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(g.Points) != 5 {
		t.Errorf("len(Points) = %d; want 5", len(g.Points))
	}
	if len(g.Skipped) != 1 || g.Skipped[0].Maturity != "5Y" {
		t.Errorf("Skipped = %+v; want one 5Y entry", g.Skipped)
	}
	last := g.Points[len(g.Points)-1]
	if last.Category != pricefmt.Neutral {
		t.Errorf("non-finite change category = %s; want neutral", last.Category)
	}
}

func TestBuild_InvalidCanvas(t *testing.T) {
	cases := []struct {
		name   string
		canvas Canvas
	}{
		{"too narrow", Canvas{Width: 80, Height: 200, Padding: 40}},
		{"too short", Canvas{Width: 400, Height: 60, Padding: 40}},
		{"negative padding", Canvas{Width: 400, Height: 200, Padding: -1}},
		{"nan width", Canvas{Width: math.NaN(), Height: 200, Padding: 40}},
		{"zero", Canvas{}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Build(seedQuotes(), c.canvas)
			if !errors.Is(err, ErrInvalidCanvas) {
				t.Errorf("err = %v; want ErrInvalidCanvas", err)
			}
		})
	}

	// canvas errors are reported even with nothing to draw
	if _, err := Build(nil, Canvas{}); !errors.Is(err, ErrInvalidCanvas) {
		t.Errorf("empty input err = %v; want ErrInvalidCanvas", err)
	}
}

func TestBuild_Idempotent(t *testing.T) {
	a, err := Build(seedQuotes(), DefaultCanvas())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := Build(seedQuotes(), DefaultCanvas())
	if !reflect.DeepEqual(a, b) {
		t.Error("Build is not deterministic for identical input")
	}
}
