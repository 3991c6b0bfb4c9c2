package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alim08/treasury_line/pkg/metrics"
	"github.com/alim08/treasury_line/pkg/models"
	"github.com/alim08/treasury_line/pkg/pricefmt"
	"github.com/alim08/treasury_line/pkg/yieldcurve"
)

// curveWriter renders each snapshot's curve to path.
type curveWriter struct {
	path     string
	canvas   yieldcurve.Canvas
	renderer yieldcurve.Renderer
}

// write renders snap and replaces the output file in one rename so readers
// never see a half-written chart.
func (c *curveWriter) write(snap models.MarketSnapshot) (yieldcurve.Geometry, error) {
	g, err := yieldcurve.Build(snap.Quotes(), c.canvas)
	if err != nil {
		return g, err
	}

	start := time.Now()
	var buf bytes.Buffer
	err = c.renderer.Render(&buf, g)
	metrics.CurveRenderDuration.WithLabelValues("svg").Observe(time.Since(start).Seconds())
	if err != nil {
		return g, fmt.Errorf("render curve: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".curve-*.svg")
	if err != nil {
		return g, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return g, fmt.Errorf("write curve: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return g, fmt.Errorf("close curve: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return g, fmt.Errorf("replace %s: %w", c.path, err)
	}
	return g, nil
}

// summary formats the curve one tenor per field, e.g.
// "2Y 4.875% (+1.2bp) 99-26".
func summary(bonds []models.Bond) string {
	sorted := make([]models.Bond, len(bonds))
	copy(sorted, bonds)
	models.SortBondsByMaturity(sorted)

	parts := make([]string, 0, len(sorted))
	for _, b := range sorted {
		parts = append(parts, fmt.Sprintf("%s %s (%s) %s",
			b.Maturity, orInvalid(pricefmt.FormatPercent(b.Yield)),
			orInvalid(pricefmt.FormatYieldChangeBp(b.YieldChange)),
			orInvalid(pricefmt.FormatPrice(b.Price))))
	}
	return strings.Join(parts, " | ")
}

func orInvalid(s string, err error) string {
	if err != nil {
		return pricefmt.Invalid
	}
	return s
}
