package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alim08/treasury_line/pkg/market"
	"github.com/alim08/treasury_line/pkg/models"
	"github.com/alim08/treasury_line/pkg/yieldcurve"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurveWriter_Write(t *testing.T) {
	out := filepath.Join(t.TempDir(), "curve.svg")
	w := &curveWriter{path: out, canvas: yieldcurve.DefaultCanvas(), renderer: yieldcurve.SVGRenderer{}}

	snap := models.MarketSnapshot{Sequence: 1, Bonds: market.Seed(time.Now())}
	g, err := w.write(snap)
	require.NoError(t, err)
	assert.Len(t, g.Points, 4)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "<svg"))
	assert.Equal(t, 4, strings.Count(string(data), "<circle"))

	// a second snapshot replaces the file and leaves no temp files behind
	snap.Bonds = snap.Bonds[:2]
	_, err = w.write(snap)
	require.NoError(t, err)
	data, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "<circle"))

	entries, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCurveWriter_BadCanvas(t *testing.T) {
	out := filepath.Join(t.TempDir(), "curve.svg")
	w := &curveWriter{path: out, canvas: yieldcurve.Canvas{Width: 10, Height: 10, Padding: 40}, renderer: yieldcurve.SVGRenderer{}}

	_, err := w.write(models.MarketSnapshot{Bonds: market.Seed(time.Now())})
	assert.ErrorIs(t, err, yieldcurve.ErrInvalidCanvas)
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSummary(t *testing.T) {
	bonds := market.Seed(time.Now())
	// out of order on purpose
	bonds[0], bonds[3] = bonds[3], bonds[0]
	bonds[1].YieldChange = -0.012

	got := summary(bonds)
	parts := strings.Split(got, " | ")
	require.Len(t, parts, 4)
	assert.Equal(t, "2Y 4.875% (+0.0bp) 99-26", parts[0])
	assert.Equal(t, "5Y 4.625% (-1.2bp) 98-24", parts[1])
	assert.True(t, strings.HasPrefix(parts[3], "30Y "))
}
