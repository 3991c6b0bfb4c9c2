package main

import (
	"sync"
	"time"

	"github.com/alim08/treasury_line/pkg/grid"
	"github.com/alim08/treasury_line/pkg/logger"
	"github.com/alim08/treasury_line/pkg/models"
	"go.uber.org/zap"
)

// marketView is the grid's copy of the market, fed from the market-data
// topic so changed rows can be highlighted.
type marketView struct {
	mu    sync.Mutex
	bonds []models.Bond
	hl    *grid.Highlighter
}

func newMarketView(ttl time.Duration) *marketView {
	return &marketView{hl: grid.NewHighlighter(ttl)}
}

// observe is a feed.Observer.
func (v *marketView) observe(topic string, payload []byte) {
	if topic != models.TopicMarketData {
		return
	}
	snap, err := models.MarketSnapshotFromJSON(payload)
	if err != nil {
		logger.Log.Warn("grid view: bad snapshot", zap.Error(err))
		return
	}
	v.apply(snap.Bonds)
}

// apply merges update into the view. The first load is not highlighted.
func (v *marketView) apply(update []models.Bond) {
	v.mu.Lock()
	defer v.mu.Unlock()
	first := len(v.bonds) == 0
	merged, changed := grid.Merge(v.bonds, update)
	v.bonds = merged
	if !first {
		v.hl.Mark(changed...)
	}
}

func (v *marketView) empty() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.bonds) == 0
}

func (v *marketView) rows() []grid.BondRow {
	v.mu.Lock()
	bonds := make([]models.Bond, len(v.bonds))
	copy(bonds, v.bonds)
	v.mu.Unlock()

	v.hl.Sweep()
	return grid.FormatBondRows(bonds, v.hl)
}
