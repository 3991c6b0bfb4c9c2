// Package grid formats bonds and trades into display rows for the market
// grid and the trade blotter.
package grid

import (
	"fmt"
	"strings"

	"github.com/alim08/treasury_line/pkg/models"
	"github.com/alim08/treasury_line/pkg/pricefmt"
)

const (
	timeLayout   = "15:04:05"
	settleLayout = "01/02/2006"
)

// BondRow is one formatted line of the market grid.
type BondRow struct {
	CUSIP            string   `json:"cusip"`
	Maturity         string   `json:"maturity"`
	Coupon           string   `json:"coupon"`
	Bid              string   `json:"bid"`
	Ask              string   `json:"ask"`
	Last             string   `json:"last"`
	Change           string   `json:"change"`
	ChangeClass      string   `json:"changeClass"`
	Yield            string   `json:"yield"`
	YieldChange      string   `json:"yieldChange"`
	YieldChangeClass string   `json:"yieldChangeClass"`
	Volume           string   `json:"volume"`
	Time             string   `json:"time"`
	Highlight        bool     `json:"highlight"`
	Invalid          []string `json:"invalid,omitempty"`
}

// rowBuilder collects per-field failures so one bad field does not blank
// the whole row.
type rowBuilder struct {
	invalid []string
}

func (rb *rowBuilder) field(name string, s string, err error) string {
	if err != nil {
		rb.invalid = append(rb.invalid, name)
		return pricefmt.Invalid
	}
	return s
}

// FormatBondRow formats b for the market grid.
func FormatBondRow(b models.Bond) BondRow {
	var rb rowBuilder
	row := BondRow{
		CUSIP:            b.CUSIP,
		Maturity:         string(b.Maturity),
		ChangeClass:      pricefmt.ClassifyPriceChange(b.PriceChange).CSSClass(),
		YieldChangeClass: pricefmt.ClassifyYieldChange(b.YieldChange).CSSClass(),
		Volume:           pricefmt.FormatVolume(b.Volume),
	}

	s, err := pricefmt.FormatPercent(b.Coupon)
	row.Coupon = rb.field("coupon", s, err)
	s, err = pricefmt.FormatPrice(b.BidPrice)
	row.Bid = rb.field("bid", s, err)
	s, err = pricefmt.FormatPrice(b.AskPrice)
	row.Ask = rb.field("ask", s, err)
	s, err = pricefmt.FormatPrice(b.Price)
	row.Last = rb.field("last", s, err)
	s, err = pricefmt.FormatSignedPrice(b.PriceChange)
	row.Change = rb.field("change", s, err)
	s, err = pricefmt.FormatPercent(b.Yield)
	row.Yield = rb.field("yield", s, err)
	s, err = pricefmt.FormatYieldChangeBp(b.YieldChange)
	row.YieldChange = rb.field("yieldChange", s, err)

	if !b.LastUpdated.IsZero() {
		row.Time = b.LastUpdated.Format(timeLayout)
	}
	row.Invalid = rb.invalid
	return row
}

// FormatBondRows formats bonds in order, marking rows the highlighter
// reports as recently updated. h may be nil.
func FormatBondRows(bonds []models.Bond, h *Highlighter) []BondRow {
	rows := make([]BondRow, 0, len(bonds))
	for _, b := range bonds {
		row := FormatBondRow(b)
		if h != nil {
			row.Highlight = h.Active(b.CUSIP)
		}
		rows = append(rows, row)
	}
	return rows
}

// TradeRow is one formatted line of the trade blotter.
type TradeRow struct {
	ID           int64    `json:"id"`
	Time         string   `json:"time"`
	CUSIP        string   `json:"cusip"`
	Maturity     string   `json:"maturity"`
	Side         string   `json:"side"`
	SideClass    string   `json:"sideClass"`
	Quantity     string   `json:"quantity"`
	Price        string   `json:"price"`
	Yield        string   `json:"yield"`
	Counterparty string   `json:"counterparty"`
	Trader       string   `json:"trader"`
	Status       string   `json:"status"`
	StatusClass  string   `json:"statusClass"`
	RowClass     string   `json:"rowClass"`
	Settle       string   `json:"settle"`
	Invalid      []string `json:"invalid,omitempty"`
}

// FormatTradeRow formats t for the blotter.
func FormatTradeRow(t models.Trade) TradeRow {
	var rb rowBuilder
	status := strings.ToLower(string(t.Status))
	row := TradeRow{
		ID:           t.ID,
		CUSIP:        t.CUSIP,
		Maturity:     string(t.Maturity),
		Side:         string(t.Side),
		SideClass:    "side-" + strings.ToLower(string(t.Side)),
		Quantity:     pricefmt.FormatVolume(t.Quantity),
		Counterparty: t.Counterparty,
		Trader:       t.Trader,
		Status:       string(t.Status),
		StatusClass:  "status-" + status,
		RowClass:     "trade-" + status,
	}

	price, _ := t.Price.Float64()
	s, err := pricefmt.FormatPrice(models.Points(price))
	row.Price = rb.field("price", s, err)
	yield, _ := t.Yield.Float64()
	s, err = pricefmt.FormatPercent(models.PercentPoints(yield))
	row.Yield = rb.field("yield", s, err)

	if !t.Timestamp.IsZero() {
		row.Time = t.Timestamp.Format(timeLayout)
	}
	if !t.SettlementDate.IsZero() {
		row.Settle = t.SettlementDate.Format(settleLayout)
	}
	row.Invalid = rb.invalid
	return row
}

// FormatTradeRows formats trades in order.
func FormatTradeRows(trades []models.Trade) []TradeRow {
	rows := make([]TradeRow, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, FormatTradeRow(t))
	}
	return rows
}

// String renders a bond row as a fixed-width text line.
func (r BondRow) String() string {
	return fmt.Sprintf("%-4s %-9s %8s %8s %8s %8s %7s %8s %9s %6s",
		r.Maturity, r.CUSIP, r.Coupon, r.Bid, r.Ask, r.Last, r.Change, r.Yield, r.YieldChange, r.Volume)
}
