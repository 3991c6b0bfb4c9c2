package grid

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/alim08/treasury_line/pkg/models"
	"github.com/alim08/treasury_line/pkg/pricefmt"
	"github.com/shopspring/decimal"
)

func tenYear() models.Bond {
	return models.Bond{
		CUSIP:       "912828YN9",
		Maturity:    models.Maturity10Y,
		Yield:       4.45,
		Price:       97.25,
		Coupon:      4.45,
		PriceChange: 0.0625,
		YieldChange: 0.0125,
		BidPrice:    97.2375,
		AskPrice:    97.2625,
		Volume:      2500000,
		LastUpdated: time.Date(2025, 7, 10, 14, 5, 9, 0, time.UTC),
	}
}

func TestFormatBondRow(t *testing.T) {
	row := FormatBondRow(tenYear())

	want := BondRow{
		CUSIP:            "912828YN9",
		Maturity:         "10Y",
		Coupon:           "4.450%",
		Bid:              "97-08",
		Ask:              "97-08",
		Last:             "97-08",
		Change:           "+0-02",
		ChangeClass:      "positive",
		Yield:            "4.450%",
		YieldChange:      "+1.3bp",
		YieldChangeClass: "negative",
		Volume:           "2.5M",
		Time:             "14:05:09",
	}
	if !reflect.DeepEqual(row, want) {
		t.Errorf("FormatBondRow =\n%+v\nwant\n%+v", row, want)
	}
}

func TestFormatBondRow_InvalidFieldIsolated(t *testing.T) {
	b := tenYear()
	b.Yield = models.PercentPoints(math.NaN())
	b.AskPrice = -1

	row := FormatBondRow(b)
	if row.Yield != pricefmt.Invalid || row.Ask != pricefmt.Invalid {
		t.Errorf("Yield = %q, Ask = %q; want %q", row.Yield, row.Ask, pricefmt.Invalid)
	}
	if row.Last != "97-08" || row.Coupon != "4.450%" {
		t.Errorf("unaffected fields changed: Last = %q, Coupon = %q", row.Last, row.Coupon)
	}
	want := []string{"ask", "yield"}
	if !reflect.DeepEqual(row.Invalid, want) {
		t.Errorf("Invalid = %v; want %v", row.Invalid, want)
	}
}

func TestFormatBondRows_Highlight(t *testing.T) {
	h := NewHighlighter(time.Second)
	h.Mark("912828YN9")

	other := tenYear()
	other.CUSIP = "912828YK5"
	rows := FormatBondRows([]models.Bond{tenYear(), other}, h)

	if !rows[0].Highlight {
		t.Error("marked row not highlighted")
	}
	if rows[1].Highlight {
		t.Error("unmarked row highlighted")
	}
	if rows := FormatBondRows([]models.Bond{tenYear()}, nil); rows[0].Highlight {
		t.Error("nil highlighter should not highlight")
	}
}

func TestFormatTradeRow(t *testing.T) {
	tr := models.Trade{
		ID:             7,
		CUSIP:          "912828YK5",
		Maturity:       models.Maturity2Y,
		Side:           models.SideSell,
		Quantity:       5000000,
		Price:          decimal.RequireFromString("99.8125"),
		Yield:          decimal.RequireFromString("4.875"),
		Counterparty:   "GS",
		Trader:         "alice",
		Status:         models.TradeExecuted,
		Timestamp:      time.Date(2025, 7, 10, 9, 30, 0, 0, time.UTC),
		SettlementDate: time.Date(2025, 7, 11, 0, 0, 0, 0, time.UTC),
	}
	row := FormatTradeRow(tr)

	checks := map[string][2]string{
		"Time":        {row.Time, "09:30:00"},
		"Side":        {row.Side, "SELL"},
		"SideClass":   {row.SideClass, "side-sell"},
		"Quantity":    {row.Quantity, "5.0M"},
		"Price":       {row.Price, "99-26"},
		"Yield":       {row.Yield, "4.875%"},
		"StatusClass": {row.StatusClass, "status-executed"},
		"RowClass":    {row.RowClass, "trade-executed"},
		"Settle":      {row.Settle, "07/11/2025"},
	}
	for name, c := range checks {
		if c[0] != c[1] {
			t.Errorf("%s = %q; want %q", name, c[0], c[1])
		}
	}
	if len(row.Invalid) != 0 {
		t.Errorf("Invalid = %v; want none", row.Invalid)
	}
}

func TestHighlighter_Expiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	h := NewHighlighter(0)
	h.now = func() time.Time { return now }

	h.Mark("A", "B")
	if !h.Active("A") || !h.Active("B") {
		t.Fatal("marked keys not active")
	}

	now = now.Add(DefaultHighlightTTL - time.Millisecond)
	h.Mark("B")
	now = now.Add(2 * time.Millisecond)

	if h.Active("A") {
		t.Error("A should have expired")
	}
	if !h.Active("B") {
		t.Error("re-marked B should still be active")
	}
	if n := h.Sweep(); n != 1 {
		t.Errorf("Sweep = %d; want 1", n)
	}
	if h.Active("missing") {
		t.Error("unknown key reported active")
	}
}

func TestMerge(t *testing.T) {
	a := tenYear()
	b := tenYear()
	b.CUSIP = "912828YK5"
	existing := []models.Bond{a, b}

	moved := a
	moved.Price = 97.3
	added := tenYear()
	added.CUSIP = "912810TM0"

	merged, changed := Merge(existing, []models.Bond{b, moved, added})
	if len(merged) != 3 {
		t.Fatalf("len(merged) = %d; want 3", len(merged))
	}
	if merged[0].Price != 97.3 || merged[2].CUSIP != "912810TM0" {
		t.Errorf("merged = %+v", merged)
	}
	want := []string{"912828YN9", "912810TM0"}
	if !reflect.DeepEqual(changed, want) {
		t.Errorf("changed = %v; want %v", changed, want)
	}
	if existing[0].Price != 97.25 {
		t.Error("Merge modified its input")
	}
}
