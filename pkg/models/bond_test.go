package models

import (
	"math"
	"strconv"
	"testing"
	"time"
)

func sampleBond() Bond {
	return Bond{
		CUSIP:       "912828YN9",
		Maturity:    Maturity10Y,
		Yield:       4.45,
		Price:       97.25,
		Coupon:      4.45,
		PriceChange: -0.0625,
		YieldChange: 0.0125,
		BidPrice:    97.2375,
		AskPrice:    97.2625,
		Volume:      1500000,
		LastUpdated: time.Date(2025, 7, 10, 12, 34, 56, 0, time.UTC),
	}
}

func TestMaturitySortKey(t *testing.T) {
	cases := []struct {
		in   Maturity
		want int
	}{
		{Maturity2Y, 2},
		{Maturity5Y, 5},
		{Maturity10Y, 10},
		{Maturity30Y, 30},
		{"7Y", 0},
		{"", 0},
	}
	for _, c := range cases {
		if got := c.in.SortKey(); got != c.want {
			t.Errorf("SortKey(%q) = %d; want %d", c.in, got, c.want)
		}
	}
}

func TestSortBondsByMaturity_Stable(t *testing.T) {
	bonds := []Bond{
		{CUSIP: "A", Maturity: Maturity10Y},
		{CUSIP: "B", Maturity: Maturity2Y},
		{CUSIP: "C", Maturity: "7Y"},
		{CUSIP: "D", Maturity: Maturity2Y},
		{CUSIP: "E", Maturity: Maturity30Y},
	}
	SortBondsByMaturity(bonds)

	want := []string{"C", "B", "D", "A", "E"}
	for i, b := range bonds {
		if b.CUSIP != want[i] {
			t.Errorf("bonds[%d] = %q; want %q", i, b.CUSIP, want[i])
		}
	}
}

func TestBondValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(b *Bond)
		wantErr bool
	}{
		{"valid", func(b *Bond) {}, false},
		{"bad cusip", func(b *Bond) { b.CUSIP = "XYZ" }, true},
		{"missing maturity", func(b *Bond) { b.Maturity = "" }, true},
		{"negative yield", func(b *Bond) { b.Yield = -0.5 }, true},
		{"nan price", func(b *Bond) { b.Price = Points(math.NaN()) }, true},
		{"inf yield change", func(b *Bond) { b.YieldChange = PercentPoints(math.Inf(1)) }, true},
		{"unlisted maturity", func(b *Bond) { b.Maturity = "7Y" }, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b := sampleBond()
			c.mutate(&b)
			err := b.Validate()
			if (err != nil) != c.wantErr {
				t.Errorf("err = %v; wantErr %v", err, c.wantErr)
			}
		})
	}
}

func TestBondFromMap_RoundTrip(t *testing.T) {
	in := sampleBond()

	hash := make(map[string]string)
	for k, v := range in.ToMap() {
		switch val := v.(type) {
		case string:
			hash[k] = val
		case int64:
			hash[k] = strconv.FormatInt(val, 10)
		default:
			t.Fatalf("unexpected type %T for %s", v, k)
		}
	}

	out, err := BondFromMap(hash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.LastUpdated.Equal(in.LastUpdated) {
		t.Errorf("LastUpdated = %v; want %v", out.LastUpdated, in.LastUpdated)
	}
	out.LastUpdated = in.LastUpdated
	if out != in {
		t.Errorf("BondFromMap = %+v; want %+v", out, in)
	}
}

func TestBondFromMap_InvalidCases(t *testing.T) {
	cases := []struct {
		name  string
		input map[string]string
	}{
		{"empty", map[string]string{}},
		{"missing price", map[string]string{"cusip": "912828YN9", "maturity": "10Y", "yield": "4.45"}},
		{"bad yield", map[string]string{
			"cusip": "912828YN9", "maturity": "10Y", "yield": "abc", "price": "97.25",
			"coupon": "4.45", "price_change": "0", "yield_change": "0", "bid": "97", "ask": "97.5",
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := BondFromMap(c.input); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestMarketSnapshotQuotes(t *testing.T) {
	snap := MarketSnapshot{Bonds: []Bond{sampleBond()}}
	quotes := snap.Quotes()
	if len(quotes) != 1 {
		t.Fatalf("len(quotes) = %d; want 1", len(quotes))
	}
	q := quotes[0]
	if q.Maturity != Maturity10Y || q.Yield != 4.45 || q.YieldChange != 0.0125 {
		t.Errorf("quote = %+v", q)
	}
}

func TestMarketSnapshotFromJSON(t *testing.T) {
	raw := `{"sequence":7,"bonds":[{"cusip":"912828YK5","maturity":"2Y","yield":4.875,"price":99.8125}]}`
	snap, err := MarketSnapshotFromJSON([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Sequence != 7 {
		t.Errorf("Sequence = %d; want 7", snap.Sequence)
	}
	if len(snap.Bonds) != 1 || snap.Bonds[0].Price != 99.8125 {
		t.Errorf("Bonds = %+v", snap.Bonds)
	}

	if _, err := MarketSnapshotFromJSON([]byte("{")); err == nil {
		t.Error("expected error for truncated payload")
	}
}

func TestPercentPointsBasisPoints(t *testing.T) {
	if got := PercentPoints(0.0125).BasisPoints(); math.Abs(got-1.25) > 1e-12 {
		t.Errorf("BasisPoints = %v; want 1.25", got)
	}
}
