package models

import "sort"

// Points is a price or price delta quoted in points of par.
// 99.5 is 99 and 16/32nds.
type Points float64

// PercentPoints is a yield or yield delta in percentage points.
// 4.125 means 4.125%; 0.01 is one basis point.
type PercentPoints float64

// BasisPoints converts a percentage-point delta to basis points.
func (p PercentPoints) BasisPoints() float64 {
	return float64(p) * 100
}

// Maturity is the tenor bucket of an on-the-run treasury (2Y, 10Y, ...).
type Maturity string

const (
	Maturity2Y  Maturity = "2Y"
	Maturity5Y  Maturity = "5Y"
	Maturity10Y Maturity = "10Y"
	Maturity30Y Maturity = "30Y"
)

var maturitySortKeys = map[Maturity]int{
	Maturity2Y:  2,
	Maturity5Y:  5,
	Maturity10Y: 10,
	Maturity30Y: 30,
}

// OnTheRun lists the tracked maturities in curve order.
var OnTheRun = []Maturity{Maturity2Y, Maturity5Y, Maturity10Y, Maturity30Y}

// SortKey returns the ordering key for the maturity. Unrecognized labels
// return 0 so they sort ahead of the known tenors.
func (m Maturity) SortKey() int {
	return maturitySortKeys[m]
}

// Known reports whether m is one of the on-the-run maturities.
func (m Maturity) Known() bool {
	_, ok := maturitySortKeys[m]
	return ok
}

// SortBondsByMaturity orders bonds by maturity in place. Ties keep their order.
func SortBondsByMaturity(bonds []Bond) {
	sort.SliceStable(bonds, func(i, j int) bool {
		return bonds[i].Maturity.SortKey() < bonds[j].Maturity.SortKey()
	})
}
