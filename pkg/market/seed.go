package market

import (
	"time"

	"github.com/alim08/treasury_line/pkg/models"
)

// Seed returns the on-the-run set the desk starts from.
func Seed(now time.Time) []models.Bond {
	seed := []struct {
		cusip    string
		maturity models.Maturity
		yield    models.PercentPoints
		price    models.Points
		bid, ask models.Points
	}{
		{"912828YK5", models.Maturity2Y, 4.875, 99.8125, 99.8000, 99.8250},
		{"912828YM1", models.Maturity5Y, 4.625, 98.75, 98.7375, 98.7625},
		{"912828YN9", models.Maturity10Y, 4.450, 97.25, 97.2375, 97.2625},
		{"912810TM0", models.Maturity30Y, 4.625, 95.125, 95.1125, 95.1375},
	}

	bonds := make([]models.Bond, 0, len(seed))
	for _, s := range seed {
		bonds = append(bonds, models.Bond{
			CUSIP:       s.cusip,
			Maturity:    s.maturity,
			Yield:       s.yield,
			Price:       s.price,
			Coupon:      s.yield,
			BidPrice:    s.bid,
			AskPrice:    s.ask,
			LastUpdated: now,
		})
	}
	return bonds
}
