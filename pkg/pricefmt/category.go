package pricefmt

import "github.com/alim08/treasury_line/pkg/models"

// Category is the visual direction of a change.
type Category int

const (
	Neutral Category = iota
	Up
	Down
)

func (c Category) String() string {
	switch c {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "neutral"
	}
}

// CSSClass returns the dashboard class for the category.
func (c Category) CSSClass() string {
	switch c {
	case Up:
		return "positive"
	case Down:
		return "negative"
	default:
		return "neutral"
	}
}

// MarshalText lets categories encode as their names in JSON.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// ClassifyPriceChange maps a price move to Up, Down or Neutral.
func ClassifyPriceChange(d models.Points) Category {
	switch {
	case d > 0:
		return Up
	case d < 0:
		return Down
	default:
		return Neutral
	}
}

// ClassifyYieldChange is inverted: rising yields mean falling prices, so a
// positive yield move is Down.
func ClassifyYieldChange(d models.PercentPoints) Category {
	switch {
	case d > 0:
		return Down
	case d < 0:
		return Up
	default:
		return Neutral
	}
}
