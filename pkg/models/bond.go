package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/alim08/treasury_line/pkg/validation"
)

// Bond is the latest quote for one on-the-run treasury.
type Bond struct {
	CUSIP       string        `json:"cusip" validate:"required,cusip"`
	Maturity    Maturity      `json:"maturity" validate:"required,maturity"`
	Yield       PercentPoints `json:"yield" validate:"finite,gte=0"`
	Price       Points        `json:"price" validate:"required,price"`
	Coupon      PercentPoints `json:"coupon" validate:"finite,gte=0"`
	PriceChange Points        `json:"priceChange" validate:"finite"`
	YieldChange PercentPoints `json:"yieldChange" validate:"finite"`
	BidPrice    Points        `json:"bidPrice" validate:"finite,gte=0"`
	AskPrice    Points        `json:"askPrice" validate:"finite,gte=0"`
	Volume      int64         `json:"volume" validate:"gte=0"`
	LastUpdated time.Time     `json:"lastUpdated"`
}

// Validate validates the Bond struct
func (b Bond) Validate() error {
	if errors := validation.ValidateStruct(b); len(errors) > 0 {
		return errors
	}
	return nil
}

// Sanitize normalizes identifiers and fills a missing timestamp.
func (b *Bond) Sanitize() {
	b.CUSIP = validation.SanitizeCode(b.CUSIP)
	b.Maturity = Maturity(validation.SanitizeCode(string(b.Maturity)))
	if b.LastUpdated.IsZero() {
		b.LastUpdated = time.Now().UTC()
	}
}

// CurveQuote extracts the point this bond contributes to the yield curve.
func (b Bond) CurveQuote() CurveQuote {
	return CurveQuote{
		Maturity:    b.Maturity,
		Yield:       b.Yield,
		YieldChange: b.YieldChange,
	}
}

// ToMap converts the bond to a hash for the Redis latest-quote cache.
func (b Bond) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"cusip":        b.CUSIP,
		"maturity":     string(b.Maturity),
		"yield":        strconv.FormatFloat(float64(b.Yield), 'f', -1, 64),
		"price":        strconv.FormatFloat(float64(b.Price), 'f', -1, 64),
		"coupon":       strconv.FormatFloat(float64(b.Coupon), 'f', -1, 64),
		"price_change": strconv.FormatFloat(float64(b.PriceChange), 'f', -1, 64),
		"yield_change": strconv.FormatFloat(float64(b.YieldChange), 'f', -1, 64),
		"bid":          strconv.FormatFloat(float64(b.BidPrice), 'f', -1, 64),
		"ask":          strconv.FormatFloat(float64(b.AskPrice), 'f', -1, 64),
		"volume":       b.Volume,
		"ts_ms":        b.LastUpdated.UnixMilli(),
	}
}

// BondFromMap parses a hash read back with HGETALL.
func BondFromMap(m map[string]string) (Bond, error) {
	var b Bond
	if len(m) == 0 {
		return b, fmt.Errorf("empty bond hash")
	}

	b.CUSIP = m["cusip"]
	b.Maturity = Maturity(m["maturity"])

	floats := []struct {
		key string
		dst *float64
	}{
		{"yield", (*float64)(&b.Yield)},
		{"price", (*float64)(&b.Price)},
		{"coupon", (*float64)(&b.Coupon)},
		{"price_change", (*float64)(&b.PriceChange)},
		{"yield_change", (*float64)(&b.YieldChange)},
		{"bid", (*float64)(&b.BidPrice)},
		{"ask", (*float64)(&b.AskPrice)},
	}
	for _, f := range floats {
		raw, ok := m[f.key]
		if !ok {
			return b, fmt.Errorf("missing '%s'", f.key)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return b, fmt.Errorf("%s parse error: %w", f.key, err)
		}
		*f.dst = v
	}

	if raw, ok := m["volume"]; ok {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return b, fmt.Errorf("volume parse error: %w", err)
		}
		b.Volume = v
	}
	if raw, ok := m["ts_ms"]; ok {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return b, fmt.Errorf("ts_ms parse error: %w", err)
		}
		b.LastUpdated = time.UnixMilli(ms).UTC()
	}

	if err := b.Validate(); err != nil {
		return b, fmt.Errorf("validation failed: %w", err)
	}
	return b, nil
}

// ToJSON converts to JSON string for pub/sub
func (b Bond) ToJSON() (string, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("json marshal error: %w", err)
	}
	return string(data), nil
}

// CurveQuote is one maturity/yield observation on the curve.
type CurveQuote struct {
	Maturity    Maturity      `json:"maturity"`
	Yield       PercentPoints `json:"yieldValue"`
	YieldChange PercentPoints `json:"change"`
}

// MarketSnapshot is the full set of bond quotes pushed on every tick.
type MarketSnapshot struct {
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Bonds     []Bond    `json:"bonds"`
}

// Quotes returns the curve observations in snapshot order.
func (s MarketSnapshot) Quotes() []CurveQuote {
	quotes := make([]CurveQuote, 0, len(s.Bonds))
	for _, b := range s.Bonds {
		quotes = append(quotes, b.CurveQuote())
	}
	return quotes
}

// MarketSnapshotFromJSON decodes a snapshot published on the market-data topic.
func MarketSnapshotFromJSON(data []byte) (MarketSnapshot, error) {
	var s MarketSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("json unmarshal error: %w", err)
	}
	return s, nil
}
