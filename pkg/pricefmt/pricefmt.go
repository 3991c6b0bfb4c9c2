// Package pricefmt formats treasury prices, yields and volumes the way the
// desk quotes them: prices in points and 32nds, yields in percent, yield
// moves in basis points.
//
// All functions are pure and locale independent. Non-finite input is
// rejected with ErrInvalidNumber instead of leaking "NaN" into the output.
package pricefmt

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alim08/treasury_line/pkg/models"
	"github.com/shopspring/decimal"
)

// Invalid is shown in place of a field that could not be formatted.
const Invalid = "N/A"

var (
	ErrInvalidNumber = errors.New("invalid number")
	ErrNegativePrice = errors.New("negative price")
	ErrInvalidPrice  = errors.New("invalid 32nds price")
)

var (
	hundred  = decimal.NewFromInt(100)
	thousand = decimal.NewFromInt(1_000)
	million  = decimal.NewFromInt(1_000_000)
)

func checkFinite(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidNumber, v)
	}
	return nil
}

// thirtySeconds splits a non-negative value into whole points and 32nds,
// rounding half up. A fraction that rounds to 32/32 carries into the
// whole part.
func thirtySeconds(v float64) (whole float64, n int) {
	whole = math.Floor(v)
	n = int(math.Floor((v-whole)*32 + 0.5))
	if n >= 32 {
		whole++
		n = 0
	}
	return whole, n
}

func formatThirtySeconds(v float64) string {
	whole, n := thirtySeconds(v)
	return fmt.Sprintf("%s-%02d", strconv.FormatFloat(whole, 'f', 0, 64), n)
}

// FormatPrice renders a price as "{points}-{32nds}", e.g. 99.5 -> "99-16".
func FormatPrice(v models.Points) (string, error) {
	f := float64(v)
	if err := checkFinite(f); err != nil {
		return "", err
	}
	if f < 0 {
		return "", fmt.Errorf("%w: %v", ErrNegativePrice, f)
	}
	return formatThirtySeconds(f), nil
}

// FormatSignedPrice renders a price change in 32nds with an explicit sign.
// Zero renders as "+0-00".
func FormatSignedPrice(d models.Points) (string, error) {
	f := float64(d)
	if err := checkFinite(f); err != nil {
		return "", err
	}
	sign := "+"
	if f < 0 {
		sign = "-"
	}
	return sign + formatThirtySeconds(math.Abs(f)), nil
}

// ParsePrice parses the output of FormatPrice or FormatSignedPrice back into
// points. A trailing "+" adds half a 32nd ("99-16+" is 99 33/64).
func ParsePrice(s string) (models.Points, error) {
	in := strings.TrimSpace(s)
	neg := false
	switch {
	case strings.HasPrefix(in, "+"):
		in = in[1:]
	case strings.HasPrefix(in, "-"):
		neg = true
		in = in[1:]
	}

	half := strings.HasSuffix(in, "+")
	if half {
		in = strings.TrimSuffix(in, "+")
	}

	parts := strings.Split(in, "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || len(parts[1]) > 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, s)
	}
	whole, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidPrice, s, err)
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil || n < 0 || n > 31 {
		return 0, fmt.Errorf("%w: %q: 32nds out of range", ErrInvalidPrice, s)
	}

	v := float64(whole) + float64(n)/32
	if half {
		v += 1.0 / 64
	}
	if neg {
		v = -v
	}
	return models.Points(v), nil
}

// FormatFixed rounds v to places decimals, halves away from zero.
func FormatFixed(v float64, places int32) (string, error) {
	if err := checkFinite(v); err != nil {
		return "", err
	}
	return decimal.NewFromFloat(v).StringFixed(places), nil
}

// FormatPercent renders a yield with three decimals, e.g. "4.125%".
func FormatPercent(v models.PercentPoints) (string, error) {
	s, err := FormatFixed(float64(v), 3)
	if err != nil {
		return "", err
	}
	return s + "%", nil
}

// FormatYieldChangeBp renders a yield move in basis points with one decimal
// and an explicit sign for non-negative moves: 0.0125 -> "+1.3bp".
func FormatYieldChangeBp(d models.PercentPoints) (string, error) {
	f := float64(d)
	if err := checkFinite(f); err != nil {
		return "", err
	}
	s := decimal.NewFromFloat(f).Mul(hundred).StringFixed(1)
	switch {
	case f >= 0:
		s = "+" + s
	case !strings.HasPrefix(s, "-"):
		// tiny negative moves round to 0.0 and lose their sign
		s = "-" + s
	}
	return s + "bp", nil
}

// FormatVolume abbreviates a face amount: 2500000 -> "2.5M", 1500 -> "2K".
func FormatVolume(n int64) string {
	v := decimal.NewFromInt(n)
	switch {
	case n >= 1_000_000:
		return v.Div(million).StringFixed(1) + "M"
	case n >= 1_000:
		return v.Div(thousand).Round(0).String() + "K"
	default:
		return strconv.FormatInt(n, 10)
	}
}
