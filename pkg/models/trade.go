package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alim08/treasury_line/pkg/validation"
	"github.com/shopspring/decimal"
)

// Side is the direction of a trade from the desk's point of view.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// TradeStatus is the lifecycle state of a booked trade.
type TradeStatus string

const (
	TradePending   TradeStatus = "PENDING"
	TradeExecuted  TradeStatus = "EXECUTED"
	TradeCancelled TradeStatus = "CANCELLED"
	TradeFailed    TradeStatus = "FAILED"
)

// MinTradeQuantity is the smallest face amount the desk books.
const MinTradeQuantity = 1000

// Trade is a booked treasury trade.
type Trade struct {
	ID             int64           `json:"id"`
	CUSIP          string          `json:"cusip" validate:"required,cusip"`
	Maturity       Maturity        `json:"maturity" validate:"omitempty,maturity"`
	Side           Side            `json:"side" validate:"required,side"`
	Quantity       int64           `json:"quantity" validate:"required,min=1000"`
	Price          decimal.Decimal `json:"price" validate:"gte=0"`
	Yield          decimal.Decimal `json:"yield" validate:"gte=0"`
	Counterparty   string          `json:"counterparty" validate:"required,counterparty"`
	Trader         string          `json:"trader" validate:"required,max=50"`
	Timestamp      time.Time       `json:"timestamp"`
	Status         TradeStatus     `json:"status" validate:"omitempty,tradestatus"`
	SettlementDate time.Time       `json:"settlementDate"`
	Commission     decimal.Decimal `json:"commission" validate:"gte=0"`
}

// Validate validates the Trade struct
func (t Trade) Validate() error {
	if errors := validation.ValidateStruct(t); len(errors) > 0 {
		return errors
	}
	return nil
}

// Sanitize cleans identifiers and free-text fields.
func (t *Trade) Sanitize() {
	t.CUSIP = validation.SanitizeCode(t.CUSIP)
	t.Maturity = Maturity(validation.SanitizeCode(string(t.Maturity)))
	t.Side = Side(validation.SanitizeCode(string(t.Side)))
	t.Status = TradeStatus(validation.SanitizeCode(string(t.Status)))
	t.Counterparty = validation.SanitizeCode(t.Counterparty)
	t.Trader = validation.SanitizeString(t.Trader)
}

// Cancellable reports whether the trade can still be cancelled.
func (t Trade) Cancellable() bool {
	return t.Status == TradePending
}

// ToJSON converts to JSON string for pub/sub
func (t Trade) ToJSON() (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("json marshal error: %w", err)
	}
	return string(data), nil
}

// TradeAction names what happened to a trade in a TradeEvent.
type TradeAction string

const (
	ActionBooked    TradeAction = "booked"
	ActionCancelled TradeAction = "cancelled"
)

// TradeEvent is published on the trades topic.
type TradeEvent struct {
	Action TradeAction `json:"action"`
	Trade  Trade       `json:"trade"`
}
