package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alim08/treasury_line/pkg/database"
	"github.com/alim08/treasury_line/pkg/logger"
	"github.com/alim08/treasury_line/pkg/metrics"
	"github.com/alim08/treasury_line/pkg/models"
	"github.com/alim08/treasury_line/pkg/validation"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrTradeNotFound  = errors.New("trade not found")
	ErrNotCancellable = errors.New("only pending trades can be cancelled")
	ErrUnknownBond    = errors.New("unknown bond")
	ErrInvalidTrade   = errors.New("invalid trade")
)

// Publisher pushes trade lifecycle events to subscribers.
type Publisher interface {
	PublishTrade(ctx context.Context, ev models.TradeEvent) error
}

// BondLookup resolves a CUSIP to its current quote.
type BondLookup interface {
	GetByCUSIP(ctx context.Context, cusip string) (models.Bond, error)
}

// Service books, lists and cancels trades.
type Service struct {
	trades      database.TradeRepository
	bonds       BondLookup
	pub         Publisher
	autoExecute bool
	now         func() time.Time
}

type Option func(*Service)

// WithBonds rejects bookings against CUSIPs the lookup does not know and
// fills a missing maturity from the bond.
func WithBonds(b BondLookup) Option {
	return func(s *Service) { s.bonds = b }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.pub = p }
}

// WithAutoExecute controls whether booked trades move straight to EXECUTED.
// It is on by default.
func WithAutoExecute(on bool) Option {
	return func(s *Service) { s.autoExecute = on }
}

func NewService(trades database.TradeRepository, opts ...Option) *Service {
	s := &Service{trades: trades, autoExecute: true, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BookRequest is the ticket submitted by the booking form.
type BookRequest struct {
	CUSIP        string          `json:"cusip"`
	Maturity     string          `json:"maturity"`
	Side         string          `json:"side"`
	Quantity     int64           `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	Yield        decimal.Decimal `json:"yield"`
	Counterparty string          `json:"counterparty"`
	Trader       string          `json:"trader"`
	Status       string          `json:"status,omitempty"`
	// SettlementDate accepts RFC 3339 or YYYY-MM-DD. Empty means the next day.
	SettlementDate string          `json:"settlementDate"`
	Commission     decimal.Decimal `json:"commission"`
}

// Book validates and stores a trade, then simulates its execution.
func (s *Service) Book(ctx context.Context, req BookRequest) (models.Trade, error) {
	trade, err := s.book(ctx, req)
	if err != nil {
		metrics.TradeErrors.WithLabelValues("book").Inc()
		return trade, err
	}

	metrics.TradesBooked.WithLabelValues(string(trade.Side)).Inc()
	logger.Log.Info("trade booked",
		zap.Int64("id", trade.ID),
		zap.String("cusip", trade.CUSIP),
		zap.String("side", string(trade.Side)),
		zap.Int64("quantity", trade.Quantity),
		zap.String("status", string(trade.Status)))

	s.publish(ctx, models.ActionBooked, trade)
	return trade, nil
}

func (s *Service) book(ctx context.Context, req BookRequest) (models.Trade, error) {
	now := s.now().UTC()
	settle, err := parseSettlementDate(req.SettlementDate, now)
	if err != nil {
		return models.Trade{}, fmt.Errorf("%w: %w", ErrInvalidTrade, err)
	}

	trade := models.Trade{
		CUSIP:          req.CUSIP,
		Maturity:       models.Maturity(req.Maturity),
		Side:           models.Side(req.Side),
		Quantity:       req.Quantity,
		Price:          req.Price,
		Yield:          req.Yield,
		Counterparty:   req.Counterparty,
		Trader:         req.Trader,
		Timestamp:      now,
		Status:         models.TradeStatus(req.Status),
		SettlementDate: settle,
		Commission:     req.Commission,
	}
	trade.Sanitize()
	if trade.Status == "" {
		trade.Status = models.TradePending
	}
	if err := trade.Validate(); err != nil {
		return trade, fmt.Errorf("%w: %w", ErrInvalidTrade, err)
	}

	if s.bonds != nil {
		bond, err := s.bonds.GetByCUSIP(ctx, trade.CUSIP)
		if errors.Is(err, database.ErrNotFound) {
			return trade, fmt.Errorf("%w: %s", ErrUnknownBond, trade.CUSIP)
		}
		if err != nil {
			return trade, fmt.Errorf("lookup bond: %w", err)
		}
		if trade.Maturity == "" {
			trade.Maturity = bond.Maturity
		}
	}

	if err := s.trades.Create(ctx, &trade); err != nil {
		return trade, fmt.Errorf("save trade: %w", err)
	}

	if s.autoExecute {
		trade.Status = models.TradeExecuted
		if err := s.trades.Update(ctx, &trade); err != nil {
			return trade, fmt.Errorf("execute trade %d: %w", trade.ID, err)
		}
	}
	return trade, nil
}

// parseSettlementDate returns the settlement day at midnight UTC.
func parseSettlementDate(raw string, tradeTime time.Time) (time.Time, error) {
	tradeDay := tradeTime.Truncate(24 * time.Hour)
	if raw == "" {
		return tradeDay.AddDate(0, 0, 1), nil
	}

	var t time.Time
	var err error
	if t, err = time.Parse(time.RFC3339, raw); err != nil {
		if t, err = time.Parse("2006-01-02", raw); err != nil {
			return time.Time{}, fmt.Errorf("settlementDate %q: want YYYY-MM-DD or RFC 3339", raw)
		}
	}
	t = t.UTC().Truncate(24 * time.Hour)
	if t.Before(tradeDay) {
		return time.Time{}, fmt.Errorf("settlementDate %s is before trade date %s",
			t.Format("2006-01-02"), tradeDay.Format("2006-01-02"))
	}
	return t, nil
}

// Filter selects trades for the blotter. Status wins over Trader.
type Filter struct {
	Status string
	Trader string
}

// List returns trades newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]models.Trade, error) {
	var q database.TradeFilter
	switch {
	case f.Status != "":
		q.Status = models.TradeStatus(f.Status)
	case f.Trader != "":
		q.Trader = f.Trader
	}
	q.Status = models.TradeStatus(validation.SanitizeCode(string(q.Status)))
	return s.trades.List(ctx, q)
}

// ByCUSIP returns the trades booked against one bond.
func (s *Service) ByCUSIP(ctx context.Context, cusip string) ([]models.Trade, error) {
	return s.trades.List(ctx, database.TradeFilter{CUSIP: validation.SanitizeCode(cusip)})
}

// ByCounterparty returns the trades done with one counterparty.
func (s *Service) ByCounterparty(ctx context.Context, counterparty string) ([]models.Trade, error) {
	return s.trades.List(ctx, database.TradeFilter{Counterparty: validation.SanitizeCode(counterparty)})
}

func (s *Service) Get(ctx context.Context, id int64) (models.Trade, error) {
	t, err := s.trades.Get(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return t, ErrTradeNotFound
	}
	return t, err
}

// Cancel moves a pending trade to CANCELLED.
func (s *Service) Cancel(ctx context.Context, id int64) (models.Trade, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		metrics.TradeErrors.WithLabelValues("cancel").Inc()
		return t, err
	}
	if !t.Cancellable() {
		metrics.TradeErrors.WithLabelValues("cancel").Inc()
		return t, fmt.Errorf("%w: trade %d is %s", ErrNotCancellable, id, t.Status)
	}

	t.Status = models.TradeCancelled
	if err := s.trades.Update(ctx, &t); err != nil {
		metrics.TradeErrors.WithLabelValues("cancel").Inc()
		return t, fmt.Errorf("cancel trade %d: %w", id, err)
	}

	metrics.TradesCancelled.Inc()
	logger.Log.Info("trade cancelled", zap.Int64("id", id))
	s.publish(ctx, models.ActionCancelled, t)
	return t, nil
}

// publish is best effort; the trade is already stored.
func (s *Service) publish(ctx context.Context, action models.TradeAction, t models.Trade) {
	if s.pub == nil {
		return
	}
	if err := s.pub.PublishTrade(ctx, models.TradeEvent{Action: action, Trade: t}); err != nil {
		logger.Log.Warn("trade publish failed",
			zap.Int64("id", t.ID),
			zap.String("action", string(action)),
			zap.Error(err))
	}
}
