package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/alim08/treasury_line/pkg/logger"
	"github.com/alim08/treasury_line/pkg/models"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a bond or trade does not exist.
var ErrNotFound = errors.New("not found")

// BondRepository stores the latest quote per CUSIP.
type BondRepository interface {
	SaveAll(ctx context.Context, bonds []models.Bond) error
	List(ctx context.Context) ([]models.Bond, error)
	GetByCUSIP(ctx context.Context, cusip string) (models.Bond, error)
	Count(ctx context.Context) (int, error)
}

// TradeFilter narrows a trade listing. Empty fields match everything.
type TradeFilter struct {
	Status       models.TradeStatus
	Trader       string
	CUSIP        string
	Counterparty string
}

// Matches reports whether t passes the filter.
func (f TradeFilter) Matches(t models.Trade) bool {
	switch {
	case f.Status != "" && t.Status != f.Status:
		return false
	case f.Trader != "" && t.Trader != f.Trader:
		return false
	case f.CUSIP != "" && t.CUSIP != f.CUSIP:
		return false
	case f.Counterparty != "" && t.Counterparty != f.Counterparty:
		return false
	}
	return true
}

// TradeRepository stores booked trades.
type TradeRepository interface {
	Create(ctx context.Context, trade *models.Trade) error
	Update(ctx context.Context, trade *models.Trade) error
	Get(ctx context.Context, id int64) (models.Trade, error)
	// List returns matching trades, newest first.
	List(ctx context.Context, filter TradeFilter) ([]models.Trade, error)
}

type bondRepository struct {
	db *DB
}

// NewBondRepository returns a Postgres-backed BondRepository.
func NewBondRepository(db *DB) BondRepository {
	return &bondRepository{db: db}
}

const upsertBond = `
	INSERT INTO treasury_bonds (cusip, maturity, yield, price, coupon, price_change, yield_change,
		bid_price, ask_price, volume, last_updated)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (cusip) DO UPDATE SET
		maturity = EXCLUDED.maturity,
		yield = EXCLUDED.yield,
		price = EXCLUDED.price,
		coupon = EXCLUDED.coupon,
		price_change = EXCLUDED.price_change,
		yield_change = EXCLUDED.yield_change,
		bid_price = EXCLUDED.bid_price,
		ask_price = EXCLUDED.ask_price,
		volume = EXCLUDED.volume,
		last_updated = EXCLUDED.last_updated
`

const selectBond = `
	SELECT cusip, maturity, yield, price, coupon, price_change, yield_change,
		bid_price, ask_price, volume, last_updated
	FROM treasury_bonds
`

// SaveAll upserts every bond in one transaction.
func (r *bondRepository) SaveAll(ctx context.Context, bonds []models.Bond) (err error) {
	done := track("save_bonds")
	defer func() { done(err) }()

	for i := range bonds {
		bonds[i].Sanitize()
		if err := bonds[i].Validate(); err != nil {
			return fmt.Errorf("bond %s validation failed: %w", bonds[i].CUSIP, err)
		}
	}

	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertBond)
		if err != nil {
			return fmt.Errorf("failed to prepare bond upsert: %w", err)
		}
		defer stmt.Close()

		for _, b := range bonds {
			_, err := stmt.ExecContext(ctx, b.CUSIP, string(b.Maturity), float64(b.Yield), float64(b.Price),
				float64(b.Coupon), float64(b.PriceChange), float64(b.YieldChange),
				float64(b.BidPrice), float64(b.AskPrice), b.Volume, b.LastUpdated)
			if err != nil {
				return fmt.Errorf("failed to save bond %s: %w", b.CUSIP, err)
			}
		}
		return nil
	})
}

// List returns all bonds ordered by maturity.
func (r *bondRepository) List(ctx context.Context) (bonds []models.Bond, err error) {
	done := track("list_bonds")
	defer func() { done(err) }()

	rows, err := r.db.QueryContext(ctx, selectBond)
	if err != nil {
		return nil, fmt.Errorf("failed to list bonds: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		b, err := scanBond(rows)
		if err != nil {
			return nil, err
		}
		bonds = append(bonds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bonds: %w", err)
	}

	models.SortBondsByMaturity(bonds)
	return bonds, nil
}

// GetByCUSIP returns one bond or ErrNotFound.
func (r *bondRepository) GetByCUSIP(ctx context.Context, cusip string) (b models.Bond, err error) {
	done := track("get_bond")
	defer func() { done(err) }()

	row := r.db.QueryRowContext(ctx, selectBond+` WHERE cusip = $1`, strings.ToUpper(cusip))
	b, err = scanBond(row)
	if errors.Is(err, sql.ErrNoRows) {
		return b, ErrNotFound
	}
	return b, err
}

// Count returns the number of stored bonds.
func (r *bondRepository) Count(ctx context.Context) (n int, err error) {
	done := track("count_bonds")
	defer func() { done(err) }()

	err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM treasury_bonds`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count bonds: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBond(s scanner) (models.Bond, error) {
	var b models.Bond
	var maturity string
	err := s.Scan(&b.CUSIP, &maturity, (*float64)(&b.Yield), (*float64)(&b.Price), (*float64)(&b.Coupon),
		(*float64)(&b.PriceChange), (*float64)(&b.YieldChange),
		(*float64)(&b.BidPrice), (*float64)(&b.AskPrice), &b.Volume, &b.LastUpdated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return b, err
		}
		return b, fmt.Errorf("failed to scan bond: %w", err)
	}
	b.Maturity = models.Maturity(maturity)
	return b, nil
}

type tradeRepository struct {
	db *DB
}

// NewTradeRepository returns a Postgres-backed TradeRepository.
func NewTradeRepository(db *DB) TradeRepository {
	return &tradeRepository{db: db}
}

const selectTrade = `
	SELECT id, cusip, COALESCE(maturity, ''), side, quantity, price, yield, counterparty, trader,
		timestamp, status, settlement_date, commission
	FROM trades
`

// Create inserts trade and assigns its ID.
func (r *tradeRepository) Create(ctx context.Context, trade *models.Trade) (err error) {
	done := track("create_trade")
	defer func() { done(err) }()

	query := `
		INSERT INTO trades (cusip, maturity, side, quantity, price, yield, counterparty, trader,
			timestamp, status, settlement_date, commission)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	err = r.db.QueryRowContext(ctx, query, trade.CUSIP, nullable(string(trade.Maturity)), string(trade.Side),
		trade.Quantity, trade.Price, trade.Yield, trade.Counterparty, trade.Trader,
		trade.Timestamp, string(trade.Status), nullTime(trade), trade.Commission).Scan(&trade.ID)
	if err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}

	logger.Log.Debug("trade stored", zap.Int64("id", trade.ID), zap.String("cusip", trade.CUSIP))
	return nil
}

// Update overwrites the stored trade with the same ID.
func (r *tradeRepository) Update(ctx context.Context, trade *models.Trade) (err error) {
	done := track("update_trade")
	defer func() { done(err) }()

	query := `
		UPDATE trades SET cusip = $2, maturity = $3, side = $4, quantity = $5, price = $6, yield = $7,
			counterparty = $8, trader = $9, timestamp = $10, status = $11, settlement_date = $12,
			commission = $13
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, trade.ID, trade.CUSIP, nullable(string(trade.Maturity)),
		string(trade.Side), trade.Quantity, trade.Price, trade.Yield, trade.Counterparty, trade.Trader,
		trade.Timestamp, string(trade.Status), nullTime(trade), trade.Commission)
	if err != nil {
		return fmt.Errorf("failed to update trade %d: %w", trade.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns the trade with id or ErrNotFound.
func (r *tradeRepository) Get(ctx context.Context, id int64) (t models.Trade, err error) {
	done := track("get_trade")
	defer func() { done(err) }()

	t, err = scanTrade(r.db.QueryRowContext(ctx, selectTrade+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

// List returns trades matching filter ordered by timestamp descending.
func (r *tradeRepository) List(ctx context.Context, filter TradeFilter) (trades []models.Trade, err error) {
	done := track("list_trades")
	defer func() { done(err) }()

	where, args := filter.where()
	rows, err := r.db.QueryContext(ctx, selectTrade+where+` ORDER BY timestamp DESC, id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}
	return trades, nil
}

// where builds the WHERE clause for the non-empty filter fields.
func (f TradeFilter) where() (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("status", string(f.Status))
	add("trader", f.Trader)
	add("cusip", f.CUSIP)
	add("counterparty", f.Counterparty)

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanTrade(s scanner) (models.Trade, error) {
	var t models.Trade
	var maturity, side, status string
	var settle sql.NullTime
	err := s.Scan(&t.ID, &t.CUSIP, &maturity, &side, &t.Quantity, &t.Price, &t.Yield, &t.Counterparty,
		&t.Trader, &t.Timestamp, &status, &settle, &t.Commission)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, err
		}
		return t, fmt.Errorf("failed to scan trade: %w", err)
	}
	t.Maturity = models.Maturity(maturity)
	t.Side = models.Side(side)
	t.Status = models.TradeStatus(status)
	if settle.Valid {
		t.SettlementDate = settle.Time
	}
	return t, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *models.Trade) sql.NullTime {
	return sql.NullTime{Time: t.SettlementDate, Valid: !t.SettlementDate.IsZero()}
}
