package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/alim08/treasury_line/pkg/models"
)

// MemoryBondRepository keeps bonds in process. Used with STORE=memory and in tests.
type MemoryBondRepository struct {
	mu    sync.RWMutex
	bonds map[string]models.Bond
}

func NewMemoryBondRepository() *MemoryBondRepository {
	return &MemoryBondRepository{bonds: make(map[string]models.Bond)}
}

func (r *MemoryBondRepository) SaveAll(ctx context.Context, bonds []models.Bond) (err error) {
	done := track("save_bonds")
	defer func() { done(err) }()

	for i := range bonds {
		bonds[i].Sanitize()
		if err := bonds[i].Validate(); err != nil {
			return fmt.Errorf("bond %s validation failed: %w", bonds[i].CUSIP, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range bonds {
		r.bonds[b.CUSIP] = b
	}
	return nil
}

func (r *MemoryBondRepository) List(ctx context.Context) ([]models.Bond, error) {
	r.mu.RLock()
	bonds := make([]models.Bond, 0, len(r.bonds))
	for _, b := range r.bonds {
		bonds = append(bonds, b)
	}
	r.mu.RUnlock()

	// map order is random; fix ties before the stable maturity sort
	sort.Slice(bonds, func(i, j int) bool { return bonds[i].CUSIP < bonds[j].CUSIP })
	models.SortBondsByMaturity(bonds)
	return bonds, nil
}

func (r *MemoryBondRepository) GetByCUSIP(ctx context.Context, cusip string) (models.Bond, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bonds[strings.ToUpper(cusip)]
	if !ok {
		return models.Bond{}, ErrNotFound
	}
	return b, nil
}

func (r *MemoryBondRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bonds), nil
}

// MemoryTradeRepository keeps trades in insertion order with sequential IDs.
type MemoryTradeRepository struct {
	mu     sync.RWMutex
	nextID int64
	trades []models.Trade
}

func NewMemoryTradeRepository() *MemoryTradeRepository {
	return &MemoryTradeRepository{nextID: 1}
}

func (r *MemoryTradeRepository) Create(ctx context.Context, trade *models.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	trade.ID = r.nextID
	r.nextID++
	r.trades = append(r.trades, *trade)
	return nil
}

func (r *MemoryTradeRepository) Update(ctx context.Context, trade *models.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.trades {
		if r.trades[i].ID == trade.ID {
			r.trades[i] = *trade
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryTradeRepository) Get(ctx context.Context, id int64) (models.Trade, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.trades {
		if t.ID == id {
			return t, nil
		}
	}
	return models.Trade{}, ErrNotFound
}

func (r *MemoryTradeRepository) List(ctx context.Context, filter TradeFilter) ([]models.Trade, error) {
	r.mu.RLock()
	var out []models.Trade
	for _, t := range r.trades {
		if filter.Matches(t) {
			out = append(out, t)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}
