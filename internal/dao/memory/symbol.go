package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"pricewatch/internal/dao"
	"pricewatch/internal/model/entity"
)

type SymbolDAO struct {
	mu      sync.RWMutex
	nextID  uint
	symbols map[string]entity.Symbol
}

func NewSymbolDAO() *SymbolDAO {
	return &SymbolDAO{symbols: make(map[string]entity.Symbol)}
}

var _ dao.SymbolDAO = (*SymbolDAO)(nil)

func (d *SymbolDAO) FindAll(ctx context.Context) ([]entity.Symbol, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]entity.Symbol, 0, len(d.symbols))
	for _, s := range d.symbols {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (d *SymbolDAO) CreateBatch(ctx context.Context, symbols []entity.Symbol) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range symbols {
		if _, ok := d.symbols[s.Symbol]; ok {
			return errors.New("duplicate symbol " + s.Symbol)
		}
	}
	now := time.Now()
	for _, s := range symbols {
		d.nextID++
		s.ID = d.nextID
		s.CreatedAt = now
		s.UpdatedAt = now
		d.symbols[s.Symbol] = s
	}
	return nil
}

func (d *SymbolDAO) FindBySymbol(ctx context.Context, symbol string) (*entity.Symbol, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.symbols[symbol]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (d *SymbolDAO) DeleteBySymbol(ctx context.Context, symbol string) (*entity.Symbol, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.symbols[symbol]
	if !ok {
		return nil, nil
	}
	delete(d.symbols, symbol)
	return &s, nil
}
