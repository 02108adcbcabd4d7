package service

import (
	"context"

	"pricewatch/internal/dao"
	"pricewatch/internal/model"
	"pricewatch/internal/model/entity"
	"pricewatch/pkg/errors"
	"pricewatch/pkg/errors/ecode"
	"pricewatch/pkg/utils"
)

// SymbolService 交易对目录维护
type SymbolService struct {
	d dao.SymbolDAO
}

func NewSymbolService(d dao.SymbolDAO) *SymbolService {
	return &SymbolService{d: d}
}

func (s *SymbolService) List(ctx context.Context) ([]entity.Symbol, error) {
	symbols, err := s.d.FindAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, ecode.Unknown, "list symbols")
	}
	if symbols == nil {
		symbols = []entity.Symbol{}
	}
	return symbols, nil
}

// CreateBatch 批量新增，重复或已存在的交易对视为参数错误
func (s *SymbolService) CreateBatch(ctx context.Context, items []model.CreateSymbolItem) ([]entity.Symbol, error) {
	if len(items) == 0 {
		return nil, invalid("at least one symbol is required")
	}
	seen := make(map[string]struct{}, len(items))
	symbols := make([]entity.Symbol, 0, len(items))
	for _, it := range items {
		sym := utils.NormalizeSymbol(it.Symbol)
		if sym == "" {
			return nil, invalid("symbol must not be empty")
		}
		if _, dup := seen[sym]; dup {
			return nil, invalid("duplicate symbol %s", sym)
		}
		seen[sym] = struct{}{}

		existing, err := s.d.FindBySymbol(ctx, sym)
		if err != nil {
			return nil, errors.Wrap(err, ecode.Unknown, "check symbol")
		}
		if existing != nil {
			return nil, invalid("symbol %s already exists", sym)
		}
		symbols = append(symbols, entity.Symbol{Symbol: sym})
	}
	if err := s.d.CreateBatch(ctx, symbols); err != nil {
		return nil, errors.Wrap(err, ecode.Unknown, "create symbols")
	}
	return symbols, nil
}

func (s *SymbolService) Get(ctx context.Context, symbol string) (*entity.Symbol, error) {
	sym, err := s.d.FindBySymbol(ctx, utils.NormalizeSymbol(symbol))
	if err != nil {
		return nil, errors.Wrap(err, ecode.Unknown, "get symbol")
	}
	if sym == nil {
		return nil, ErrSymbolNotFound
	}
	return sym, nil
}

func (s *SymbolService) Delete(ctx context.Context, symbol string) error {
	sym, err := s.d.DeleteBySymbol(ctx, utils.NormalizeSymbol(symbol))
	if err != nil {
		return errors.Wrap(err, ecode.Unknown, "delete symbol")
	}
	if sym == nil {
		return ErrSymbolNotFound
	}
	return nil
}
