package query

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"pricewatch/internal/dao"
	"pricewatch/internal/model/entity"
)

type SymbolDAOImpl struct {
	db *gorm.DB
}

func NewSymbolDAO(db *gorm.DB) dao.SymbolDAO {
	return &SymbolDAOImpl{db: db}
}

func (d *SymbolDAOImpl) FindAll(ctx context.Context) ([]entity.Symbol, error) {
	var symbols []entity.Symbol
	if err := d.db.WithContext(ctx).Order("symbol ASC").Find(&symbols).Error; err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}
	return symbols, nil
}

func (d *SymbolDAOImpl) CreateBatch(ctx context.Context, symbols []entity.Symbol) error {
	if len(symbols) == 0 {
		return nil
	}
	return d.db.WithContext(ctx).CreateInBatches(symbols, 100).Error
}

func (d *SymbolDAOImpl) FindBySymbol(ctx context.Context, symbol string) (*entity.Symbol, error) {
	var s entity.Symbol
	err := d.db.WithContext(ctx).Where("symbol = ?", symbol).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get symbol %s: %w", symbol, err)
	}
	return &s, nil
}

func (d *SymbolDAOImpl) DeleteBySymbol(ctx context.Context, symbol string) (*entity.Symbol, error) {
	s, err := d.FindBySymbol(ctx, symbol)
	if err != nil || s == nil {
		return nil, err
	}
	if err := d.db.WithContext(ctx).Delete(&entity.Symbol{}, s.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to delete symbol %s: %w", symbol, err)
	}
	return s, nil
}
