package dao

import (
	"context"

	"pricewatch/internal/model/entity"
)

// SymbolDAO 交易对目录
type SymbolDAO interface {
	FindAll(ctx context.Context) ([]entity.Symbol, error)
	CreateBatch(ctx context.Context, symbols []entity.Symbol) error
	FindBySymbol(ctx context.Context, symbol string) (*entity.Symbol, error)
	DeleteBySymbol(ctx context.Context, symbol string) (*entity.Symbol, error)
}
