package model

// CreateSymbolItem 批量创建交易对
type CreateSymbolItem struct {
	Symbol string `json:"symbol" binding:"required"`
}

// TickerPrice 交易所最新价格
type TickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}
