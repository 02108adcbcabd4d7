package entity

import "time"

// Symbol 可订阅的交易对目录
type Symbol struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Symbol    string    `gorm:"uniqueIndex;type:varchar(30);not null" json:"symbol"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Symbol) TableName() string {
	return "symbols"
}
