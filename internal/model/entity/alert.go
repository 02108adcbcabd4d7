package entity

import (
	"time"

	"gorm.io/plugin/soft_delete"
)

// Alert 价格提醒表结构
// Symbol 统一大写（BTCUSDT）；IsThresholdPassed 是触发锁存位，只能通过条件更新翻转
type Alert struct {
	ID                string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID            string     `gorm:"index:idx_user_active,priority:1;type:varchar(36);not null" json:"user_id"`
	Symbol            string     `gorm:"index:idx_symbol_eligible,priority:1;type:varchar(30);not null" json:"symbol"`
	TargetPrice       float64    `gorm:"type:decimal(30,10);not null" json:"target_price"`
	Type              string     `gorm:"type:varchar(10);not null" json:"type"`
	DurationType      string     `gorm:"index:idx_duration_expires,priority:1;type:varchar(16);not null;default:ONCE" json:"duration_type"`
	IsActive          bool       `gorm:"index:idx_user_active,priority:2;index:idx_symbol_eligible,priority:2;not null;default:true" json:"is_active"`
	IsThresholdPassed bool       `gorm:"index:idx_symbol_eligible,priority:3;not null;default:false" json:"is_threshold_passed"`
	TriggerCount      int64      `gorm:"not null;default:0" json:"trigger_count"`
	LastPrice         float64    `gorm:"type:decimal(30,10);not null;default:0" json:"last_price"`
	CreatedAt         time.Time  `gorm:"index" json:"created_at"`
	ExpiresAt         *time.Time `gorm:"index:idx_duration_expires,priority:2" json:"expires_at,omitempty"`
	TriggeredAt       *time.Time `json:"triggered_at,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`

	// 删除只打标记（毫秒时间戳），查询与条件更新自动排除已删除的行
	DeletedAt soft_delete.DeletedAt `gorm:"softDelete:milli;index;not null;default:0" json:"-"`
}

func (Alert) TableName() string {
	return "alerts"
}

// Eligible 是否参与价格匹配
func (a *Alert) Eligible() bool {
	return a.IsActive && !a.IsThresholdPassed
}
