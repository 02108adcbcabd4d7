package dao

import (
	"context"
	"time"

	"pricewatch/internal/model/entity"
)

// AlertSort 查询排序方式
type AlertSort int

const (
	// SortCreatedDesc 按创建时间倒序（列表接口）
	SortCreatedDesc AlertSort = iota
	// SortIDAsc 按主键正序（价格匹配时的游标分页）
	SortIDAsc
)

// AlertFilter 查询条件，零值字段不参与过滤
type AlertFilter struct {
	UserID            string
	Symbol            string
	IsActive          *bool
	IsThresholdPassed *bool
	// AfterID 游标：只返回 id 大于它的记录
	AfterID string
}

// AlertPatch 用户修改提醒的字段
type AlertPatch struct {
	Symbol       *string
	TargetPrice  *float64
	Type         *string
	DurationType *string
	IsActive     *bool
	ExpiresAt    *time.Time
	// ClearExpiresAt 为 true 时把 expires_at 置空
	ClearExpiresAt bool
}

// TriggerPatch 触发时写入的字段
type TriggerPatch struct {
	Price      float64
	At         time.Time
	Deactivate bool
	ExpiresAt  *time.Time
}

// AlertDAO 提醒数据访问对象接口
type AlertDAO interface {
	// Create 写入新提醒
	Create(ctx context.Context, alert *entity.Alert) error
	// Find 按条件分页查询
	Find(ctx context.Context, filter AlertFilter, sort AlertSort, skip, limit int) ([]entity.Alert, error)
	// FindByID 不存在时返回 nil, nil
	FindByID(ctx context.Context, id string) (*entity.Alert, error)

	// UpdateIfNotTriggered 仅当 is_threshold_passed = false 时更新，条件不满足返回 nil, nil
	UpdateIfNotTriggered(ctx context.Context, id string, patch AlertPatch) (*entity.Alert, error)
	// TriggerIfEligible 仅当 is_active = true 且 is_threshold_passed = false 时触发，
	// trigger_count 自增。并发竞争失败返回 nil, nil
	TriggerIfEligible(ctx context.Context, id string, patch TriggerPatch) (*entity.Alert, error)
	// RearmIfPassed 把已触发的提醒重新置为可匹配
	RearmIfPassed(ctx context.Context, id string) (bool, error)
	// DeactivateExpired 批量停用已过期的 ONE_DAY 提醒，返回影响行数
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)

	// Delete 不存在时返回 nil, nil
	Delete(ctx context.Context, id string) (*entity.Alert, error)

	// DistinctActiveSymbols 所有活跃且未过期提醒的交易对
	DistinctActiveSymbols(ctx context.Context, now time.Time) ([]string, error)
}
