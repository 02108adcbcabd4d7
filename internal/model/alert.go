package model

import "time"

// AlertType 价格比较方向
type AlertType string

const (
	AlertAbove AlertType = "ABOVE"
	AlertBelow AlertType = "BELOW"
)

func (t AlertType) Valid() bool {
	return t == AlertAbove || t == AlertBelow
}

// Matches 当前价格是否满足提醒条件
func (t AlertType) Matches(price, target float64) bool {
	switch t {
	case AlertAbove:
		return price >= target
	case AlertBelow:
		return price <= target
	}
	return false
}

// Recrossed 价格是否已经回到阈值另一侧
func (t AlertType) Recrossed(price, target float64) bool {
	switch t {
	case AlertAbove:
		return price < target
	case AlertBelow:
		return price > target
	}
	return false
}

// DurationType 触发后的处理策略
type DurationType string

const (
	DurationOnce       DurationType = "ONCE"
	DurationOneDay     DurationType = "ONE_DAY"
	DurationContinuous DurationType = "CONTINUOUS"
)

// OneDayTTL ONE_DAY 提醒的有效期
const OneDayTTL = 24 * time.Hour

func (d DurationType) Valid() bool {
	switch d {
	case DurationOnce, DurationOneDay, DurationContinuous:
		return true
	}
	return false
}

// CreateAlertRequest 创建提醒请求体
type CreateAlertRequest struct {
	UserID       string       `json:"user_id" binding:"required"`
	Symbol       string       `json:"symbol" binding:"required"`
	TargetPrice  float64      `json:"target_price" binding:"required,gt=0"`
	Type         AlertType    `json:"type" binding:"required,oneof=ABOVE BELOW"`
	DurationType DurationType `json:"duration_type" binding:"omitempty,oneof=ONCE ONE_DAY CONTINUOUS"`
}

// UpdateAlertRequest 修改提醒，未传的字段不修改
type UpdateAlertRequest struct {
	Symbol       *string       `json:"symbol,omitempty"`
	TargetPrice  *float64      `json:"target_price,omitempty" binding:"omitempty,gt=0"`
	Type         *AlertType    `json:"type,omitempty"`
	DurationType *DurationType `json:"duration_type,omitempty"`
	IsActive     *bool         `json:"is_active,omitempty"`
}

// AlertListReq 分页查询
type AlertListReq struct {
	UserID string `form:"user_id" binding:"required"`
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
}

// Notification 写入通知队列的消息
type Notification struct {
	Kind        string     `json:"kind"`
	UserID      string     `json:"user_id"`
	AlertID     string     `json:"alert_id"`
	Symbol      string     `json:"symbol"`
	Price       float64    `json:"price"`
	TargetPrice float64    `json:"target_price"`
	Type        AlertType  `json:"type"`
	Message     string     `json:"message"`
	TriggeredAt *time.Time `json:"triggered_at,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}
