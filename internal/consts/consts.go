package consts

const (
	// RequestId 请求id名称
	RequestId = "request_id"
)

// 查询缓存使用的方法名，参与生成缓存 key
const (
	CacheAlertsByUser   = "alerts"
	CacheAlertByID      = "alert"
	CacheActiveByUser   = "active_alerts"
	DefaultPage         = 1
	DefaultPageSize     = 20
	MaxPageSize         = 200
	NotificationCreated = "ALERT_CREATED"
	NotificationTrigger = "ALERT_TRIGGERED"
)
