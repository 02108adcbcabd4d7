package ecode

import "net/http"

// 业务错误码，0 表示成功
const (
	Success = 0

	Unknown     = 10000
	ValidateErr = 10001
	NotFoundErr = 10004

	// 重复提交
	TooManyRequestsErr = 10029

	// 提醒已触发或不存在，不允许修改
	AlertTriggeredErr = 20001

	// 消息队列不可用
	PublishErr            = 30001
	ChannelUnavailableErr = 30002
)

// HTTPStatus 错误码对应的 http 状态码
func HTTPStatus(code int) int {
	switch code {
	case Success:
		return http.StatusOK
	case ValidateErr:
		return http.StatusBadRequest
	case NotFoundErr, AlertTriggeredErr:
		return http.StatusNotFound
	case TooManyRequestsErr:
		return http.StatusTooManyRequests
	case PublishErr, ChannelUnavailableErr:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
