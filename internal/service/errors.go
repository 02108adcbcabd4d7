package service

import (
	"pricewatch/pkg/errors"
	"pricewatch/pkg/errors/ecode"
)

// 业务错误，按错误码比较：errors.Is(err, ErrNotFound)
var (
	ErrValidation                 = errors.WithCode(ecode.ValidateErr, "validation failed")
	ErrNotFound                   = errors.WithCode(ecode.NotFoundErr, "alert not found")
	ErrNotFoundOrAlreadyTriggered = errors.WithCode(ecode.AlertTriggeredErr, "alert not found or already triggered")
	ErrPublishFailed              = errors.WithCode(ecode.PublishErr, "publish failed")
	ErrSymbolNotFound             = errors.WithCode(ecode.NotFoundErr, "symbol not found")
)

func invalid(format string, args ...any) error {
	return errors.WithCode(ecode.ValidateErr, format, args...)
}
