package errors

import (
	stderrors "errors"
	"fmt"

	"pricewatch/pkg/errors/ecode"
)

// Error 带业务错误码的错误
type Error struct {
	code  int
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Code() int { return e.code }

func (e *Error) Message() string { return e.msg }

// Is 错误码相同即视为同一类错误，便于 errors.Is(err, service.ErrNotFound)
func (e *Error) Is(target error) bool {
	var t *Error
	if !stderrors.As(target, &t) {
		return false
	}
	return t.code == e.code
}

// WithCode 创建一个带错误码的错误
func WithCode(code int, format string, args ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap 包装底层错误并附加错误码
func Wrap(err error, code int, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{code: code, msg: fmt.Sprintf(format, args...), cause: err}
}

// Code 取出错误码，非 *Error 返回 Unknown
func Code(err error) int {
	if err == nil {
		return ecode.Success
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.code
	}
	return ecode.Unknown
}

// DecodeErr 解析出错误码和提示信息
func DecodeErr(err error) (int, string) {
	if err == nil {
		return ecode.Success, "success"
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.code, err.Error()
	}
	return ecode.Unknown, err.Error()
}

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func New(text string) error { return stderrors.New(text) }
