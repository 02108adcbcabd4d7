package response

import (
	"github.com/gin-gonic/gin"

	"pricewatch/internal/consts"
	"pricewatch/pkg/errors"
	"pricewatch/pkg/errors/ecode"
)

// 代表响应给客户端的的一个消息结构，包括错误码，错误信息，响应数据
type ApiResponse struct {
	RequestId string      `json:"request_id"` // 请求的唯一ID
	Code      int         `json:"code"`       // 错误码 0表示无错误
	Message   string      `json:"message"`    // 提示信息
	Data      interface{} `json:"data"`       // 响应数据
}

// 发送json格式数据，http 状态码由错误码决定
func JSON(c *gin.Context, err error, data interface{}) {
	code, message := errors.DecodeErr(err)
	c.JSON(ecode.HTTPStatus(code), ApiResponse{
		RequestId: c.GetString(consts.RequestId),
		Code:      code,
		Message:   message,
		Data:      data,
	})
}

// Created 创建成功，返回201
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, ApiResponse{
		RequestId: c.GetString(consts.RequestId),
		Code:      ecode.Success,
		Message:   "success",
		Data:      data,
	})
}
