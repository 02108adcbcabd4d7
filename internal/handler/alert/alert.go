package alert

import (
	"github.com/gin-gonic/gin"

	"pricewatch/internal/model"
	"pricewatch/internal/service"
	"pricewatch/pkg/errors"
	"pricewatch/pkg/errors/ecode"
	"pricewatch/pkg/response"
	"pricewatch/pkg/validator"
)

type Handler struct {
	service *service.AlertService
}

func NewHandler(s *service.AlertService) *Handler {
	return &Handler{service: s}
}

// @Summary		创建价格提醒
// @Accept			json
// @Produce		json
// @Param			body	body		model.CreateAlertRequest	true	"提醒参数"
// @Success		201		{object}	response.ApiResponse{data=entity.Alert}
// @Router			/api/v1/alerts [post]
func (h *Handler) AlertCreate() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req model.CreateAlertRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.JSON(ctx, errors.WithCode(ecode.ValidateErr, "%s", validator.Translate(err)), nil)
			return
		}
		alert, err := h.service.Create(ctx.Request.Context(), req)
		if err != nil {
			// 入库成功但消息未发出时仍返回提醒内容
			response.JSON(ctx, err, alert)
			return
		}
		response.Created(ctx, alert)
	}
}

// @Summary		分页获取用户的提醒
// @Produce		json
// @Param			user_id	query		string	true	"用户id"
// @Param			page	query		int		false	"页码，从1开始"
// @Param			limit	query		int		false	"每页数量"
// @Success		200		{object}	response.ApiResponse{data=[]entity.Alert}
// @Router			/api/v1/alerts [get]
func (h *Handler) AlertList() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req model.AlertListReq
		if err := ctx.ShouldBindQuery(&req); err != nil {
			response.JSON(ctx, errors.WithCode(ecode.ValidateErr, "%s", validator.Translate(err)), nil)
			return
		}
		res, err := h.service.GetByUser(ctx.Request.Context(), req.UserID, req.Page, req.Limit)
		response.JSON(ctx, err, res)
	}
}

func (h *Handler) AlertGet() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		res, err := h.service.GetByID(ctx.Request.Context(), ctx.Param("id"))
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, res)
	}
}

// @Summary		修改提醒（已触发的提醒不能修改）
// @Accept			json
// @Produce		json
// @Param			id		path		string						true	"提醒id"
// @Param			body	body		model.UpdateAlertRequest	true	"需要修改的字段"
// @Success		200		{object}	response.ApiResponse{data=entity.Alert}
// @Router			/api/v1/alerts/{id} [put]
func (h *Handler) AlertUpdate() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req model.UpdateAlertRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.JSON(ctx, errors.WithCode(ecode.ValidateErr, "%s", validator.Translate(err)), nil)
			return
		}
		res, err := h.service.Update(ctx.Request.Context(), ctx.Param("id"), req)
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, res)
	}
}

func (h *Handler) AlertDelete() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if err := h.service.Delete(ctx.Request.Context(), ctx.Param("id")); err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, gin.H{"message": "Alert deleted successfully"})
	}
}

func (h *Handler) AlertActiveGetByUser() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		res, err := h.service.GetActiveByUser(ctx.Request.Context(), ctx.Param("userId"))
		response.JSON(ctx, err, res)
	}
}
