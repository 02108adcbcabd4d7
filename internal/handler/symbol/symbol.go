package symbol

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
	service *service.SymbolService
}

func NewHandler(s *service.SymbolService) *Handler {
	return &Handler{service: s}
}

func (h *Handler) SymbolList() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		res, err := h.service.List(ctx.Request.Context())
		response.JSON(ctx, err, res)
	}
}

// SymbolCreate 请求体为数组：[{"symbol":"BTCUSDT"}, ...]
func (h *Handler) SymbolCreate() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var items []model.CreateSymbolItem
		if err := ctx.ShouldBindJSON(&items); err != nil {
			response.JSON(ctx, errors.WithCode(ecode.ValidateErr, "%s", validator.Translate(err)), nil)
			return
		}
		res, err := h.service.CreateBatch(ctx.Request.Context(), items)
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.Created(ctx, res)
	}
}

func (h *Handler) SymbolGet() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		res, err := h.service.Get(ctx.Request.Context(), ctx.Param("symbol"))
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, res)
	}
}

func (h *Handler) SymbolDelete() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if err := h.service.Delete(ctx.Request.Context(), ctx.Param("symbol")); err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, gin.H{"message": "Symbol deleted successfully"})
	}
}
