package crypto

import (
	"strings"

	"github.com/gin-gonic/gin"

	"pricewatch/internal/service"
	"pricewatch/pkg/response"
)

type Handler struct {
	service *service.PriceService
}

func NewHandler(s *service.PriceService) *Handler {
	return &Handler{service: s}
}

// PricesGet 最新成交价，可选 ?symbols=BTCUSDT,ETHUSDT
func (h *Handler) PricesGet() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var symbols []string
		if q := ctx.Query("symbols"); q != "" {
			symbols = strings.Split(q, ",")
		}
		res, err := h.service.Prices(ctx.Request.Context(), symbols...)
		response.JSON(ctx, err, res)
	}
}
