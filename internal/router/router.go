package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pricewatch/internal/handler/alert"
	"pricewatch/internal/handler/crypto"
	"pricewatch/internal/handler/ping"
	"pricewatch/internal/handler/symbol"
	"pricewatch/internal/middleware"
)

type ApiRouter struct {
	alertHandler  *alert.Handler
	symbolHandler *symbol.Handler
	cryptoHandler *crypto.Handler
}

func NewApiRouter(ah *alert.Handler, sh *symbol.Handler, ch *crypto.Handler) *ApiRouter {
	return &ApiRouter{alertHandler: ah, symbolHandler: sh, cryptoHandler: ch}
}

func (api *ApiRouter) Load(g *gin.Engine) {
	g.GET("/ping", ping.Ping())
	g.GET("/metrics", gin.WrapH(promhttp.Handler()))

	base := g.Group("/api/v1")
	base.GET("/ping", ping.Ping())

	// 同一客户端 1 秒内重复提交创建请求直接拒绝
	antiDuplicate := middleware.AntiDuplicate(500, time.Second)

	a := base.Group("/alerts")
	{
		a.POST("", antiDuplicate, api.alertHandler.AlertCreate())
		a.GET("", api.alertHandler.AlertList())
		a.GET("/user/:userId/active", api.alertHandler.AlertActiveGetByUser())
		a.GET("/:id", api.alertHandler.AlertGet())
		a.PUT("/:id", api.alertHandler.AlertUpdate())
		a.DELETE("/:id", api.alertHandler.AlertDelete())
	}

	s := base.Group("/symbols")
	{
		s.GET("", api.symbolHandler.SymbolList())
		s.POST("", antiDuplicate, api.symbolHandler.SymbolCreate())
		s.GET("/:symbol", api.symbolHandler.SymbolGet())
		s.DELETE("/:symbol", api.symbolHandler.SymbolDelete())
	}

	c := base.Group("/crypto")
	{
		c.GET("/prices", api.cryptoHandler.PricesGet())
	}
}
