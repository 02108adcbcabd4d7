package middleware

import (
	"bytes"
	"io"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"pricewatch/internal/consts"
	"pricewatch/pkg/logger"
	"pricewatch/pkg/metrics"
)

// 请求体超过该长度时不写入日志
const maxLoggedBody = 4 << 10

func Logger(c *gin.Context) {
	// 请求前
	t := time.Now()
	reqPath := c.Request.URL.Path
	reqId := c.GetString(consts.RequestId)
	method := c.Request.Method
	ip := c.ClientIP()
	var requestBody []byte
	if c.Request.Body != nil {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			body = []byte{}
		}
		requestBody = body
		c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	}
	if len(requestBody) > maxLoggedBody {
		requestBody = requestBody[:maxLoggedBody]
	}

	logger.Info("[Request Start]",
		logger.Pair(consts.RequestId, reqId),
		logger.Pair("host", ip),
		logger.Pair("path", reqPath),
		logger.Pair("method", method),
		logger.Pair("body", string(requestBody)))

	c.Next()
	// 请求后
	latency := time.Since(t)
	logger.Info("[Request End]",
		logger.Pair(consts.RequestId, reqId),
		logger.Pair("host", ip),
		logger.Pair("path", reqPath),
		logger.Pair("status", c.Writer.Status()),
		logger.Pair("cost", latency))

	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	metrics.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(method, route).Observe(latency.Seconds())
}
