// Package middleware 查询 API 的 Gin 中间件。
package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"tooltally/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// RequestLogger 记录每次请求的访问日志，并按路由与状态码累计请求数。
//
// 列表接口的行为由查询串驱动（search / category / 分页），
// 所以把 RawQuery 一并写进日志，便于对照缓存命中与慢查询。
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.APIRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()

		if logger == nil {
			return
		}
		logger.Info("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.String("query", c.Request.URL.RawQuery),
			slog.Int("status", status),
			slog.String("client_ip", c.ClientIP()),
			slog.String("latency", time.Since(start).String()),
		)
	}
}
