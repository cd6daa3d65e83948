package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"mailledger/backend/internal/monitoring"
)

// Monitoring HTTP 请求指标采集中间件
//
// endpoint 使用路由模板（c.FullPath）而非原始路径，避免按 ID 膨胀
// 指标基数。
func Monitoring(metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		method := c.Request.Method

		metrics.HTTPRequestsTotal.WithLabelValues(
			method, endpoint, strconv.Itoa(c.Writer.Status()),
		).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, endpoint).
			Observe(time.Since(start).Seconds())
	}
}
